/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides interchangeable admission algorithms behind a common Limiter interface.
//
// Every request carries a key (client identity) and a cost (number of units it consumes).
// Supported algorithms:
//   - token bucket (default): bursts up to the capacity, continuous refill, see package tokenbucket;
//   - leaky bucket: GCRA (Generic Cell Rate Algorithm) with a configurable burst;
//   - sliding window: a fixed number of units per sliding time window.
//
// Limiters that track per-key state can bound the number of keys with LRU eviction.
package ratelimit
