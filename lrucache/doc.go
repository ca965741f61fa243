/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides a fixed-capacity in-memory cache that evicts
// the least recently used entry once the capacity is exceeded.
// Entries never expire on their own. Hits, misses, evictions and the current size
// may be exported as Prometheus metrics.
package lrucache
