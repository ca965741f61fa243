/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/hookrelay/hookrelay/lrucache"
)

const maxUpstreamBodySize = 5 << 20

// Errors returned by Fetcher for input that cannot be turned into an upstream URL.
var (
	ErrInvalidProfileID    = errors.New("invalid profile id")
	ErrInvalidUpstreamPath = errors.New("invalid upstream path")
)

var profileIDRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// UpstreamStatusError is returned when the upstream responds with a non-2xx status code.
type UpstreamStatusError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream responded with status %d", e.StatusCode)
}

// Fetcher performs GET requests to the upstream JSON API through the LRU cache.
// Concurrent misses of the same key share one upstream request.
type Fetcher struct {
	client      *http.Client
	baseURL     *url.URL
	profilePath string
	cache       *lrucache.LRUCache[string, json.RawMessage]
	flights     singleflight.Group
}

// NewFetcher creates a new Fetcher.
func NewFetcher(client *http.Client, cfg UpstreamConfig, cache *lrucache.LRUCache[string, json.RawMessage]) (*Fetcher, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base URL: %w", err)
	}
	return &Fetcher{client: client, baseURL: baseURL, profilePath: cfg.ProfilePath, cache: cache}, nil
}

// URL builds the upstream URL for the path (relative to the base URL) and query.
// Query parameters are encoded sorted by key, so the result may be used as a cache key.
func (f *Fetcher) URL(path string, query url.Values) (*url.URL, error) {
	if _, err := url.PathUnescape(path); err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidUpstreamPath, path, err)
	}
	u := f.baseURL.JoinPath(path)
	u.RawQuery = query.Encode()
	return u, nil
}

// Fetch returns the upstream JSON body for the path and query.
// hit reports whether the body was served from the cache.
func (f *Fetcher) Fetch(ctx context.Context, path string, query url.Values) (body json.RawMessage, hit bool, err error) {
	u, err := f.URL(path, query)
	if err != nil {
		return nil, false, err
	}
	key := u.String()

	if body, ok := f.cache.Get(key); ok {
		return body, true, nil
	}

	// The shared request must not be canceled when one of the waiting callers goes away.
	flightCtx := context.WithoutCancel(ctx)
	resCh := f.flights.DoChan(key, func() (interface{}, error) {
		if cached, ok := f.cache.Peek(key); ok {
			return cached, nil
		}
		fetched, fetchErr := f.doGet(flightCtx, u)
		if fetchErr != nil {
			return nil, fetchErr
		}
		f.cache.Put(key, fetched)
		return fetched, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-resCh:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(json.RawMessage), false, nil
	}
}

// FetchProfile fetches the profile with the given id using the configured profile path.
func (f *Fetcher) FetchProfile(ctx context.Context, id string) (body json.RawMessage, hit bool, err error) {
	if !profileIDRegexp.MatchString(id) {
		return nil, false, ErrInvalidProfileID
	}
	return f.Fetch(ctx, strings.ReplaceAll(f.profilePath, ProfileIDPlaceholder, id), nil)
}

func (f *Fetcher) doGet(ctx context.Context, u *url.URL) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &UpstreamStatusError{StatusCode: resp.StatusCode, Body: body}
	}
	if len(body) > maxUpstreamBodySize {
		return nil, fmt.Errorf("upstream response is larger than %d bytes", maxUpstreamBodySize)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("upstream response is not a valid JSON")
	}
	return body, nil
}
