/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/hookrelay/hookrelay/lrucache"
)

type fakeUpstream struct {
	*httptest.Server
	calls   atomic.Int32
	mu      sync.Mutex
	paths   []string
	handler http.HandlerFunc
}

func newFakeUpstream(t *testing.T, handler http.HandlerFunc) *fakeUpstream {
	t.Helper()
	fu := &fakeUpstream{handler: handler}
	fu.Server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		fu.calls.Inc()
		fu.mu.Lock()
		fu.paths = append(fu.paths, r.URL.RequestURI())
		fu.mu.Unlock()
		fu.handler(rw, r)
	}))
	t.Cleanup(fu.Close)
	return fu
}

func (fu *fakeUpstream) RequestURIs() []string {
	fu.mu.Lock()
	defer fu.mu.Unlock()
	return append([]string(nil), fu.paths...)
}

func respondUpstreamJSON(body string) http.HandlerFunc {
	return func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(body))
	}
}

func newTestFetcher(t *testing.T, baseURL string, capacity int) (*Fetcher, *lrucache.LRUCache[string, json.RawMessage]) {
	t.Helper()
	cache, err := lrucache.New[string, json.RawMessage](capacity, nil)
	require.NoError(t, err)
	fetcher, err := NewFetcher(http.DefaultClient, UpstreamConfig{BaseURL: baseURL, ProfilePath: "/v1/users/{id}"}, cache)
	require.NoError(t, err)
	return fetcher, cache
}

func TestFetcher_URL(t *testing.T) {
	fetcher, _ := newTestFetcher(t, "https://users.example.com/api", 1)

	u, err := fetcher.URL("v1/users/1", url.Values{"b": {"2"}, "a": {"1", "0"}})
	require.NoError(t, err)
	require.Equal(t, "https://users.example.com/api/v1/users/1?a=1&a=0&b=2", u.String())

	u, err = fetcher.URL("../../etc", nil)
	require.NoError(t, err)
	require.Equal(t, "https://users.example.com/etc", u.String())

	_, err = fetcher.URL("bad%zz", nil)
	require.ErrorIs(t, err, ErrInvalidUpstreamPath)
}

func TestFetcher_Fetch_CachesResponses(t *testing.T) {
	upstream := newFakeUpstream(t, respondUpstreamJSON(`{"id":1}`))
	fetcher, cache := newTestFetcher(t, upstream.URL, 10)
	ctx := context.Background()

	body, hit, err := fetcher.Fetch(ctx, "v1/users/1", url.Values{"x": {"1"}, "a": {"2"}})
	require.NoError(t, err)
	require.False(t, hit)
	require.JSONEq(t, `{"id":1}`, string(body))

	body, hit, err = fetcher.Fetch(ctx, "v1/users/1", url.Values{"a": {"2"}, "x": {"1"}})
	require.NoError(t, err)
	require.True(t, hit, "query order must not change the cache key")
	require.JSONEq(t, `{"id":1}`, string(body))

	require.EqualValues(t, 1, upstream.calls.Load())
	require.Equal(t, []string{"/v1/users/1?a=2&x=1"}, upstream.RequestURIs())
	require.Equal(t, []string{upstream.URL + "/v1/users/1?a=2&x=1"}, cache.Keys())
}

func TestFetcher_Fetch_EvictsLeastRecentlyUsed(t *testing.T) {
	upstream := newFakeUpstream(t, respondUpstreamJSON(`{}`))
	fetcher, cache := newTestFetcher(t, upstream.URL, 2)
	ctx := context.Background()

	for _, p := range []string{"a", "b", "a", "c"} {
		_, _, err := fetcher.Fetch(ctx, p, nil)
		require.NoError(t, err)
	}
	require.Equal(t, []string{upstream.URL + "/c", upstream.URL + "/a"}, cache.Keys())
	require.EqualValues(t, 3, upstream.calls.Load())
}

func TestFetcher_Fetch_Errors(t *testing.T) {
	t.Run("non-2xx status is not cached", func(t *testing.T) {
		upstream := newFakeUpstream(t, func(rw http.ResponseWriter, _ *http.Request) {
			rw.WriteHeader(http.StatusNotFound)
			_, _ = rw.Write([]byte(`{"errors":[{"code":3}]}`))
		})
		fetcher, cache := newTestFetcher(t, upstream.URL, 10)

		for i := 0; i < 2; i++ {
			_, _, err := fetcher.Fetch(context.Background(), "v1/users/0", nil)
			var statusErr *UpstreamStatusError
			require.ErrorAs(t, err, &statusErr)
			require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
			require.JSONEq(t, `{"errors":[{"code":3}]}`, string(statusErr.Body))
		}
		require.Zero(t, cache.Len())
		require.EqualValues(t, 2, upstream.calls.Load())
	})

	t.Run("invalid JSON", func(t *testing.T) {
		upstream := newFakeUpstream(t, respondUpstreamJSON(`<html>`))
		fetcher, cache := newTestFetcher(t, upstream.URL, 10)

		_, _, err := fetcher.Fetch(context.Background(), "x", nil)
		require.ErrorContains(t, err, "not a valid JSON")
		require.Zero(t, cache.Len())
	})

	t.Run("transport error", func(t *testing.T) {
		upstream := newFakeUpstream(t, respondUpstreamJSON(`{}`))
		fetcher, _ := newTestFetcher(t, upstream.URL, 10)
		upstream.Close()

		_, _, err := fetcher.Fetch(context.Background(), "x", nil)
		require.ErrorContains(t, err, "do upstream request")
	})
}

func TestFetcher_Fetch_CollapsesConcurrentMisses(t *testing.T) {
	release := make(chan struct{})
	upstream := newFakeUpstream(t, func(rw http.ResponseWriter, r *http.Request) {
		<-release
		respondUpstreamJSON(`{"ok":true}`)(rw, r)
	})
	fetcher, _ := newTestFetcher(t, upstream.URL, 10)

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := fetcher.Fetch(context.Background(), "same", nil)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return upstream.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, upstream.calls.Load())
}

func TestFetcher_Fetch_CanceledCallerDoesNotCancelFlight(t *testing.T) {
	release := make(chan struct{})
	upstream := newFakeUpstream(t, func(rw http.ResponseWriter, r *http.Request) {
		<-release
		respondUpstreamJSON(`{"ok":true}`)(rw, r)
	})
	fetcher, cache := newTestFetcher(t, upstream.URL, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := fetcher.Fetch(ctx, "slow", nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return upstream.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestFetcher_FetchProfile(t *testing.T) {
	upstream := newFakeUpstream(t, respondUpstreamJSON(`{"name":"builderman"}`))
	fetcher, _ := newTestFetcher(t, upstream.URL, 10)

	body, hit, err := fetcher.FetchProfile(context.Background(), "156")
	require.NoError(t, err)
	require.False(t, hit)
	require.JSONEq(t, `{"name":"builderman"}`, string(body))
	require.Equal(t, []string{"/v1/users/156"}, upstream.RequestURIs())

	for _, id := range []string{"", "1/../2", "1?x=1", "a b"} {
		_, _, err = fetcher.FetchProfile(context.Background(), id)
		require.ErrorIs(t, err, ErrInvalidProfileID, id)
	}
	require.EqualValues(t, 1, upstream.calls.Load())
}
