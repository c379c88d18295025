// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package guard

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockingHandler(release <-chan struct{}, inFlight *atomic.Int32, maxObserved *atomic.Int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			old := maxObserved.Load()
			if n <= old || maxObserved.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		w.WriteHeader(http.StatusOK)
	})
}

func TestWrapConcurrencyLimit_BoundsInFlightRequests(t *testing.T) {
	release := make(chan struct{})
	var inFlight, maxObserved atomic.Int32

	h := WrapConcurrencyLimit(
		blockingHandler(release, &inFlight, &maxObserved),
		WithMaxConcurrent(2),
		WithConcurrencyMaxWait(20*time.Millisecond),
	)

	var wg sync.WaitGroup
	codes := make([]int, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			codes[i] = w.Code
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, int(maxObserved.Load()), 2)

	var denied int
	for _, c := range codes {
		if c == http.StatusTooManyRequests {
			denied++
		}
	}
	assert.GreaterOrEqual(t, denied, 1)
}

func TestWrapConcurrencyLimit_ReleasesPermitAfterRequest(t *testing.T) {
	h := WrapConcurrencyLimit(okHandler(), WithMaxConcurrent(1))

	for i := 0; i < 5; i++ {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestWrapConcurrencyLimit_SeparateIdentitiesDoNotShareAPermit(t *testing.T) {
	release := make(chan struct{})
	var inFlight, maxObserved atomic.Int32

	h := WrapConcurrencyLimit(
		blockingHandler(release, &inFlight, &maxObserved),
		WithMaxConcurrent(1),
		WithConcurrencyIdent(IdentClientChain),
		WithConcurrencyMaxWait(20*time.Millisecond),
	)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	addrs := []string{"10.0.0.1:1", "10.0.0.2:1"}
	for i := range addrs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = addrs[i]
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			codes[i] = w.Code
		}(i)
	}

	time.Sleep(30 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
}

func TestWrapConcurrencyThrottle_NeverDeniesEventuallyAdmits(t *testing.T) {
	h := WrapConcurrencyThrottle(okHandler(), WithMaxConcurrent(1))

	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
	}
}
