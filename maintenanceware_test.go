// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/wardgate/internal/netaddr"
)

// identFor returns an IdentFunc pinned to a single key unique to the
// calling test, so tests don't share state through the package-level
// default maintenance manager.
func identFor(key any) IdentFunc {
	return func(*http.Request) any { return key }
}

func TestWrapMaintenanceLimit_DeniesWhileGateClosed(t *testing.T) {
	type identKey struct{}
	ident := identFor(identKey{})

	h := WrapMaintenanceLimit(okHandler(), WithMaintenanceIdent(ident), WithMaintenanceMaxWait(20*time.Millisecond))

	assert.Equal(t, http.StatusOK, doRequest(h))

	done := make(chan struct{})
	go func() {
		_ = WithMaintenance(context.Background(), identKey{}, func(context.Context) {
			close(done)
			time.Sleep(100 * time.Millisecond)
		})
	}()
	<-done

	assert.Equal(t, http.StatusServiceUnavailable, doRequest(h))
}

func TestWrapMaintenanceThrottle_BlocksThenAdmitsAfterReopen(t *testing.T) {
	type identKey struct{}
	ident := identFor(identKey{})

	h := WrapMaintenanceThrottle(okHandler(), WithMaintenanceIdent(ident))

	st := defaultMaintenanceManager().Get(identKey{})
	reopen := st.Close()

	resultCh := make(chan int, 1)
	go func() {
		resultCh <- doRequest(h)
	}()

	select {
	case <-resultCh:
		t.Fatal("throttle admitted a request while the gate was closed")
	case <-time.After(30 * time.Millisecond):
	}

	reopen()

	select {
	case code := <-resultCh:
		assert.Equal(t, http.StatusOK, code)
	case <-time.After(time.Second):
		t.Fatal("throttle never admitted the request after reopen")
	}
}

func TestWithMaintenance_DrainsInFlightBeforeRunningBody(t *testing.T) {
	type identKey struct{}
	ident := identFor(identKey{})

	release := make(chan struct{})
	entered := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusOK)
	})
	h := WrapMaintenanceThrottle(slow, WithMaintenanceIdent(ident))

	go doRequest(h)
	<-entered

	bodyRan := make(chan struct{})
	var mu sync.Mutex
	var releasedBeforeBody bool

	go func() {
		_ = WithMaintenance(context.Background(), identKey{}, func(context.Context) {
			mu.Lock()
			releasedBeforeBody = true
			mu.Unlock()
			close(bodyRan)
		})
	}()

	select {
	case <-bodyRan:
		t.Fatal("maintenance body ran before the in-flight request drained")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)

	select {
	case <-bodyRan:
	case <-time.After(time.Second):
		t.Fatal("maintenance body never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	require.True(t, releasedBeforeBody)
}

func TestWrapMaintenanceLimit_BypassListAdmitsDuringClosedGate(t *testing.T) {
	type identKey struct{}
	ident := identFor(identKey{})
	bypass := Static([]netaddr.Block{netaddr.MustParseBlock("10.0.0.0/8")})

	h := WrapMaintenanceLimit(
		okHandler(),
		WithMaintenanceIdent(ident),
		WithMaintenanceBypass(bypass),
		WithMaintenanceMaxWait(10*time.Millisecond),
	)

	done := make(chan struct{})
	go func() {
		_ = WithMaintenance(context.Background(), identKey{}, func(context.Context) {
			close(done)
			time.Sleep(100 * time.Millisecond)
		})
	}()
	<-done

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:1"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}
