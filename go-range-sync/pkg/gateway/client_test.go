package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleka07/range_egizz/go-range-sync/pkg/model"
)

func TestClient_FetchTargets(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Hour).UnixMilli()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/targets", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("force"))
		assert.Equal(t, "Bearer gw-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"cached": false,
			"targets": [
				{"id": "t1", "name": "Lane 1", "status": "standby", "active": false, "shotCount": 12,
				 "telemetry": {"hits": [{"ts": ` + itoa(recent) + `, "value": 3}]}},
				{"id": "t2", "name": "Lane 2", "active": true, "lastActivityTime": ` + itoa(recent) + `},
				{"id": "t3", "name": "Lane 3", "gameId": "g-1"},
				{"id": "", "name": "ghost"}
			]
		}`))
	}))
	defer s.Close()

	c := NewClient(s.URL+"/", "gw-token", 0)
	c.now = func() time.Time { return now }

	snap, err := c.FetchTargets(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, snap.Cached)
	require.Len(t, snap.Targets, 3)

	byID := map[string]model.Target{}
	for _, tgt := range snap.Targets {
		byID[tgt.ID] = tgt
	}
	// Upstream status is trusted even though the target is disconnected.
	assert.Equal(t, model.StatusStandby, byID["t1"].Status)
	assert.Equal(t, int64(12), byID["t1"].ShotCount)
	require.Len(t, byID["t1"].Telemetry["hits"], 1)
	assert.Equal(t, now.Add(-time.Hour), byID["t1"].Telemetry["hits"][0].Timestamp)

	assert.Equal(t, model.StatusStandby, byID["t2"].Status)
	assert.Equal(t, model.StatusOnline, byID["t3"].Status)
	assert.Nil(t, byID["t3"].RoomID)
}

func TestClient_ErrorsAreGatewayUnavailable(t *testing.T) {
	t.Parallel()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer s.Close()

	_, err := NewClient(s.URL, "", 0).FetchTargets(context.Background(), false)
	require.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "maintenance")

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	_, err = NewClient(closed.URL, "", 0).FetchTargets(context.Background(), false)
	require.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestClient_HonoursContextDeadline(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer s.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient(s.URL, "", 0).FetchTargets(ctx, true)
	require.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestClient_UsesConfiguredTimeout(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultTimeout, NewClient("http://gw", "", 0).http.Timeout)
	assert.Equal(t, 45*time.Second, NewClient("http://gw", "", 45*time.Second).http.Timeout)

	release := make(chan struct{})
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer s.Close()
	defer close(release)

	start := time.Now()
	_, err := NewClient(s.URL, "", 50*time.Millisecond).FetchTargets(context.Background(), true)
	require.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFixture(t *testing.T) {
	t.Parallel()

	yes := true
	f := NewFixture(model.Target{ID: "t1", Connected: &yes})
	snap, err := f.FetchTargets(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, snap.Cached)
	assert.Equal(t, model.StatusOffline, snap.Targets[0].Status)

	snap, err = f.FetchTargets(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, snap.Cached)

	f.FailWith(ErrGatewayUnavailable)
	_, err = f.FetchTargets(context.Background(), true)
	require.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, 3, f.Calls())
}

func TestFixture_Hold(t *testing.T) {
	t.Parallel()

	f := NewFixture(model.Target{ID: "t1"})
	release := f.Hold()

	done := make(chan error, 1)
	go func() {
		_, err := f.FetchTargets(context.Background(), true)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("fetch returned while held")
	case <-time.After(20 * time.Millisecond):
	}
	release()
	require.NoError(t, <-done)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
