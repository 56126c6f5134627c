// Package gateway reads target snapshots from the telemetry gateway and
// follows its device change events.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/aleka07/range_egizz/go-range-sync/pkg/model"
)

// ErrGatewayUnavailable means no fresh data could be read from the gateway.
// It never means "the gateway has no targets".
var ErrGatewayUnavailable = errors.New("telemetry gateway unavailable")

// Snapshot is one read of the gateway's target list. Cached reports whether
// the gateway served it from its own cache.
type Snapshot struct {
	Targets []model.Target
	Cached  bool
}

// Fetcher is the Target Snapshot Fetcher.
type Fetcher interface {
	// FetchTargets returns every target with merged telemetry and resolved
	// status. force asks the gateway to bypass its own cache.
	FetchTargets(ctx context.Context, force bool) (Snapshot, error)
}

// --- wire format ---

type listTargetsResponse struct {
	Targets []targetRecord `json:"targets"`
	Cached  bool           `json:"cached"`
}

type targetRecord struct {
	ID               string                      `json:"id"`
	Name             string                      `json:"name"`
	Status           string                      `json:"status,omitempty"` // pre-derived upstream, may be absent
	Active           *bool                       `json:"active,omitempty"`
	LastActivityTime *int64                      `json:"lastActivityTime,omitempty"` // unix millis
	GameID           string                      `json:"gameId,omitempty"`
	LastShotTime     *int64                      `json:"lastShotTime,omitempty"` // unix millis
	ShotCount        int64                       `json:"shotCount,omitempty"`
	Telemetry        map[string][]telemetryPoint `json:"telemetry,omitempty"`
}

type telemetryPoint struct {
	TS    int64 `json:"ts"` // unix millis
	Value any   `json:"value"`
}

func millis(ms *int64) *time.Time {
	if ms == nil || *ms <= 0 {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

// toTarget converts a wire record, resolving its display status.
func (r targetRecord) toTarget(now time.Time) model.Target {
	t := model.Target{
		ID:           r.ID,
		Name:         r.Name,
		Status:       model.Status(r.Status),
		Connected:    r.Active,
		LastActivity: millis(r.LastActivityTime),
		LastShotAt:   millis(r.LastShotTime),
		ShotCount:    r.ShotCount,
		GameID:       r.GameID,
	}
	if len(r.Telemetry) > 0 {
		t.Telemetry = make(map[string][]model.TelemetryValue, len(r.Telemetry))
		for key, points := range r.Telemetry {
			values := make([]model.TelemetryValue, 0, len(points))
			for _, p := range points {
				values = append(values, model.TelemetryValue{Timestamp: time.UnixMilli(p.TS).UTC(), Value: p.Value})
			}
			t.Telemetry[key] = values
		}
	}
	t.Status = model.ResolveStatus(t, now)
	return t
}
