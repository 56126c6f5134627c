package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event types pushed by the gateway's WebSocket stream.
const (
	EventDeviceAdded   = "device_added"
	EventDeviceRemoved = "device_removed"
	EventStatus        = "status"
	EventTelemetry     = "telemetry"
	// EventResync is emitted locally after every (re)connect, since events
	// may have been missed while disconnected.
	EventResync = "resync"
)

// Event is one message of the gateway event stream.
type Event struct {
	Type     string `json:"type"`
	TargetID string `json:"targetId,omitempty"`
	TS       int64  `json:"ts,omitempty"`
}

// ChangesTargets reports whether the event can change the target list or a
// target's status. Telemetry updates don't; the cache TTL covers them.
func (e Event) ChangesTargets() bool {
	switch e.Type {
	case EventDeviceAdded, EventDeviceRemoved, EventStatus, EventResync:
		return true
	}
	return false
}

// Watcher follows the gateway event stream and reports target changes.
type Watcher struct {
	url        string
	header     http.Header
	onChange   func(Event)
	logger     *zap.SugaredLogger
	dialer     *websocket.Dialer
	newBackOff func() backoff.BackOff
}

// WatcherOption customises a Watcher.
type WatcherOption func(*Watcher)

// WithBackOff replaces the reconnect policy.
func WithBackOff(f func() backoff.BackOff) WatcherOption {
	return func(w *Watcher) { w.newBackOff = f }
}

// NewWatcher creates a watcher for the gateway at baseURL. onChange is called
// from the watcher goroutine for every event that ChangesTargets.
func NewWatcher(baseURL, token string, onChange func(Event), logger *zap.SugaredLogger, opts ...WatcherOption) (*Watcher, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported gateway url scheme %q", u.Scheme)
	}
	u.Path += "/api/v1/ws"

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	w := &Watcher{
		url:      u.String(),
		header:   header,
		onChange: onChange,
		logger:   logger,
		dialer:   websocket.DefaultDialer,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0 // retry until cancelled
			return b
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run keeps a subscription open until ctx is cancelled, reconnecting with
// backoff. It returns ctx.Err() once cancelled, or an error if the backoff
// policy stops retrying.
func (w *Watcher) Run(ctx context.Context) error {
	b := w.newBackOff()
	for {
		connected, err := w.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			b.Reset()
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("gateway watcher gave up: %w", err)
		}
		w.logger.Warnf("Gateway event stream interrupted, reconnecting in %s: %v", wait, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// session runs one connection. connected reports whether the dial succeeded.
func (w *Watcher) session(ctx context.Context) (connected bool, err error) {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("dial %s: %s: %w", w.url, resp.Status, err)
		}
		return false, fmt.Errorf("dial %s: %w", w.url, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	w.logger.Infof("Subscribed to gateway events at %s", w.url)
	w.onChange(Event{Type: EventResync, TS: time.Now().UnixMilli()})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return true, fmt.Errorf("gateway closed the stream")
			}
			return true, err
		}
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			w.logger.Warnf("Dropping malformed gateway event: %v", err)
			continue
		}
		if !ev.ChangesTargets() {
			continue
		}
		w.logger.Debugf("Gateway event %s for target %q", ev.Type, ev.TargetID)
		w.onChange(ev)
	}
}
