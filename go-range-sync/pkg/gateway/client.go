package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aleka07/range_egizz/go-range-sync/pkg/model"
)

var _ Fetcher = (*Client)(nil)

// Client is a thin HTTP client for the gateway's target API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	now     func() time.Time
}

// DefaultTimeout caps a request when NewClient is given no timeout.
const DefaultTimeout = 30 * time.Second

// NewClient creates a client for the given base URL (e.g. http://host:port).
// The token is sent as a bearer credential when non-empty. timeout caps every
// request; zero means DefaultTimeout.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// FetchTargets lists targets with telemetry. Every failure wraps
// ErrGatewayUnavailable.
func (c *Client) FetchTargets(ctx context.Context, force bool) (Snapshot, error) {
	var resp listTargetsResponse
	endpoint := "/api/v1/targets?force=" + url.QueryEscape(strconv.FormatBool(force))
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	now := c.now()
	targets := make([]model.Target, 0, len(resp.Targets))
	for _, rec := range resp.Targets {
		if rec.ID == "" {
			continue
		}
		targets = append(targets, rec.toTarget(now))
	}
	return Snapshot{Targets: targets, Cached: resp.Cached}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("request failed: %s: %s", res.Status, msg)
		}
		return fmt.Errorf("request failed: %s", res.Status)
	}

	decoder := json.NewDecoder(res.Body)
	return decoder.Decode(out)
}
