// Package gateway is the HTTP client for the remote sync backend. It speaks
// the batch upsert and delta pull endpoints, authenticates with the device
// token, and rate-limits outbound calls per endpoint family.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/leafwise/leafwise-sync/internal/domain"
	"github.com/leafwise/leafwise-sync/internal/errors"
	"github.com/leafwise/leafwise-sync/internal/ratelimit"
)

const (
	// Outbound rate limit: 5 requests per second per endpoint family,
	// burst of 10.
	defaultRPS   = 5.0
	defaultBurst = 10

	defaultCallTimeout = 15 * time.Second
)

// Config carries the remote connection settings.
type Config struct {
	// BaseURL is the root of the sync backend, e.g. https://api.leafwise.app.
	BaseURL string
	// DeviceToken authenticates this device. Sent as a bearer token.
	DeviceToken string
	// CallTimeout bounds each individual request. Zero means the default.
	CallTimeout time.Duration
}

// Client talks to the remote sync backend.
type Client struct {
	baseURL     string
	deviceToken string
	callTimeout time.Duration
	http        *http.Client
	limiter     *ratelimit.KeyedRateLimiter
	logger      *slog.Logger
}

// New creates a gateway client. The http.Client carries no timeout of its
// own; every call derives a per-call deadline from CallTimeout so a stalled
// request can never wedge a sync cycle.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		deviceToken: cfg.DeviceToken,
		callTimeout: timeout,
		http:        &http.Client{},
		limiter:     ratelimit.New(defaultRPS, defaultBurst),
		logger:      logger.With("component", "gateway"),
	}
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// PushResult reports the remote outcome for one pushed record.
type PushResult struct {
	RemoteID string `json:"remote_id"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

// OK reports whether the record was accepted.
func (r PushResult) OK() bool { return r.Status == "ok" }

type pushRequest struct {
	Records []*domain.Record `json:"records"`
}

type pushResponse struct {
	Results []PushResult `json:"results"`
}

type pullResponse struct {
	Records []*domain.Record `json:"records"`
	// ServerTime is the backend clock at response time; it becomes the next
	// pull watermark so device clock skew cannot open a gap in the delta
	// stream.
	ServerTime time.Time `json:"server_time"`
}

// Identity is the backend's view of this device.
type Identity struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

// Push uploads a batch of dirty records for a table. The remote applies each
// record as an idempotent upsert keyed by remote id, so replaying a batch
// after a lost acknowledgement is safe.
//
// A response that acknowledges none of a non-empty batch is treated as a
// transport fault: the whole batch fails and stays dirty for the next cycle.
func (c *Client) Push(ctx context.Context, table domain.Table, records []*domain.Record) ([]PushResult, error) {
	if len(records) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(pushRequest{Records: records})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "encode push batch")
	}

	respBody, err := c.do(ctx, "push", http.MethodPost,
		fmt.Sprintf("/api/v1/sync/%s/batch", table), nil, body)
	if err != nil {
		return nil, err
	}

	var resp pushResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnavailable, "decode push response")
	}
	if len(resp.Results) == 0 {
		return nil, errors.Unavailablef("push of %d records to %s acknowledged nothing", len(records), table)
	}

	c.logger.Debug("pushed batch",
		"table", table,
		"sent", len(records),
		"acknowledged", len(resp.Results),
	)
	return resp.Results, nil
}

// Pull fetches records changed on the backend since the watermark. A nil
// watermark fetches the full table. Returns the records and the server time
// to use as the next watermark.
func (c *Client) Pull(ctx context.Context, table domain.Table, since *time.Time) ([]*domain.Record, time.Time, error) {
	query := url.Values{}
	if since != nil {
		query.Set("since", since.UTC().Format(time.RFC3339Nano))
	}

	respBody, err := c.do(ctx, "pull", http.MethodGet,
		fmt.Sprintf("/api/v1/sync/%s/changes", table), query, nil)
	if err != nil {
		return nil, time.Time{}, err
	}

	var resp pullResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, time.Time{}, errors.Wrap(err, errors.CodeUnavailable, "decode pull response")
	}

	watermark := resp.ServerTime
	if watermark.IsZero() {
		watermark = time.Now().UTC()
	}

	c.logger.Debug("pulled changes",
		"table", table,
		"received", len(resp.Records),
		"watermark", watermark,
	)
	return resp.Records, watermark, nil
}

// Identity fetches the backend's identity record for this device token.
func (c *Client) Identity(ctx context.Context) (*Identity, error) {
	respBody, err := c.do(ctx, "identity", http.MethodGet, "/api/v1/identity", nil, nil)
	if err != nil {
		return nil, err
	}
	var ident Identity
	if err := json.Unmarshal(respBody, &ident); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnavailable, "decode identity response")
	}
	return &ident, nil
}

// RegisterDevice announces a new device to the backend and returns the
// identity the backend assigned.
func (c *Client) RegisterDevice(ctx context.Context, deviceName string) (*Identity, error) {
	body, err := json.Marshal(map[string]string{"device_name": deviceName})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "encode register request")
	}
	respBody, err := c.do(ctx, "identity", http.MethodPost, "/api/v1/identity/register", nil, body)
	if err != nil {
		return nil, err
	}
	var ident Identity
	if err := json.Unmarshal(respBody, &ident); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnavailable, "decode register response")
	}
	return &ident, nil
}

// ProbeAvailability checks whether the backend is reachable. A sync cycle
// starts with this so an offline device fails fast instead of timing out
// table by table.
func (c *Client) ProbeAvailability(ctx context.Context) error {
	_, err := c.do(ctx, "probe", http.MethodGet, "/health", nil, nil)
	return err
}

// do executes one rate-limited, deadline-bounded request and maps the
// response status onto the error taxonomy.
func (c *Client) do(ctx context.Context, family, method, path string, query url.Values, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx, family); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnavailable, "rate limit wait")
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "create request")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "LeafwiseSync/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.deviceToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.deviceToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnavailable, "execute request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnavailable, "read response")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, errors.Unauthorizedf("backend rejected device token")
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NotFoundf("backend has no %s resource", family)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.Unavailablef("backend rate limited the device")
	case resp.StatusCode >= 500:
		return nil, errors.Unavailablef("backend error %d", resp.StatusCode)
	default:
		return nil, errors.Validationf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
}
