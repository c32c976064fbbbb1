// Package geocode validates assembled service addresses against an external
// address validation HTTP API. Validation is advisory: every failure path
// returns a skip result and the engine keeps the caller's raw address.
package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/voicelane/bookline/internal/flow"
)

// DefaultTimeout bounds one validation call. Address validation happens
// mid-call, so a slow provider must not stall the turn.
const DefaultTimeout = 3 * time.Second

var _ flow.AddressValidator = (*Client)(nil)

// Opts holds configuration for the geocode client.
type Opts struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option configures the geocode client.
type Option func(*Opts)

// WithBaseURL sets the validation API base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithAPIKey sets the bearer token for the validation API.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient overrides the HTTP client, primarily for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client calls the address validation API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a geocode client. BaseURL is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("geocode base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

type validateRequest struct {
	Address  string `json:"address"`
	TenantID string `json:"tenant_id,omitempty"`
}

type validateResponse struct {
	Validated        bool              `json:"validated"`
	Confidence       string            `json:"confidence"`
	Normalized       bool              `json:"normalized"`
	FormattedAddress string            `json:"formatted_address"`
	Components       map[string]string `json:"components"`
	NeedsUnit        bool              `json:"needs_unit"`
	PlaceID          string            `json:"place_id"`
}

// Validate normalizes and scores an assembled address. It never returns an
// error: provider failures, timeouts, and malformed responses all come back
// as Success false so the raw address stays in play.
func (c *Client) Validate(ctx context.Context, rawAddress string, opts flow.GeocodeOptions) flow.GeocodeResult {
	if !opts.Enabled || rawAddress == "" {
		return flow.GeocodeResult{}
	}

	body, err := json.Marshal(validateRequest{Address: rawAddress, TenantID: opts.TenantID})
	if err != nil {
		slog.Error("Geocode.Validate: failed to marshal request", "error", err)
		return flow.GeocodeResult{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/address:validate", bytes.NewReader(body))
	if err != nil {
		slog.Error("Geocode.Validate: failed to build request", "error", err)
		return flow.GeocodeResult{}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("Geocode.Validate: request failed, keeping raw address", "error", err, "tenantID", opts.TenantID)
		return flow.GeocodeResult{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("Geocode.Validate: non-OK status, keeping raw address", "status", resp.StatusCode, "tenantID", opts.TenantID)
		return flow.GeocodeResult{}
	}

	var parsed validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		slog.Warn("Geocode.Validate: failed to decode response, keeping raw address", "error", err)
		return flow.GeocodeResult{}
	}

	result := flow.GeocodeResult{
		Success:          true,
		Validated:        parsed.Validated,
		Confidence:       parseConfidence(parsed.Confidence),
		Normalized:       parsed.Normalized,
		FormattedAddress: parsed.FormattedAddress,
		Components:       parsed.Components,
		NeedsUnit:        parsed.NeedsUnit,
		PlaceID:          parsed.PlaceID,
	}
	slog.Debug("Geocode.Validate: validated address", "validated", result.Validated, "confidence", result.Confidence, "needsUnit", result.NeedsUnit)
	return result
}

func parseConfidence(s string) flow.GeocodeConfidence {
	switch flow.GeocodeConfidence(s) {
	case flow.GeocodeConfidenceHigh, flow.GeocodeConfidenceMedium, flow.GeocodeConfidenceLow:
		return flow.GeocodeConfidence(s)
	default:
		return flow.GeocodeConfidenceLow
	}
}
