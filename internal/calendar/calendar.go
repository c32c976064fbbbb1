// Package calendar finds bookable appointment windows for a tenant. The HTTP
// client talks to the tenant's scheduling system; BusinessHoursLookup generates
// windows locally for tenants without one. Both degrade to a fallback result
// instead of returning errors, so the engine can always fall back to
// open-ended preference capture.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/voicelane/bookline/internal/flow"
)

// DefaultTimeout bounds one availability lookup. The lookup happens mid-call
// while the caller is waiting on the time question.
const DefaultTimeout = 3 * time.Second

var (
	_ flow.CalendarLookup = (*Client)(nil)
	_ flow.CalendarLookup = (*BusinessHoursLookup)(nil)
)

// Opts holds configuration for the calendar client.
type Opts struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option configures the calendar client.
type Option func(*Opts)

// WithBaseURL sets the scheduling API base URL.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithAPIKey sets the bearer token for the scheduling API.
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

// Client looks up availability from an external scheduling API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a calendar client. BaseURL is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("calendar base URL is required")
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

type availabilityResponse struct {
	Slots []struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
		Label string    `json:"label"`
	} `json:"slots"`
}

// FindAvailableSlots queries the scheduling API for bookable windows. Any
// failure returns a fallback result; availability is an enrichment, never a
// gate on collecting the caller's preference.
func (c *Client) FindAvailableSlots(ctx context.Context, tenantID string, from time.Time, serviceType string) flow.CalendarResult {
	q := url.Values{}
	q.Set("tenant_id", tenantID)
	q.Set("from", from.Format(time.RFC3339))
	if serviceType != "" {
		q.Set("service_type", serviceType)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/availability?"+q.Encode(), nil)
	if err != nil {
		slog.Error("Calendar.FindAvailableSlots: failed to build request", "error", err)
		return flow.CalendarResult{Fallback: true, Reason: "request_error"}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("Calendar.FindAvailableSlots: lookup failed, degrading to open-ended capture", "error", err, "tenantID", tenantID)
		return flow.CalendarResult{Fallback: true, Reason: "lookup_failed"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("Calendar.FindAvailableSlots: non-OK status", "status", resp.StatusCode, "tenantID", tenantID)
		return flow.CalendarResult{Fallback: true, Reason: "lookup_failed"}
	}

	var parsed availabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		slog.Warn("Calendar.FindAvailableSlots: failed to decode response", "error", err)
		return flow.CalendarResult{Fallback: true, Reason: "bad_response"}
	}

	result := flow.CalendarResult{}
	for _, s := range parsed.Slots {
		result.Slots = append(result.Slots, flow.CalendarSlot{Start: s.Start, End: s.End, Label: s.Label})
	}
	if len(result.Slots) == 0 {
		result.Fallback = true
		result.Reason = "no_availability"
	}
	return result
}

// BusinessHoursLookup generates morning and afternoon windows from fixed
// business hours. It serves tenants with no scheduling system connected.
type BusinessHoursLookup struct {
	// OpenHour and CloseHour bound the working day, in the Location's clock.
	OpenHour  int
	CloseHour int
	// DaysAhead is how many days of windows to offer, starting tomorrow.
	DaysAhead int
	Location  *time.Location
}

// NewBusinessHoursLookup creates a lookup with 8-17 working hours over the
// next three days.
func NewBusinessHoursLookup(loc *time.Location) *BusinessHoursLookup {
	if loc == nil {
		loc = time.Local
	}
	return &BusinessHoursLookup{OpenHour: 8, CloseHour: 17, DaysAhead: 3, Location: loc}
}

func (b *BusinessHoursLookup) FindAvailableSlots(_ context.Context, _ string, from time.Time, _ string) flow.CalendarResult {
	var slots []flow.CalendarSlot
	day := from.In(b.Location)
	for i := 1; i <= b.DaysAhead; i++ {
		d := day.AddDate(0, 0, i)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		morningEnd := 12
		if b.CloseHour < morningEnd {
			morningEnd = b.CloseHour
		}
		if b.OpenHour < morningEnd {
			slots = append(slots, flow.CalendarSlot{
				Start: time.Date(d.Year(), d.Month(), d.Day(), b.OpenHour, 0, 0, 0, b.Location),
				End:   time.Date(d.Year(), d.Month(), d.Day(), morningEnd, 0, 0, 0, b.Location),
				Label: d.Weekday().String() + " morning",
			})
		}
		if b.CloseHour > 12 {
			slots = append(slots, flow.CalendarSlot{
				Start: time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, b.Location),
				End:   time.Date(d.Year(), d.Month(), d.Day(), b.CloseHour, 0, 0, 0, b.Location),
				Label: d.Weekday().String() + " afternoon",
			})
		}
	}
	if len(slots) == 0 {
		return flow.CalendarResult{Fallback: true, Reason: "no_availability"}
	}
	return flow.CalendarResult{Slots: slots}
}
