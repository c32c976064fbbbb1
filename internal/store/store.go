// Package store provides storage backends for Bookline: tenant flow
// configuration, per-call conversation state, completed bookings, and the
// durable notification outbox.
//
// Three backends implement the same Store interface: in-memory for tests and
// dev, SQLite for single-node deployments, and PostgreSQL for everything else.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/voicelane/bookline/internal/models"
)

// TenantConfig is the stored booking configuration for one tenant.
type TenantConfig struct {
	TenantID       string      `json:"tenant_id"`
	Flow           models.Flow `json:"flow"`
	ExtraStopWords []string    `json:"extra_stop_words,omitempty"`
	// AlertNumber receives escalation alerts for this tenant.
	AlertNumber string    `json:"alert_number,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is the persistence interface the API server and engine host depend on.
type Store interface {
	SaveTenantConfig(cfg TenantConfig) error
	GetTenantConfig(tenantID string) (*TenantConfig, error)

	SaveConversationState(state *models.ConversationState) error
	GetConversationState(sessionID string) (*models.ConversationState, error)
	DeleteConversationState(sessionID string) error

	AddBooking(b models.Booking) error
	GetBooking(id string) (*models.Booking, error)
	ListBookings(tenantID string) ([]models.Booking, error)
	UpdateBookingStatus(id string, status models.BookingStatus) error

	Close() error
}

// Opts holds configuration for store construction.
type Opts struct {
	DSN string
}

// Option configures store construction.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL DSNs
// use URL or key=value forms; everything else is treated as a SQLite path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore keeps everything in process memory. Used by tests and
// single-process development runs; data does not survive a restart.
type InMemoryStore struct {
	mu       sync.RWMutex
	tenants  map[string]TenantConfig
	states   map[string]string // sessionID -> snapshot JSON
	bookings map[string]models.Booking
	outbox   []OutboxMessage
	inbound  map[string]DedupRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tenants:  make(map[string]TenantConfig),
		states:   make(map[string]string),
		bookings: make(map[string]models.Booking),
		inbound:  make(map[string]DedupRecord),
	}
}

func (s *InMemoryStore) SaveTenantConfig(cfg TenantConfig) error {
	if cfg.TenantID == "" {
		return models.ErrEmptyTenantID
	}
	if err := cfg.Flow.Validate(); err != nil {
		return err
	}
	cfg.UpdatedAt = time.Now()
	s.mu.Lock()
	s.tenants[cfg.TenantID] = cfg
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) GetTenantConfig(tenantID string) (*TenantConfig, error) {
	s.mu.RLock()
	cfg, ok := s.tenants[tenantID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (s *InMemoryStore) SaveConversationState(state *models.ConversationState) error {
	if state == nil || state.SessionID == "" {
		return models.ErrEmptySessionID
	}
	snapshot, err := state.Snapshot()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.states[state.SessionID] = snapshot
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) GetConversationState(sessionID string) (*models.ConversationState, error) {
	s.mu.RLock()
	snapshot, ok := s.states[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return models.RestoreConversationState(snapshot)
}

func (s *InMemoryStore) DeleteConversationState(sessionID string) error {
	s.mu.Lock()
	delete(s.states, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) AddBooking(b models.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.bookings[b.ID] = b
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) GetBooking(id string) (*models.Booking, error) {
	s.mu.RLock()
	b, ok := s.bookings[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s *InMemoryStore) ListBookings(tenantID string) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if tenantID == "" || b.TenantID == tenantID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *InMemoryStore) UpdateBookingStatus(id string, status models.BookingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return models.ErrBookingNotFound
	}
	b.Status = status
	s.bookings[id] = b
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
