// Package store provides storage backends for Bookline.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/voicelane/bookline/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveTenantConfig(cfg TenantConfig) error {
	if cfg.TenantID == "" {
		return models.ErrEmptyTenantID
	}
	if err := cfg.Flow.Validate(); err != nil {
		return fmt.Errorf("invalid flow for tenant %s: %w", cfg.TenantID, err)
	}
	flowJSON, err := json.Marshal(cfg.Flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow for tenant %s: %w", cfg.TenantID, err)
	}
	stopWords, err := json.Marshal(cfg.ExtraStopWords)
	if err != nil {
		return fmt.Errorf("failed to marshal stop words for tenant %s: %w", cfg.TenantID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO tenant_configs (tenant_id, flow_json, extra_stop_words, alert_number, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (tenant_id) DO UPDATE SET flow_json = EXCLUDED.flow_json,
		     extra_stop_words = EXCLUDED.extra_stop_words,
		     alert_number = EXCLUDED.alert_number, updated_at = NOW()`,
		cfg.TenantID, string(flowJSON), string(stopWords), nilIfEmpty(cfg.AlertNumber),
	)
	if err != nil {
		slog.Error("PostgresStore SaveTenantConfig failed", "error", err, "tenantID", cfg.TenantID)
		return fmt.Errorf("failed to save tenant config for %s: %w", cfg.TenantID, err)
	}
	return nil
}

func (s *PostgresStore) GetTenantConfig(tenantID string) (*TenantConfig, error) {
	row := s.db.QueryRow(
		`SELECT tenant_id, flow_json, extra_stop_words, alert_number, updated_at FROM tenant_configs WHERE tenant_id = $1`,
		tenantID,
	)
	cfg, err := scanTenantConfigRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetTenantConfig failed", "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to load tenant config for %s: %w", tenantID, err)
	}
	return cfg, nil
}

func (s *PostgresStore) SaveConversationState(state *models.ConversationState) error {
	if state == nil || state.SessionID == "" {
		return models.ErrEmptySessionID
	}
	snapshot, err := state.Snapshot()
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO conversation_states (session_id, tenant_id, state_json, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (session_id) DO UPDATE SET state_json = EXCLUDED.state_json, updated_at = NOW()`,
		state.SessionID, state.TenantID, snapshot,
	)
	if err != nil {
		slog.Error("PostgresStore SaveConversationState failed", "error", err, "sessionID", state.SessionID)
		return fmt.Errorf("failed to save conversation state for %s: %w", state.SessionID, err)
	}
	return nil
}

func (s *PostgresStore) GetConversationState(sessionID string) (*models.ConversationState, error) {
	var snapshot string
	err := s.db.QueryRow(
		`SELECT state_json FROM conversation_states WHERE session_id = $1`, sessionID,
	).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversationState failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to load conversation state for %s: %w", sessionID, err)
	}
	return models.RestoreConversationState(snapshot)
}

func (s *PostgresStore) DeleteConversationState(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation state for %s: %w", sessionID, err)
	}
	return nil
}

func (s *PostgresStore) AddBooking(b models.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO bookings (id, session_id, tenant_id, status, name, phone, address, time_window, service_type, place_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.SessionID, b.TenantID, b.Status, b.Name, b.Phone, b.Address, b.TimeWindow,
		nilIfEmpty(b.ServiceType), nilIfEmpty(b.PlaceID), b.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore AddBooking failed", "error", err, "bookingID", b.ID)
		return fmt.Errorf("failed to insert booking %s: %w", b.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetBooking(id string) (*models.Booking, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, tenant_id, status, name, phone, address, time_window, service_type, place_id, created_at
		 FROM bookings WHERE id = $1`, id,
	)
	b, err := scanBookingRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking %s: %w", id, err)
	}
	return b, nil
}

func (s *PostgresStore) ListBookings(tenantID string) ([]models.Booking, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, tenant_id, status, name, phone, address, time_window, service_type, place_id, created_at
		 FROM bookings WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings for %s: %w", tenantID, err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate booking rows: %w", err)
	}
	return bookings, nil
}

func (s *PostgresStore) UpdateBookingStatus(id string, status models.BookingStatus) error {
	res, err := s.db.Exec(`UPDATE bookings SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update booking %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrBookingNotFound
	}
	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
