// Package store provides storage backends for Bookline.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/voicelane/bookline/internal/models"
)

const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveTenantConfig(cfg TenantConfig) error {
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
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(tenant_id) DO UPDATE SET flow_json = excluded.flow_json,
		     extra_stop_words = excluded.extra_stop_words,
		     alert_number = excluded.alert_number, updated_at = CURRENT_TIMESTAMP`,
		cfg.TenantID, string(flowJSON), string(stopWords), nilIfEmpty(cfg.AlertNumber),
	)
	if err != nil {
		slog.Error("SQLiteStore SaveTenantConfig failed", "error", err, "tenantID", cfg.TenantID)
		return fmt.Errorf("failed to save tenant config for %s: %w", cfg.TenantID, err)
	}
	slog.Debug("SQLiteStore SaveTenantConfig succeeded", "tenantID", cfg.TenantID)
	return nil
}

func (s *SQLiteStore) GetTenantConfig(tenantID string) (*TenantConfig, error) {
	row := s.db.QueryRow(
		`SELECT tenant_id, flow_json, extra_stop_words, alert_number, updated_at FROM tenant_configs WHERE tenant_id = ?`,
		tenantID,
	)
	cfg, err := scanTenantConfigRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetTenantConfig failed", "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to load tenant config for %s: %w", tenantID, err)
	}
	return cfg, nil
}

func (s *SQLiteStore) SaveConversationState(state *models.ConversationState) error {
	if state == nil || state.SessionID == "" {
		return models.ErrEmptySessionID
	}
	snapshot, err := state.Snapshot()
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO conversation_states (session_id, tenant_id, state_json, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(session_id) DO UPDATE SET state_json = excluded.state_json, updated_at = CURRENT_TIMESTAMP`,
		state.SessionID, state.TenantID, snapshot,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveConversationState failed", "error", err, "sessionID", state.SessionID)
		return fmt.Errorf("failed to save conversation state for %s: %w", state.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) GetConversationState(sessionID string) (*models.ConversationState, error) {
	var snapshot string
	err := s.db.QueryRow(
		`SELECT state_json FROM conversation_states WHERE session_id = ?`, sessionID,
	).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversationState failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to load conversation state for %s: %w", sessionID, err)
	}
	return models.RestoreConversationState(snapshot)
}

func (s *SQLiteStore) DeleteConversationState(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation state for %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) AddBooking(b models.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO bookings (id, session_id, tenant_id, status, name, phone, address, time_window, service_type, place_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.SessionID, b.TenantID, b.Status, b.Name, b.Phone, b.Address, b.TimeWindow,
		nilIfEmpty(b.ServiceType), nilIfEmpty(b.PlaceID), b.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore AddBooking failed", "error", err, "bookingID", b.ID)
		return fmt.Errorf("failed to insert booking %s: %w", b.ID, err)
	}
	slog.Debug("SQLiteStore AddBooking succeeded", "bookingID", b.ID, "tenantID", b.TenantID)
	return nil
}

func (s *SQLiteStore) GetBooking(id string) (*models.Booking, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, tenant_id, status, name, phone, address, time_window, service_type, place_id, created_at
		 FROM bookings WHERE id = ?`, id,
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

func (s *SQLiteStore) ListBookings(tenantID string) ([]models.Booking, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, tenant_id, status, name, phone, address, time_window, service_type, place_id, created_at
		 FROM bookings WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID,
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

func (s *SQLiteStore) UpdateBookingStatus(id string, status models.BookingStatus) error {
	res, err := s.db.Exec(`UPDATE bookings SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update booking %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrBookingNotFound
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
