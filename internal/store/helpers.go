package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/voicelane/bookline/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanBooking scans a Booking from sql.Rows.
func scanBooking(rows *sql.Rows) (models.Booking, error) {
	var b models.Booking
	var serviceType, placeID sql.NullString
	err := rows.Scan(
		&b.ID, &b.SessionID, &b.TenantID, &b.Status, &b.Name, &b.Phone,
		&b.Address, &b.TimeWindow, &serviceType, &placeID, &b.CreatedAt,
	)
	if err != nil {
		return b, fmt.Errorf("scan booking failed: %w", err)
	}
	b.ServiceType = serviceType.String
	b.PlaceID = placeID.String
	return b, nil
}

// scanBookingRow scans a Booking from a single sql.Row.
func scanBookingRow(row *sql.Row) (*models.Booking, error) {
	var b models.Booking
	var serviceType, placeID sql.NullString
	err := row.Scan(
		&b.ID, &b.SessionID, &b.TenantID, &b.Status, &b.Name, &b.Phone,
		&b.Address, &b.TimeWindow, &serviceType, &placeID, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.ServiceType = serviceType.String
	b.PlaceID = placeID.String
	return &b, nil
}

// scanTenantConfigRow scans a TenantConfig from a single sql.Row.
func scanTenantConfigRow(row *sql.Row) (*TenantConfig, error) {
	var cfg TenantConfig
	var flowJSON string
	var stopWords, alertNumber sql.NullString
	if err := row.Scan(&cfg.TenantID, &flowJSON, &stopWords, &alertNumber, &cfg.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(flowJSON), &cfg.Flow); err != nil {
		return nil, fmt.Errorf("unmarshal flow for tenant %s failed: %w", cfg.TenantID, err)
	}
	if stopWords.Valid && stopWords.String != "" {
		if err := json.Unmarshal([]byte(stopWords.String), &cfg.ExtraStopWords); err != nil {
			return nil, fmt.Errorf("unmarshal stop words for tenant %s failed: %w", cfg.TenantID, err)
		}
	}
	cfg.AlertNumber = alertNumber.String
	return &cfg, nil
}

// scanOutboxMessage scans an OutboxMessage from sql.Rows.
func scanOutboxMessage(rows *sql.Rows) (OutboxMessage, error) {
	var m OutboxMessage
	var dedupeKey, lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := rows.Scan(
		&m.ID, &m.TenantID, &m.Kind, &m.PayloadJSON, &m.Status, &m.Attempts,
		&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan outbox message failed: %w", err)
	}
	m.DedupeKey = dedupeKey.String
	m.LastError = lastError.String
	if nextAttemptAt.Valid {
		m.NextAttemptAt = &nextAttemptAt.Time
	}
	if lockedAt.Valid {
		m.LockedAt = &lockedAt.Time
	}
	return m, nil
}
