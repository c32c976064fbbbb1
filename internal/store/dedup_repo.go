// Package store provides the DedupRepo interface for inbound turn
// deduplication. Voice webhooks retry on timeouts; replaying a turn against
// the engine would double-apply slot writes.
package store

import (
	"time"
)

// DedupRecord represents an inbound turn deduplication record.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	SessionID   string     `json:"session_id"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo defines the interface for inbound turn deduplication.
type DedupRepo interface {
	// IsDuplicate checks if a turn ID has already been processed.
	// Returns true if the turn was already seen.
	IsDuplicate(messageID string) (bool, error)

	// RecordInbound inserts a new inbound turn record. Returns false if the
	// turn was already recorded (duplicate).
	RecordInbound(messageID, sessionID string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a turn.
	MarkProcessed(messageID string) error
}
