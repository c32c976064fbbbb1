// Package messaging delivers Bookline notifications: booking confirmations
// to callers and escalation alerts to tenants. Delivery is always driven
// through the store outbox so a crash between booking and notification never
// loses a message.
package messaging

import (
	"context"
	"errors"
	"regexp"
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service is stopped")

// phoneNumberRegex strips everything but digits during canonicalization.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. Each service implements its own recipient rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Stop stops the service; subsequent sends fail with ErrServiceStopped.
	Stop() error
}
