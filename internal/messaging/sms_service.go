package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voicelane/bookline/internal/twiliosms"
)

// SMSService implements Service over the Twilio SMS client.
type SMSService struct {
	client  twiliosms.SMSSender
	mu      sync.RWMutex
	stopped bool
}

// NewSMSService creates an SMSService wrapping the given sender.
func NewSMSService(client twiliosms.SMSSender) *SMSService {
	return &SMSService{client: client}
}

// ValidateAndCanonicalizeRecipient strips non-digits and requires a 10-digit
// US number or an 11-digit number with a leading country code 1. The result
// is E.164 formatted.
func (s *SMSService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if len(canonical) == 11 && canonical[0] == '1' {
		canonical = canonical[1:]
	}
	if len(canonical) != 10 {
		return "", fmt.Errorf("invalid phone number: %q does not canonicalize to 10 digits", recipient)
	}
	if recipient != canonical {
		slog.Debug("SMSService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return "+1" + canonical, nil
}

// SendMessage canonicalizes the recipient and sends an SMS.
func (s *SMSService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("SMSService.SendMessage: invalid recipient", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// Stop stops the service.
func (s *SMSService) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}
