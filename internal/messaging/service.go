// Package messaging provides the outbound SMS gateway used by the lifecycle, sweep and task reminders.
package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/twiliosms"
	"github.com/BTreeMap/LeadPipe/internal/util"
)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient returns the E.164 form of recipient.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends body to a recipient and returns the provider message id.
	// Provider failures wrap models.ErrGatewayFailure.
	SendMessage(ctx context.Context, to string, body string) (string, error)
}

// SMSService implements Service on top of a twiliosms.Sender.
type SMSService struct {
	client twiliosms.Sender
}

var _ Service = (*SMSService)(nil)

// NewSMSService creates a new SMSService wrapping the given sender.
func NewSMSService(client twiliosms.Sender) *SMSService {
	return &SMSService{client: client}
}

func (s *SMSService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyPhone
	}
	canonical, err := util.NormalizePhone(recipient)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalidPhone, err)
	}
	if canonical != recipient {
		slog.Debug("SMSService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

func (s *SMSService) SendMessage(ctx context.Context, to string, body string) (string, error) {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("SMSService.SendMessage: invalid recipient", "error", err, "to", to)
		return "", err
	}

	sid, err := s.client.SendSMS(ctx, canonicalTo, body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrGatewayFailure, err)
	}
	slog.Debug("SMSService.SendMessage: sent", "to", canonicalTo, "sid", sid, "body_length", len(body))
	return sid, nil
}
