package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/conversation"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/util"
)

// HandleInbound processes one technician reply: dedup, resolve the conversation, parse,
// advance, persist and answer. ErrDuplicateMessage and ErrNoActiveConversation mean the
// message was accepted and deliberately not acted on. Any other error leaves the message
// unrecorded so a redelivery is processed again.
func (m *Manager) HandleInbound(ctx context.Context, in models.InboundSMS) (err error) {
	from := strings.TrimSpace(in.From)
	if normalized, err := util.NormalizePhone(from); err == nil {
		from = normalized
	}

	first, err := m.store.RecordInbound(ctx, in.MessageSID, from)
	if err != nil {
		return fmt.Errorf("record inbound %s: %w", in.MessageSID, err)
	}
	if !first {
		slog.Info("Manager.HandleInbound: duplicate message ignored", "message_sid", in.MessageSID, "from", from)
		return models.ErrDuplicateMessage
	}
	defer func() { m.finishInbound(ctx, in.MessageSID, err) }()

	inbound := &models.SMSMessage{
		Direction:         models.DirectionInbound,
		From:              from,
		Body:              in.Body,
		ProviderMessageID: in.MessageSID,
		Status:            models.MessageStatusReceived,
		CreatedAt:         m.now(),
	}

	conv, err := m.store.ActiveConversationByPhone(ctx, from)
	if err != nil {
		return fmt.Errorf("resolve conversation for %s: %w", from, err)
	}
	if conv == nil {
		slog.Warn("Manager.HandleInbound: no active conversation for sender", "from", from, "message_sid", in.MessageSID)
		m.appendMessage(ctx, inbound)
		return models.ErrNoActiveConversation
	}
	inbound.ConversationID = conv.ID
	inbound.ContactID = conv.ContactID
	m.appendMessage(ctx, inbound)

	if conv.State.IsTerminal() {
		slog.Info("Manager.HandleInbound: reply to completed conversation", "conversation_id", conv.ID)
		return nil
	}

	contact, err := m.store.GetContact(ctx, conv.ContactID)
	if err != nil {
		return fmt.Errorf("load contact %s: %w", conv.ContactID, err)
	}
	if contact == nil {
		return fmt.Errorf("conversation %s: %w", conv.ID, models.ErrContactNotFound)
	}

	tok := conversation.Parse(in.Body, conversation.ExpectedShape(conv.State))
	step, err := conversation.Advance(conv.State, tok, *contact)
	if err != nil {
		return fmt.Errorf("advance conversation %s: %w", conv.ID, err)
	}
	if step.Reprompt {
		slog.Info("Manager.HandleInbound: reply not recognized, re-prompting",
			"conversation_id", conv.ID, "state", conv.State, "error", models.ErrParseFailure)
	}

	err = m.store.ApplyStep(ctx, conv.ID, conv.State, step.Next, step.Updates, m.now())
	if errors.Is(err, models.ErrTransitionConflict) {
		slog.Warn("Manager.HandleInbound: conversation advanced concurrently, discarding reply",
			"conversation_id", conv.ID, "expected_state", conv.State)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply step for %s: %w", conv.ID, err)
	}
	if step.Next != conv.State {
		slog.Info("Manager.HandleInbound: conversation advanced",
			"conversation_id", conv.ID, "from", conv.State, "to", step.Next)
	}

	if step.Template == conversation.TemplateNone {
		return nil
	}
	step.Params.Technician = m.opts.TechnicianName
	body := conversation.Render(step.Template, step.Params)
	if _, err := m.SendAudited(ctx, conv.ID, conv.ContactID, conv.Phone, body); err != nil {
		// The step is committed; the reply is audited as failed and the reminder sweep re-sends the prompt.
		slog.Error("Manager.HandleInbound: reply send failed", "conversation_id", conv.ID, "error", err)
	}
	return nil
}

func (m *Manager) appendMessage(ctx context.Context, msg *models.SMSMessage) {
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		slog.Error("Manager.appendMessage: failed to audit message", "direction", msg.Direction, "error", err)
	}
}

// finishInbound marks the message processed, or releases its dedup row when handling failed
// before the conversation step was committed.
func (m *Manager) finishInbound(ctx context.Context, messageSID string, handleErr error) {
	ctx = context.WithoutCancel(ctx)
	if handleErr == nil || errors.Is(handleErr, models.ErrNoActiveConversation) {
		if err := m.store.MarkProcessed(ctx, messageSID); err != nil {
			slog.Error("Manager.finishInbound: mark processed failed", "message_sid", messageSID, "error", err)
		}
		return
	}
	if err := m.store.ReleaseInbound(ctx, messageSID); err != nil {
		slog.Error("Manager.finishInbound: release failed", "message_sid", messageSID, "error", err)
	}
}
