// Package lifecycle drives contacts from vendor sync through the technician follow-up
// conversation. It owns the persistence side of every conversation step and audits every SMS.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/conversation"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/util"
)

// Defaults for the lifecycle manager.
const (
	DefaultFollowUpDelay    = 24 * time.Hour
	DefaultReminderInterval = 2 * time.Hour
	DefaultMaxReminders     = 3
	DefaultBatchSize        = 100
)

// Opts configures a Manager.
type Opts struct {
	TechnicianPhone  string
	TechnicianName   string
	FollowUpDelay    time.Duration
	ReminderInterval time.Duration
	MaxReminders     int
	BatchSize        int
	Now              func() time.Time
}

// Option configures a Manager.
type Option func(*Opts)

// WithTechnician sets who receives the follow-up conversation.
func WithTechnician(phone, name string) Option {
	return func(o *Opts) {
		o.TechnicianPhone = phone
		o.TechnicianName = name
	}
}

// WithFollowUpDelay sets how long after sync a contact is followed up.
func WithFollowUpDelay(d time.Duration) Option {
	return func(o *Opts) { o.FollowUpDelay = d }
}

// WithReminders sets the idle interval before the current prompt is re-sent and the cap
// on re-sends. An interval of 0 disables reminders.
func WithReminders(interval time.Duration, max int) Option {
	return func(o *Opts) {
		o.ReminderInterval = interval
		o.MaxReminders = max
	}
}

// WithBatchSize caps the due follow-ups loaded per dispatch run.
func WithBatchSize(n int) Option {
	return func(o *Opts) { o.BatchSize = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Manager implements the contact lifecycle and the inbound reply pipeline.
type Manager struct {
	store store.Store
	msg   messaging.Service
	opts  Opts
}

// NewManager creates a Manager. A technician phone is required.
func NewManager(st store.Store, msg messaging.Service, opts ...Option) (*Manager, error) {
	cfg := Opts{
		FollowUpDelay:    DefaultFollowUpDelay,
		ReminderInterval: DefaultReminderInterval,
		MaxReminders:     DefaultMaxReminders,
		BatchSize:        DefaultBatchSize,
		Now:              time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TechnicianPhone == "" {
		return nil, fmt.Errorf("technician phone must be provided: %w", models.ErrEmptyPhone)
	}
	phone, err := util.NormalizePhone(cfg.TechnicianPhone)
	if err != nil {
		return nil, fmt.Errorf("technician phone: %w", models.ErrInvalidPhone)
	}
	cfg.TechnicianPhone = phone
	if cfg.FollowUpDelay < 0 {
		cfg.FollowUpDelay = DefaultFollowUpDelay
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	slog.Debug("Manager.NewManager: configured",
		"follow_up_delay", cfg.FollowUpDelay,
		"reminder_interval", cfg.ReminderInterval,
		"max_reminders", cfg.MaxReminders)
	return &Manager{store: st, msg: msg, opts: cfg}, nil
}

func (m *Manager) now() time.Time { return m.opts.Now().UTC() }

// TechnicianPhone returns the normalized technician number.
func (m *Manager) TechnicianPhone() string { return m.opts.TechnicianPhone }

// ScheduleFollowUp arms the follow-up timer for a NEW contact. Calling it again is a no-op.
func (m *Manager) ScheduleFollowUp(ctx context.Context, contactID string) (bool, error) {
	return m.ScheduleFollowUpAfter(ctx, contactID, m.opts.FollowUpDelay)
}

// ScheduleFollowUpAfter is ScheduleFollowUp with an explicit delay.
func (m *Manager) ScheduleFollowUpAfter(ctx context.Context, contactID string, delay time.Duration) (bool, error) {
	now := m.now()
	ok, err := m.store.ScheduleFollowUp(ctx, contactID, now.Add(delay), now)
	if err != nil {
		return false, fmt.Errorf("schedule follow-up for %s: %w", contactID, err)
	}
	if ok {
		slog.Info("Manager.ScheduleFollowUp: follow-up scheduled", "contact_id", contactID, "due_at", now.Add(delay))
	} else {
		slog.Debug("Manager.ScheduleFollowUp: contact not NEW, skipping", "contact_id", contactID)
	}
	return ok, nil
}

// DueFollowUps lists contacts whose follow-up is due at now.
func (m *Manager) DueFollowUps(ctx context.Context, now time.Time) ([]models.Contact, error) {
	return m.store.DueFollowUps(ctx, now, m.opts.BatchSize)
}

// PendingProjectCreations lists every contact awaiting project creation, least recently
// attempted first. The batch size does not apply so no pending contact is left out of a sweep.
func (m *Manager) PendingProjectCreations(ctx context.Context) ([]models.Contact, error) {
	return m.store.PendingProjectCreations(ctx, 0)
}

// DispatchFollowUp claims the contact, opens its conversation and asks the technician
// whether contact was made. Returns (false, nil) when another run already dispatched it.
// A send failure is audited and returned; the claim is not rolled back.
func (m *Manager) DispatchFollowUp(ctx context.Context, c models.Contact) (bool, error) {
	now := m.now()
	conv := &models.SMSConversation{
		Phone:         m.opts.TechnicianPhone,
		State:         models.StateAwaitingContactConfirmation,
		StartedAt:     now,
		LastMessageAt: now,
	}
	ok, err := m.store.ClaimFollowUp(ctx, c.ID, conv, now)
	if err != nil {
		return false, fmt.Errorf("claim follow-up for %s: %w", c.ID, err)
	}
	if !ok {
		slog.Debug("Manager.DispatchFollowUp: already dispatched", "contact_id", c.ID)
		return false, nil
	}
	slog.Info("Manager.DispatchFollowUp: conversation started", "contact_id", c.ID, "conversation_id", conv.ID)

	body := conversation.Render(conversation.TemplateContactConfirmation, m.params(c))
	if _, err := m.SendAudited(ctx, conv.ID, c.ID, conv.Phone, body); err != nil {
		return true, err
	}
	return true, nil
}

// DispatchDue dispatches every due contact. Per-contact failures are logged and counted;
// they never stop the batch.
func (m *Manager) DispatchDue(ctx context.Context, now time.Time) (dispatched int, failed int, err error) {
	due, err := m.DueFollowUps(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("load due follow-ups: %w", err)
	}
	for _, c := range due {
		ok, err := m.DispatchFollowUp(ctx, c)
		if err != nil {
			failed++
			slog.Error("Manager.DispatchDue: dispatch failed", "contact_id", c.ID, "error", err)
			continue
		}
		if ok {
			dispatched++
		}
	}
	if len(due) > 0 {
		slog.Info("Manager.DispatchDue: run complete", "due", len(due), "dispatched", dispatched, "failed", failed)
	}
	return dispatched, failed, nil
}

// ValidateAndCanonicalizeRecipient canonicalizes a phone number the way outbound sends do.
func (m *Manager) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return m.msg.ValidateAndCanonicalizeRecipient(recipient)
}

// SendAudited sends body to to and appends the outbound SMSMessage, successful or not.
// conversationID and contactID may be empty.
func (m *Manager) SendAudited(ctx context.Context, conversationID, contactID, to, body string) (string, error) {
	sid, sendErr := m.msg.SendMessage(ctx, to, body)
	msg := &models.SMSMessage{
		ConversationID:    conversationID,
		ContactID:         contactID,
		Direction:         models.DirectionOutbound,
		To:                to,
		Body:              body,
		ProviderMessageID: sid,
		Status:            models.MessageStatusSent,
		CreatedAt:         m.now(),
	}
	if sendErr != nil {
		msg.Status = models.MessageStatusFailed
		msg.Error = sendErr.Error()
		slog.Error("Manager.SendAudited: send failed", "to", to, "contact_id", contactID, "error", sendErr)
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		slog.Error("Manager.SendAudited: failed to audit message", "to", to, "error", err)
	}
	if sendErr != nil {
		if !errors.Is(sendErr, models.ErrGatewayFailure) {
			sendErr = fmt.Errorf("%w: %v", models.ErrGatewayFailure, sendErr)
		}
		return "", sendErr
	}
	return sid, nil
}

// NotifyTechnician renders tmpl for c and sends it to the technician through SendAudited.
func (m *Manager) NotifyTechnician(ctx context.Context, c models.Contact, tmpl conversation.TemplateID) (string, error) {
	return m.SendAudited(ctx, "", c.ID, m.opts.TechnicianPhone, conversation.Render(tmpl, m.params(c)))
}

// params fills template parameters for c, including the technician's name.
func (m *Manager) params(c models.Contact) conversation.Params {
	p := conversation.ParamsFor(c)
	p.Technician = m.opts.TechnicianName
	return p
}
