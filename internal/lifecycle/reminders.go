package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/conversation"
)

// RemindStalled re-sends the current prompt of conversations idle for the reminder interval,
// up to the configured number of times. Returns how many reminders were sent.
func (m *Manager) RemindStalled(ctx context.Context, now time.Time) (int, error) {
	if m.opts.ReminderInterval <= 0 || m.opts.MaxReminders <= 0 {
		return 0, nil
	}
	stalled, err := m.store.StalledConversations(ctx, now.Add(-m.opts.ReminderInterval), m.opts.MaxReminders)
	if err != nil {
		return 0, fmt.Errorf("load stalled conversations: %w", err)
	}

	sent := 0
	for _, conv := range stalled {
		contact, err := m.store.GetContact(ctx, conv.ContactID)
		if err != nil || contact == nil {
			slog.Error("Manager.RemindStalled: contact unavailable", "conversation_id", conv.ID, "error", err)
			continue
		}
		ok, err := m.store.RecordReminder(ctx, conv.ID, conv.State, conv.RemindersSent, now)
		if err != nil {
			slog.Error("Manager.RemindStalled: record reminder failed", "conversation_id", conv.ID, "error", err)
			continue
		}
		if !ok {
			// A reply or another run got there first.
			continue
		}
		body := conversation.Render(conversation.Prompt(conv.State), m.params(*contact))
		if _, err := m.SendAudited(ctx, conv.ID, conv.ContactID, conv.Phone, body); err != nil {
			continue
		}
		sent++
		slog.Info("Manager.RemindStalled: reminder sent",
			"conversation_id", conv.ID, "state", conv.State, "reminder", conv.RemindersSent+1)
	}
	return sent, nil
}
