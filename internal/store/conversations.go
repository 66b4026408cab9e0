package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

var _ ConversationRepo = (*sqlStore)(nil)

func (s *sqlStore) GetConversation(ctx context.Context, id string) (*models.SMSConversation, error) {
	return s.oneConversation(ctx, `SELECT `+conversationColumns+` FROM sms_conversations WHERE id = ?`, id)
}

func (s *sqlStore) ActiveConversationByPhone(ctx context.Context, phone string) (*models.SMSConversation, error) {
	return s.oneConversation(ctx, `SELECT `+conversationColumns+` FROM sms_conversations
		WHERE phone = ? AND state <> ? ORDER BY last_message_at DESC, started_at DESC LIMIT 1`,
		phone, string(models.StateCompleted))
}

func (s *sqlStore) ActiveConversationForContact(ctx context.Context, contactID string) (*models.SMSConversation, error) {
	return s.oneConversation(ctx, `SELECT `+conversationColumns+` FROM sms_conversations
		WHERE contact_id = ? AND state <> ? LIMIT 1`,
		contactID, string(models.StateCompleted))
}

func (s *sqlStore) oneConversation(ctx context.Context, query string, args ...any) (*models.SMSConversation, error) {
	c, err := scanConversation(s.db.QueryRowContext(ctx, s.q(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (s *sqlStore) ListConversations(ctx context.Context, activeOnly bool, limit int) ([]models.SMSConversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM sms_conversations`
	var args []any
	if activeOnly {
		query += ` WHERE state <> ?`
		args = append(args, string(models.StateCompleted))
	}
	query += ` ORDER BY last_message_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryConversations(ctx, query, args...)
}

func (s *sqlStore) queryConversations(ctx context.Context, query string, args ...any) ([]models.SMSConversation, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()
	var out []models.SMSConversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *sqlStore) ApplyStep(ctx context.Context, id string, expected, next models.ConversationState, upd models.ContactUpdate, now time.Time) error {
	now = now.UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var contactID string
		err := tx.QueryRowContext(ctx, s.q(`SELECT contact_id FROM sms_conversations WHERE id = ?`), id).Scan(&contactID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("conversation %s: %w", id, models.ErrNoActiveConversation)
		}
		if err != nil {
			return fmt.Errorf("load conversation: %w", err)
		}

		sets := []string{"state = ?", "reminders_sent = 0", "last_message_at = ?"}
		args := []any{string(next), now}
		if upd.Outcome != nil {
			sets = append(sets, "outcome = ?")
			args = append(args, string(*upd.Outcome))
		}
		if next.IsTerminal() {
			sets = append(sets, "completed_at = ?")
			args = append(args, now)
		}
		args = append(args, id, string(expected))
		res, err := tx.ExecContext(ctx, s.q(`UPDATE sms_conversations SET `+strings.Join(sets, ", ")+
			` WHERE id = ? AND state = ?`), args...)
		if err != nil {
			return fmt.Errorf("advance conversation: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.ErrTransitionConflict
		}

		if upd.IsEmpty() {
			return nil
		}
		csets, cargs := contactUpdateSets(upd, now)
		cargs = append(cargs, contactID)
		if _, err := tx.ExecContext(ctx, s.q(`UPDATE contacts SET `+strings.Join(csets, ", ")+` WHERE id = ?`), cargs...); err != nil {
			return fmt.Errorf("update contact: %w", err)
		}
		return nil
	})
}

// contactUpdateSets renders the non-nil fields of upd as SET clauses.
func contactUpdateSets(upd models.ContactUpdate, now time.Time) ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.Outcome != nil {
		add("outcome", string(*upd.Outcome))
	}
	if upd.ProjectType != nil {
		add("project_type", *upd.ProjectType)
	}
	if upd.PropertyType != nil {
		add("property_type", *upd.PropertyType)
	}
	if upd.ResidentialSubtype != nil {
		add("residential_subtype", *upd.ResidentialSubtype)
	}
	if upd.HasInsurance != nil {
		add("has_insurance", *upd.HasInsurance)
	}
	if upd.InsuranceCompany != nil {
		add("insurance_company", *upd.InsuranceCompany)
	}
	if upd.ReferralSource != nil {
		add("referral_source", *upd.ReferralSource)
	}
	if upd.ProjectCreationNeeded != nil {
		add("project_creation_needed", *upd.ProjectCreationNeeded)
	}
	if upd.Completed {
		add("completed_at", now)
	}
	add("updated_at", now)
	return sets, args
}

func (s *sqlStore) StalledConversations(ctx context.Context, idleSince time.Time, maxReminders int) ([]models.SMSConversation, error) {
	return s.queryConversations(ctx, `SELECT `+conversationColumns+` FROM sms_conversations
		WHERE state <> ? AND last_message_at <= ? AND reminders_sent < ? ORDER BY last_message_at`,
		string(models.StateCompleted), idleSince.UTC(), maxReminders)
}

func (s *sqlStore) RecordReminder(ctx context.Context, id string, state models.ConversationState, sent int, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE sms_conversations SET reminders_sent = reminders_sent + 1, last_message_at = ?
		WHERE id = ? AND state = ? AND reminders_sent = ?`),
		now.UTC(), id, string(state), sent)
	if err != nil {
		return false, fmt.Errorf("record reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record reminder rows affected: %w", err)
	}
	return n > 0, nil
}
