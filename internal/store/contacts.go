package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

var _ ContactRepo = (*sqlStore)(nil)

// errClaimLost aborts a claim transaction that lost a race.
var errClaimLost = errors.New("claim lost")

func (s *sqlStore) UpsertContact(ctx context.Context, c *models.Contact) (bool, error) {
	if c.ExternalID == "" {
		return false, fmt.Errorf("contact external id is required")
	}
	now := time.Now().UTC()
	if c.Status == "" {
		c.Status = models.ContactStatusNew
	}
	created := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		id := uuid.NewString()
		res, err := tx.ExecContext(ctx, s.q(`INSERT INTO contacts
			(id, external_id, full_name, phone, email, address, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (external_id) DO NOTHING`),
			id, c.ExternalID, c.FullName, c.Phone, c.Email, c.Address, string(c.Status), now, now)
		if err != nil {
			return fmt.Errorf("insert contact: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created = true
			c.ID = id
			c.CreatedAt = now
			c.UpdatedAt = now
			return nil
		}
		// Vendor-owned fields only; lifecycle columns are never touched by a sync.
		if _, err := tx.ExecContext(ctx, s.q(`UPDATE contacts SET full_name = ?, phone = ?, email = ?, address = ?, updated_at = ?
			WHERE external_id = ?`),
			c.FullName, c.Phone, c.Email, c.Address, now, c.ExternalID); err != nil {
			return fmt.Errorf("update contact: %w", err)
		}
		return tx.QueryRowContext(ctx, s.q(`SELECT id FROM contacts WHERE external_id = ?`), c.ExternalID).Scan(&c.ID)
	})
	if err != nil {
		slog.Error(s.name+".UpsertContact failed", "error", err, "external_id", c.ExternalID)
		return false, err
	}
	return created, nil
}

func (s *sqlStore) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+contactColumns+` FROM contacts WHERE id = ?`), id)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

func (s *sqlStore) ListContacts(ctx context.Context, f ContactFilter) ([]models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY updated_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return s.queryContacts(ctx, query, args...)
}

func (s *sqlStore) queryContacts(ctx context.Context, query string, args ...any) ([]models.Contact, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()
	var out []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *sqlStore) ScheduleFollowUp(ctx context.Context, id string, dueAt, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE contacts SET status = ?, follow_up_due_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		string(models.ContactStatusFollowUpScheduled), dueAt.UTC(), now.UTC(), id, string(models.ContactStatusNew))
	if err != nil {
		return false, fmt.Errorf("schedule follow-up: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("schedule follow-up rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) DueFollowUps(ctx context.Context, now time.Time, limit int) ([]models.Contact, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryContacts(ctx, `SELECT `+contactColumns+` FROM contacts
		WHERE status = ? AND follow_up_due_at <= ? ORDER BY follow_up_due_at LIMIT ?`,
		string(models.ContactStatusFollowUpScheduled), now.UTC(), limit)
}

func (s *sqlStore) ClaimFollowUp(ctx context.Context, contactID string, conv *models.SMSConversation, now time.Time) (bool, error) {
	now = now.UTC()
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	conv.ContactID = contactID
	if conv.StartedAt.IsZero() {
		conv.StartedAt = now
	}
	if conv.LastMessageAt.IsZero() {
		conv.LastMessageAt = now
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE contacts SET status = ?, follow_up_sent_at = ?, updated_at = ?
			WHERE id = ? AND status = ?`),
			string(models.ContactStatusFollowUpSent), now, now, contactID, string(models.ContactStatusFollowUpScheduled))
		if err != nil {
			return fmt.Errorf("claim contact: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errClaimLost
		}
		_, err = tx.ExecContext(ctx, s.q(`INSERT INTO sms_conversations
			(id, contact_id, phone, state, outcome, reminders_sent, started_at, last_message_at)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?)`),
			conv.ID, contactID, conv.Phone, string(conv.State), string(conv.Outcome), conv.StartedAt.UTC(), conv.LastMessageAt.UTC())
		if err != nil {
			if s.isUnique(err) {
				return errClaimLost
			}
			return fmt.Errorf("insert conversation: %w", err)
		}
		return nil
	})
	if errors.Is(err, errClaimLost) {
		slog.Debug(s.name+".ClaimFollowUp: already claimed", "contact_id", contactID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PendingProjectCreations orders never-attempted contacts first, then by oldest last attempt,
// so contacts that keep failing rotate behind the rest. A non-positive limit returns all of them.
func (s *sqlStore) PendingProjectCreations(ctx context.Context, limit int) ([]models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts
		LEFT JOIN (SELECT contact_id, MAX(created_at) AS last_attempt FROM project_creation_logs
			GROUP BY contact_id) attempts ON attempts.contact_id = contacts.id
		WHERE project_creation_needed = ? AND project_created = ?
		ORDER BY attempts.last_attempt IS NOT NULL, attempts.last_attempt, updated_at, id`
	args := []any{true, false}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryContacts(ctx, query, args...)
}

func (s *sqlStore) MarkProjectCreated(ctx context.Context, id, externalProjectID string, now time.Time) (bool, error) {
	now = now.UTC()
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE contacts SET project_created = ?, external_project_id = ?,
		project_created_at = ?, updated_at = ? WHERE id = ? AND project_created = ?`),
		true, externalProjectID, now, now, id, false)
	if err != nil {
		return false, fmt.Errorf("mark project created: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark project created rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) MarkAsbestos(ctx context.Context, id string, yearBuilt int, now time.Time) (bool, error) {
	now = now.UTC()
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE contacts SET asbestos_testing_required = ?, year_built = ?,
		asbestos_notification_sent_at = ?, updated_at = ? WHERE id = ? AND asbestos_notification_sent_at IS NULL`),
		true, yearBuilt, now, now, id)
	if err != nil {
		return false, fmt.Errorf("mark asbestos: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark asbestos rows affected: %w", err)
	}
	return n > 0, nil
}
