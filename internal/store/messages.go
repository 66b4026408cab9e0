package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

var (
	_ MessageRepo    = (*sqlStore)(nil)
	_ ProjectLogRepo = (*sqlStore)(nil)
)

func (s *sqlStore) AppendMessage(ctx context.Context, m *models.SMSMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO sms_messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		m.ID, nilIfEmpty(m.ConversationID), nilIfEmpty(m.ContactID), string(m.Direction), m.From, m.To, m.Body,
		m.ProviderMessageID, string(m.Status), m.Error, m.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *sqlStore) ListMessages(ctx context.Context, conversationID string) ([]models.SMSMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM sms_messages WHERE conversation_id = ? ORDER BY created_at, id`
	args := []any{conversationID}
	if conversationID == "" {
		query = `SELECT ` + messageColumns + ` FROM sms_messages WHERE conversation_id IS NULL ORDER BY created_at, id`
		args = nil
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	var out []models.SMSMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqlStore) AppendProjectLog(ctx context.Context, l *models.ProjectCreationLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO project_creation_logs
		(id, contact_id, status, error, external_project_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		l.ID, l.ContactID, string(l.Status), l.Error, l.ExternalProjectID, l.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("append project log: %w", err)
	}
	return nil
}

func (s *sqlStore) ListProjectLogs(ctx context.Context, contactID string, limit int) ([]models.ProjectCreationLog, error) {
	query := `SELECT id, contact_id, status, error, external_project_id, created_at FROM project_creation_logs`
	var args []any
	if contactID != "" {
		query += ` WHERE contact_id = ?`
		args = append(args, contactID)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list project logs: %w", err)
	}
	defer rows.Close()
	var out []models.ProjectCreationLog
	for rows.Next() {
		var l models.ProjectCreationLog
		var status string
		if err := rows.Scan(&l.ID, &l.ContactID, &status, &l.Error, &l.ExternalProjectID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project log: %w", err)
		}
		l.Status = models.ProjectLogStatus(status)
		l.CreatedAt = l.CreatedAt.UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}
