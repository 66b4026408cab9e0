package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

var _ TaskRepo = (*sqlStore)(nil)

func (s *sqlStore) UpsertTask(ctx context.Context, t *models.Task, now time.Time) (bool, bool, error) {
	if t.ExternalID == "" {
		return false, false, fmt.Errorf("task external id is required")
	}
	now = now.UTC()
	isDone := t.Status == models.TaskStatusCompleted
	var created, completed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanTask(tx.QueryRowContext(ctx, s.q(`SELECT `+taskColumns+` FROM tasks WHERE external_id = ?`), t.ExternalID))
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load task: %w", err)
		}
		if existing == nil {
			t.ID = uuid.NewString()
			t.CreatedAt = now
			t.UpdatedAt = now
			if isDone {
				t.CompletedAt = &now
			}
			_, err := tx.ExecContext(ctx, s.q(`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				t.ID, t.ExternalID, t.Name, t.ProjectID, t.ProjectName, nullableTime(t.DueAt), t.Status, t.AssignedTo,
				nullableTime(t.CompletedAt), now, now)
			if err != nil {
				return fmt.Errorf("insert task: %w", err)
			}
			created = true
			completed = isDone
			return nil
		}

		t.ID = existing.ID
		t.CreatedAt = existing.CreatedAt
		t.UpdatedAt = now
		t.CompletedAt = existing.CompletedAt
		if isDone && existing.CompletedAt == nil {
			t.CompletedAt = &now
			completed = true
		}
		_, err = tx.ExecContext(ctx, s.q(`UPDATE tasks SET name = ?, project_id = ?, project_name = ?, due_at = ?,
			status = ?, assigned_to = ?, completed_at = ?, updated_at = ? WHERE id = ?`),
			t.Name, t.ProjectID, t.ProjectName, nullableTime(t.DueAt), t.Status, t.AssignedTo,
			nullableTime(t.CompletedAt), now, t.ID)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, false, err
	}
	return created, completed, nil
}

func (s *sqlStore) OpenTasks(ctx context.Context) ([]models.Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE completed_at IS NULL ORDER BY due_at`)
}

func (s *sqlStore) ListTasks(ctx context.Context, limit int) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY updated_at DESC`
	if limit > 0 {
		return s.queryTasks(ctx, query+` LIMIT ?`, limit)
	}
	return s.queryTasks(ctx, query)
}

func (s *sqlStore) queryTasks(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	var out []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *sqlStore) AppendTaskNotification(ctx context.Context, n *models.TaskNotification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO task_notifications (id, task_id, phone, kind, provider_message_id, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		n.ID, n.TaskID, n.Phone, string(n.Kind), n.ProviderMessageID, n.SentAt.UTC())
	if err != nil {
		return fmt.Errorf("append task notification: %w", err)
	}
	return nil
}

func (s *sqlStore) TaskNotifications(ctx context.Context, taskID string) ([]models.TaskNotification, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, task_id, phone, kind, provider_message_id, sent_at
		FROM task_notifications WHERE task_id = ? ORDER BY sent_at`), taskID)
	if err != nil {
		return nil, fmt.Errorf("list task notifications: %w", err)
	}
	defer rows.Close()
	var out []models.TaskNotification
	for rows.Next() {
		var n models.TaskNotification
		var kind string
		if err := rows.Scan(&n.ID, &n.TaskID, &n.Phone, &kind, &n.ProviderMessageID, &n.SentAt); err != nil {
			return nil, fmt.Errorf("scan task notification: %w", err)
		}
		n.Kind = models.NotificationKind(kind)
		n.SentAt = n.SentAt.UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}
