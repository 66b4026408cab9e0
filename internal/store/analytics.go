package store

import (
	"context"
	"fmt"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

func (s *sqlStore) Summary(ctx context.Context) (*models.Summary, error) {
	sum := &models.Summary{
		ContactsByStatus:  map[models.ContactStatus]int{},
		ContactsByOutcome: map[models.Outcome]int{},
	}

	if err := s.groupCount(ctx, `SELECT status, COUNT(*) FROM contacts GROUP BY status`, func(k string, n int) {
		sum.ContactsByStatus[models.ContactStatus(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := s.groupCount(ctx, `SELECT outcome, COUNT(*) FROM contacts WHERE outcome <> '' GROUP BY outcome`, func(k string, n int) {
		sum.ContactsByOutcome[models.Outcome(k)] = n
	}); err != nil {
		return nil, err
	}

	counts := []struct {
		dst   *int
		query string
		args  []any
	}{
		{&sum.ActiveConversations, `SELECT COUNT(*) FROM sms_conversations WHERE state <> ?`, []any{string(models.StateCompleted)}},
		{&sum.PendingProjects, `SELECT COUNT(*) FROM contacts WHERE project_creation_needed = ? AND project_created = ?`, []any{true, false}},
		{&sum.ProjectsCreated, `SELECT COUNT(*) FROM contacts WHERE project_created = ?`, []any{true}},
		{&sum.FailedAttempts, `SELECT COUNT(*) FROM project_creation_logs WHERE status = ?`, []any{string(models.ProjectLogFailed)}},
		{&sum.OpenTasks, `SELECT COUNT(*) FROM tasks WHERE completed_at IS NULL`, nil},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, s.q(c.query), c.args...).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("summary count: %w", err)
		}
	}
	return sum, nil
}

func (s *sqlStore) groupCount(ctx context.Context, query string, fn func(string, int)) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("summary group: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return fmt.Errorf("summary scan: %w", err)
		}
		fn(k, n)
	}
	return rows.Err()
}
