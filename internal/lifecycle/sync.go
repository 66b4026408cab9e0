package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// maxSyncPages bounds a single sync run against a misbehaving paginator.
const maxSyncPages = 500

// ContactSource pages through vendor contacts. Pages start at 1; an empty page ends the listing.
type ContactSource interface {
	ContactPage(ctx context.Context, page int) ([]models.Contact, error)
}

// SyncResult counts what a sync run did.
type SyncResult struct {
	Seen      int
	Created   int
	Scheduled int
	Failed    int
}

// SyncContacts upserts every vendor contact and schedules the follow-up for contacts still NEW.
func (m *Manager) SyncContacts(ctx context.Context, src ContactSource) (SyncResult, error) {
	var res SyncResult
	for page := 1; page <= maxSyncPages; page++ {
		contacts, err := src.ContactPage(ctx, page)
		if err != nil {
			return res, fmt.Errorf("fetch contact page %d: %w", page, err)
		}
		if len(contacts) == 0 {
			break
		}
		for i := range contacts {
			c := contacts[i]
			res.Seen++
			created, err := m.store.UpsertContact(ctx, &c)
			if err != nil {
				res.Failed++
				slog.Error("Manager.SyncContacts: upsert failed", "external_id", c.ExternalID, "error", err)
				continue
			}
			if created {
				res.Created++
			}
			ok, err := m.ScheduleFollowUp(ctx, c.ID)
			if err != nil {
				res.Failed++
				slog.Error("Manager.SyncContacts: schedule failed", "contact_id", c.ID, "error", err)
				continue
			}
			if ok {
				res.Scheduled++
			}
		}
	}
	slog.Info("Manager.SyncContacts: run complete",
		"seen", res.Seen, "created", res.Created, "scheduled", res.Scheduled, "failed", res.Failed)
	return res, nil
}
