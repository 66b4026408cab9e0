package tasks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/LeadPipe/internal/albiware"
	"github.com/BTreeMap/LeadPipe/internal/lifecycle"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/testutil"
	"github.com/BTreeMap/LeadPipe/internal/twiliosms"
)

const staffPhone = "+15557770000"

type fakeSource struct {
	projects []albiware.ProjectRecord
	tasks    map[int64][]albiware.TaskRecord
	failFor  int64
}

func (f *fakeSource) ListProjects(ctx context.Context, openOnly bool) ([]albiware.ProjectRecord, error) {
	return f.projects, nil
}

func (f *fakeSource) ListTasks(ctx context.Context, projectID int64) ([]albiware.TaskRecord, error) {
	if projectID == f.failFor {
		return nil, errors.New("vendor down")
	}
	return f.tasks[projectID], nil
}

// newSender builds the audited sender staff reminders go through.
func newSender(t *testing.T, st store.Store, sms *twiliosms.MockClient, now func() time.Time) *lifecycle.Manager {
	t.Helper()
	mgr, err := lifecycle.NewManager(st, messaging.NewSMSService(sms),
		lifecycle.WithTechnician("+15559998888", "Rudy"), lifecycle.WithClock(now))
	require.NoError(t, err)
	return mgr
}

type harness struct {
	st    *store.SQLiteStore
	sms   *twiliosms.MockClient
	clock *testutil.Clock
	src   *fakeSource
	sync  *Syncer
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		st:    testutil.NewSQLiteStore(t),
		sms:   twiliosms.NewMockClient(),
		clock: testutil.NewClock(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)),
		src:   &fakeSource{tasks: map[int64][]albiware.TaskRecord{}},
	}
	opts = append([]Option{WithClock(h.clock.Now)}, opts...)
	h.sync = NewSyncer(h.st, h.src, newSender(t, h.st, h.sms, h.clock.Now), []string{"(555) 777-0000", "bogus"}, opts...)
	return h
}

func (h *harness) addTask(projectID int64, projectName string, r albiware.TaskRecord) {
	found := false
	for _, p := range h.src.projects {
		if p.ID == projectID {
			found = true
		}
	}
	if !found {
		h.src.projects = append(h.src.projects, albiware.ProjectRecord{ID: projectID, Name: projectName})
	}
	h.src.tasks[projectID] = append(h.src.tasks[projectID], r)
}

func TestNewSyncerDropsInvalidStaff(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, []string{staffPhone}, h.sync.staff)
}

func TestSyncUpsertsAndDetectsCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addTask(1, "Smith Kitchen", albiware.TaskRecord{ID: 10, Name: "Inspect", Status: "open", DueDate: "2024-03-05T09:00:00Z"})
	h.addTask(2, "Jones Basement", albiware.TaskRecord{ID: 20, Name: "Dry out", Status: "open"})
	h.src.failFor = 2

	res, err := h.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Projects)
	assert.Equal(t, 1, res.Tasks)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Failed)

	h.src.tasks[1][0].Status = "Completed"
	res, err = h.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Completed)

	open, err := h.st.OpenTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	res, err = h.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Completed, "completion is observed once")
}

func TestNotifyReminderThenOverdue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	// Due in 30h: too early for the first reminder.
	h.addTask(1, "Smith Kitchen", albiware.TaskRecord{ID: 10, Name: "Inspect", Status: "open", DueDate: "2024-03-05T15:00:00Z"})
	_, err := h.sync.Sync(ctx)
	require.NoError(t, err)

	sent, _, err := h.sync.Notify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	h.clock.Advance(7 * time.Hour)
	sent, failed, err := h.sync.Notify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 0, failed)
	msgs := h.sms.Sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, staffPhone, msgs[0].To)
	assert.Contains(t, msgs[0].Body, "Task reminder")
	assert.Contains(t, msgs[0].Body, "Inspect")

	// Not repeated before due.
	h.clock.Advance(time.Hour)
	sent, _, err = h.sync.Notify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	// Overdue, and more than 24h since the reminder.
	h.clock.Advance(24 * time.Hour)
	sent, _, err = h.sync.Notify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	msgs = h.sms.Sent()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Body, "OVERDUE")

	// Spacing holds.
	h.clock.Advance(12 * time.Hour)
	sent, _, err = h.sync.Notify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	open, err := h.st.OpenTasks(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	history, err := h.st.TaskNotifications(ctx, open[0].ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.NotificationReminder, history[0].Kind)
	assert.Equal(t, models.NotificationOverdue, history[1].Kind)
	assert.NotEmpty(t, history[1].ProviderMessageID)
}

func TestNotifyRespectsCap(t *testing.T) {
	h := newHarness(t, WithMaxReminders(2))
	ctx := context.Background()
	h.addTask(1, "Smith Kitchen", albiware.TaskRecord{ID: 10, Name: "Inspect", Status: "open", DueDate: "2024-03-01T09:00:00Z"})
	_, err := h.sync.Sync(ctx)
	require.NoError(t, err)

	total := 0
	for i := 0; i < 5; i++ {
		sent, _, err := h.sync.Notify(ctx)
		require.NoError(t, err)
		total += sent
		h.clock.Advance(25 * time.Hour)
	}
	assert.Equal(t, 2, total)
}

func TestNotifySendFailureIsRetried(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addTask(1, "Smith Kitchen", albiware.TaskRecord{ID: 10, Name: "Inspect", Status: "open", DueDate: "2024-03-01T09:00:00Z"})
	_, err := h.sync.Sync(ctx)
	require.NoError(t, err)

	h.sms.SetErr(errors.New("twilio down"))
	sent, failed, err := h.sync.Notify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 1, failed)

	h.sms.SetErr(nil)
	h.clock.Advance(time.Minute)
	sent, _, err = h.sync.Notify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	ledger, err := h.st.ListMessages(ctx, "")
	require.NoError(t, err)
	require.Len(t, ledger, 2, "failed and delivered reminders are both audited")
	assert.Equal(t, models.MessageStatusFailed, ledger[0].Status)
	assert.Contains(t, ledger[0].Error, "twilio down")
	assert.Equal(t, models.MessageStatusSent, ledger[1].Status)
	for _, m := range ledger {
		assert.Equal(t, models.DirectionOutbound, m.Direction)
		assert.Equal(t, staffPhone, m.To)
		assert.Contains(t, m.Body, "Inspect")
	}
}

func TestNotifyWithoutStaffIsNoop(t *testing.T) {
	st := testutil.NewSQLiteStore(t)
	s := NewSyncer(st, &fakeSource{}, newSender(t, st, twiliosms.NewMockClient(), time.Now), nil)
	sent, failed, err := s.Notify(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Zero(t, failed)
}

func TestRenderOverdueDays(t *testing.T) {
	due := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	body := Render(models.NotificationOverdue, models.Task{Name: "Inspect", ProjectName: "Smith", AssignedTo: "Sam", DueAt: &due},
		due.Add(73*time.Hour))
	assert.True(t, strings.HasPrefix(body, "URGENT"))
	assert.Contains(t, body, "3 days OVERDUE")
	assert.Contains(t, body, "Assigned to: Sam")
}
