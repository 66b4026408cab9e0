package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/testutil"
	"github.com/BTreeMap/LeadPipe/internal/twiliosms"
)

const techPhone = "+15559998888"

type harness struct {
	st    *store.SQLiteStore
	sms   *twiliosms.MockClient
	clock *testutil.Clock
	mgr   *Manager
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		st:    testutil.NewSQLiteStore(t),
		sms:   twiliosms.NewMockClient(),
		clock: testutil.NewClock(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)),
	}
	base := []Option{WithTechnician(techPhone, "Rudy"), WithClock(h.clock.Now)}
	mgr, err := NewManager(h.st, messaging.NewSMSService(h.sms), append(base, opts...)...)
	require.NoError(t, err)
	h.mgr = mgr
	return h
}

// startConversation seeds a contact, makes its follow-up due and dispatches it.
func (h *harness) startConversation(t *testing.T, externalID, name string) *models.Contact {
	t.Helper()
	ctx := context.Background()
	c := testutil.SeedContact(t, h.st, externalID, name)
	ok, err := h.mgr.ScheduleFollowUpAfter(ctx, c.ID, 0)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = h.mgr.DispatchFollowUp(ctx, *c)
	require.NoError(t, err)
	require.True(t, ok)
	return c
}

func TestNewManagerRequiresTechnician(t *testing.T) {
	st := testutil.NewSQLiteStore(t)
	svc := messaging.NewSMSService(twiliosms.NewMockClient())

	_, err := NewManager(st, svc)
	assert.ErrorIs(t, err, models.ErrEmptyPhone)

	_, err = NewManager(st, svc, WithTechnician("12", "Rudy"))
	assert.ErrorIs(t, err, models.ErrInvalidPhone)

	m, err := NewManager(st, svc, WithTechnician("(555) 999-8888", "Rudy"))
	require.NoError(t, err)
	assert.Equal(t, techPhone, m.TechnicianPhone())
}

func TestScheduleFollowUpIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := testutil.SeedContact(t, h.st, "ext-1", "Jane Doe")

	ok, err := h.mgr.ScheduleFollowUp(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	h.clock.Advance(time.Hour)
	ok, err = h.mgr.ScheduleFollowUp(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := h.st.GetContact(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContactStatusFollowUpScheduled, got.Status)
	require.NotNil(t, got.FollowUpDueAt)
	assert.WithinDuration(t, h.clock.Now().Add(-time.Hour).Add(DefaultFollowUpDelay), *got.FollowUpDueAt, time.Second)
}

func TestDispatchDue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := testutil.SeedContact(t, h.st, "ext-1", "Jane Doe")
	b := testutil.SeedContact(t, h.st, "ext-2", "John Roe")
	for _, c := range []*models.Contact{a, b} {
		_, err := h.mgr.ScheduleFollowUp(ctx, c.ID)
		require.NoError(t, err)
	}

	dispatched, failed, err := h.mgr.DispatchDue(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, dispatched, "nothing is due before the delay elapses")
	assert.Zero(t, failed)

	h.clock.Advance(DefaultFollowUpDelay + time.Minute)
	dispatched, failed, err = h.mgr.DispatchDue(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, dispatched)
	assert.Zero(t, failed)

	sent := h.sms.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, techPhone, sent[0].To)
	assert.Contains(t, sent[0].Body, "Hi Rudy, were you able to make contact with")

	dispatched, _, err = h.mgr.DispatchDue(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, dispatched)
	assert.Len(t, h.sms.Sent(), 2)
}

func TestDispatchSendFailureIsAuditedAndNotRedispatched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := testutil.SeedContact(t, h.st, "ext-1", "Jane Doe")
	_, err := h.mgr.ScheduleFollowUpAfter(ctx, c.ID, 0)
	require.NoError(t, err)

	h.sms.SetErr(errors.New("carrier rejected"))
	dispatched, failed, err := h.mgr.DispatchDue(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, dispatched)
	assert.Equal(t, 1, failed)

	conv, err := h.st.ActiveConversationForContact(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, conv)
	msgs, err := h.st.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MessageStatusFailed, msgs[0].Status)
	assert.Contains(t, msgs[0].Error, "carrier rejected")

	h.sms.SetErr(nil)
	dispatched, failed, err = h.mgr.DispatchDue(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, dispatched)
	assert.Zero(t, failed)
	assert.Empty(t, h.sms.Sent())
}

func TestConcurrentDispatchOpensOneConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := testutil.SeedContact(t, h.st, "ext-1", "Jane Doe")
	_, err := h.mgr.ScheduleFollowUpAfter(ctx, c.ID, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := h.mgr.DispatchFollowUp(ctx, *c)
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Len(t, h.sms.Sent(), 1)
	convs, err := h.st.ListConversations(ctx, true, 0)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

type pagedSource struct {
	pages [][]models.Contact
	calls int
}

func (p *pagedSource) ContactPage(_ context.Context, page int) ([]models.Contact, error) {
	p.calls++
	if page-1 < len(p.pages) {
		return p.pages[page-1], nil
	}
	return nil, nil
}

func TestSyncContacts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	src := &pagedSource{pages: [][]models.Contact{
		{{ExternalID: "a", FullName: "A One"}, {ExternalID: "b", FullName: "B Two"}},
		{{ExternalID: "c", FullName: "C Three"}},
	}}

	res, err := h.mgr.SyncContacts(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Seen: 3, Created: 3, Scheduled: 3}, res)
	assert.Equal(t, 3, src.calls)

	src.calls = 0
	res, err = h.mgr.SyncContacts(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Seen: 3}, res)

	scheduled, err := h.st.ListContacts(ctx, store.ContactFilter{Status: models.ContactStatusFollowUpScheduled})
	require.NoError(t, err)
	assert.Len(t, scheduled, 3)
}

func TestRemindStalled(t *testing.T) {
	h := newHarness(t, WithReminders(2*time.Hour, 2))
	ctx := context.Background()
	h.startConversation(t, "ext-1", "Jane Doe")
	require.Len(t, h.sms.Sent(), 1)

	n, err := h.mgr.RemindStalled(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n, "fresh conversation is not stalled")

	h.clock.Advance(3 * time.Hour)
	n, err = h.mgr.RemindStalled(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	sent := h.sms.Sent()
	assert.Equal(t, sent[0].Body, sent[1].Body, "reminder repeats the current prompt")

	n, err = h.mgr.RemindStalled(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(3 * time.Hour)
	n, err = h.mgr.RemindStalled(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	h.clock.Advance(3 * time.Hour)
	n, err = h.mgr.RemindStalled(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n, "reminder cap reached")
	assert.Len(t, h.sms.Sent(), 3)
}

func TestRemindStalledDisabled(t *testing.T) {
	h := newHarness(t, WithReminders(0, 3))
	h.startConversation(t, "ext-1", "Jane Doe")
	h.clock.Advance(48 * time.Hour)
	n, err := h.mgr.RemindStalled(context.Background(), h.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}
