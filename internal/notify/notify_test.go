package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	args := m.Called(ctx, email)
	resp, _ := args.Get(0).(*rest.Response)
	return resp, args.Error(1)
}

func newTestNotifier(t *testing.T, sender mailSender, sandbox bool) *SendGridNotifier {
	t.Helper()
	n, err := NewSendGridNotifier(WithAPIKey("SG.key"), WithFrom("bot@example.com", "LeadPipe"),
		WithOfficeEmail("office@example.com"), WithSandbox(sandbox))
	require.NoError(t, err)
	n.client = sender
	return n
}

func testContact() models.Contact {
	yes := true
	return models.Contact{
		ID:                 "c1",
		FullName:           "Jane <Doe>",
		ExternalProjectID:  "P-7",
		ProjectType:        "Mold",
		PropertyType:       "Residential",
		ResidentialSubtype: "Single Family Home",
		HasInsurance:       &yes,
		InsuranceCompany:   "Acme Mutual",
	}
}

func TestProjectCreatedSendsEmail(t *testing.T) {
	sender := &mockSender{}
	sender.On("SendWithContext", mock.Anything, mock.MatchedBy(func(m *mail.SGMailV3) bool {
		return m.Subject == "New project created: Jane <Doe>" &&
			len(m.Personalizations) == 1 &&
			m.Personalizations[0].To[0].Address == "office@example.com" &&
			m.MailSettings != nil
	})).Return(&rest.Response{StatusCode: 202}, nil).Once()

	n := newTestNotifier(t, sender, true)
	require.NoError(t, n.ProjectCreated(context.Background(), testContact()))
	sender.AssertExpectations(t)
}

func TestProjectCreatedErrors(t *testing.T) {
	sender := &mockSender{}
	sender.On("SendWithContext", mock.Anything, mock.Anything).Return(&rest.Response{StatusCode: 401, Body: "unauthorized"}, nil).Once()
	sender.On("SendWithContext", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: timeout")).Once()

	n := newTestNotifier(t, sender, false)
	assert.Error(t, n.ProjectCreated(context.Background(), testContact()))
	assert.Error(t, n.ProjectCreated(context.Background(), testContact()))
	sender.AssertExpectations(t)
}

func TestMessageBody(t *testing.T) {
	n := newTestNotifier(t, &mockSender{}, false)
	msg := n.message(testContact())
	require.Len(t, msg.Content, 2)
	assert.Contains(t, msg.Content[0].Value, "Insurance: Yes (Acme Mutual)")
	assert.Contains(t, msg.Content[0].Value, "Property: Residential - Single Family Home")
	assert.Contains(t, msg.Content[1].Value, "Jane &lt;Doe&gt;")
	assert.Nil(t, msg.MailSettings)
}

func TestNewSendGridNotifierRequiresConfig(t *testing.T) {
	_, err := NewSendGridNotifier(WithAPIKey("SG.key"))
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.ProjectCreated(context.Background(), models.Contact{}))
}
