package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/twiliosms"
)

func TestSMSService_SendMessageCanonicalizes(t *testing.T) {
	mock := twiliosms.NewMockClient()
	svc := NewSMSService(mock)

	sid, err := svc.SendMessage(context.Background(), "(555) 123-4567", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, sid)

	sent := mock.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "+15551234567", sent[0].To)
}

func TestSMSService_Errors(t *testing.T) {
	mock := twiliosms.NewMockClient()
	svc := NewSMSService(mock)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, "", "hello")
	assert.ErrorIs(t, err, models.ErrEmptyPhone)

	_, err = svc.SendMessage(ctx, "123", "hello")
	assert.ErrorIs(t, err, models.ErrInvalidPhone)

	mock.SetErr(errors.New("twilio down"))
	_, err = svc.SendMessage(ctx, "+15551234567", "hello")
	assert.ErrorIs(t, err, models.ErrGatewayFailure)
	assert.Empty(t, mock.Sent())
}
