package models

import "time"

// Direction of an SMS relative to LeadPipe.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// MessageStatusReceived marks an inbound message.
	MessageStatusReceived MessageStatus = "received"
	// MessageStatusSent indicates the message was accepted by the provider.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// SMSMessage is an immutable audit record of one SMS in either direction.
type SMSMessage struct {
	ID                string        `json:"id"`
	ConversationID    string        `json:"conversation_id,omitempty"`
	ContactID         string        `json:"contact_id,omitempty"`
	Direction         Direction     `json:"direction"`
	From              string        `json:"from"`
	To                string        `json:"to"`
	Body              string        `json:"body"`
	ProviderMessageID string        `json:"provider_message_id,omitempty"`
	Status            MessageStatus `json:"status"`
	Error             string        `json:"error,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// InboundSMS is the provider callback payload after form decoding.
type InboundSMS struct {
	From       string `json:"from" validate:"required"`
	Body       string `json:"body"`
	MessageSID string `json:"message_sid" validate:"required"`
}
