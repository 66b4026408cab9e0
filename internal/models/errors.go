package models

import "errors"

// Error variables shared by the conversation engine, the scheduler and the collaborators.
// None of them is fatal to the process; each is scoped to a single contact or conversation.
var (
	// ErrParseFailure marks a reply that did not match the expected shape. The prompt is re-sent.
	ErrParseFailure = errors.New("reply not recognized")
	// ErrTransitionConflict is returned when a conversation was advanced by a concurrent writer.
	ErrTransitionConflict = errors.New("conversation state changed concurrently")
	// ErrGatewayFailure wraps SMS transport errors.
	ErrGatewayFailure = errors.New("sms gateway failure")
	// ErrAutomationFailure wraps project creation errors.
	ErrAutomationFailure = errors.New("project automation failed")
	// ErrLookupUnavailable is returned when property data cannot be obtained.
	ErrLookupUnavailable = errors.New("property lookup unavailable")

	ErrNoActiveConversation = errors.New("no active conversation for sender")
	ErrDuplicateMessage     = errors.New("inbound message already recorded")
	ErrContactNotFound      = errors.New("contact not found")
	ErrActiveConversation   = errors.New("contact already has an active conversation")
	ErrEmptyPhone           = errors.New("phone number cannot be empty")
	ErrInvalidPhone         = errors.New("invalid phone number")
)
