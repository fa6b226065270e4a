// Package domain contains core concepts of the chat system.
// This file defines Message records and related rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"chat-relay/errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const localIDPrefix = "local-"

// ConnectionID is the opaque identifier the transport assigns to one session.
type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

func (c ConnectionID) String() string { return string(c) }

// Message represents an immutable chat record.
// IsPrivate is true if and only if Recipient is set.
type Message struct {
	ID                 string        `json:"id"`
	Sender             string        `json:"sender"`
	SenderConnectionID ConnectionID  `json:"senderConnectionId"`
	Body               string        `json:"body"`
	CreatedAt          time.Time     `json:"createdAt"`
	IsPrivate          bool          `json:"isPrivate"`
	Recipient          *ConnectionID `json:"recipientConnectionId"`
}

func NewPublicMessage(sender PresenceRecord, body string, at time.Time) Message {
	return Message{
		Sender:             sender.Username,
		SenderConnectionID: sender.ConnectionID,
		Body:               strings.TrimSpace(body),
		CreatedAt:          at.UTC(),
	}
}

func NewPrivateMessage(sender PresenceRecord, to ConnectionID, body string, at time.Time) Message {
	msg := NewPublicMessage(sender, body, at)
	msg.IsPrivate = true
	msg.Recipient = &to
	return msg
}

// Validate checks the private/recipient invariant and the body length.
func (m Message) Validate(maxLength int) error {
	if m.IsPrivate != (m.Recipient != nil) {
		return fmt.Errorf("%w: private flag and recipient disagree", errors.ErrInvalidMessage)
	}
	if m.Body == "" {
		return fmt.Errorf("%w: empty body", errors.ErrInvalidMessage)
	}
	if maxLength > 0 && utf8.RuneCountInString(m.Body) > maxLength {
		return fmt.Errorf("%w: body exceeds %d characters", errors.ErrInvalidMessage, maxLength)
	}
	return nil
}

// Involves reports whether the message was exchanged between a and b, in either direction.
func (m Message) Involves(a, b ConnectionID) bool {
	if !m.IsPrivate || m.Recipient == nil {
		return false
	}
	to := *m.Recipient
	return (m.SenderConnectionID == a && to == b) || (m.SenderConnectionID == b && to == a)
}

// SynthesizeID returns an identifier for a message the store could not persist.
// It is not stable and may be replaced by a durable id later.
func SynthesizeID() string {
	return localIDPrefix + uuid.NewString()
}

func IsSynthesized(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}
