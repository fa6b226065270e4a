// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"chat-relay/errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// PresenceRecord is the visible identity of one joined connection.
type PresenceRecord struct {
	ConnectionID ConnectionID `json:"connectionId"`
	Username     string       `json:"username"`
}

// TypingPair is a directed private typing key: From is typing to To.
type TypingPair struct {
	From ConnectionID
	To   ConnectionID
}

// NormalizeUsername trims the display name and rejects blank or oversized ones.
func NormalizeUsername(raw string, maxLength int) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: username is empty", errors.ErrInvalidJoin)
	}
	if maxLength > 0 && utf8.RuneCountInString(name) > maxLength {
		return "", fmt.Errorf("%w: username exceeds %d characters", errors.ErrInvalidJoin, maxLength)
	}
	return name, nil
}

// PairKey orders two connection ids so that both directions share a key.
func PairKey(a, b ConnectionID) string {
	if a > b {
		a, b = b, a
	}
	return string(a) + "|" + string(b)
}
