package event

import (
	"chat-relay/errors"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Envelope is the wire frame exchanged over the push channel.
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeInbound parses a client frame into one of the inbound event kinds.
func DecodeInbound(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidMessage, err)
	}
	switch env.Type {
	case JoinType:
		return decodePayload[Join](env.Payload)
	case SendPublicType:
		return decodePayload[SendPublic](env.Payload)
	case SendPrivateType:
		return decodePayload[SendPrivate](env.Payload)
	case TypingType:
		return decodePayload[SetTyping](env.Payload)
	case PrivateTypingType:
		return decodePayload[SetPrivateTyping](env.Payload)
	case DisconnectType:
		return decodePayload[Disconnect](env.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, env.Type)
	}
}

func decodePayload[T Inbound](raw json.RawMessage) (T, error) {
	var payload T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return payload, fmt.Errorf("%w: %v", errors.ErrInvalidMessage, err)
		}
	}
	if err := validate.Struct(payload); err != nil {
		return payload, fmt.Errorf("%w: %v", errors.ErrInvalidMessage, err)
	}
	return payload, nil
}

// Encode wraps any event into an envelope.
func Encode(evt interface{ Kind() Kind }) ([]byte, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: evt.Kind(), Payload: payload})
}

// DecodeOutbound is used by clients to read server frames.
func DecodeOutbound(data []byte) (Outbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidMessage, err)
	}
	var out Outbound
	switch env.Type {
	case WelcomeType:
		out = &Welcome{}
	case PresenceSnapshotType:
		out = &PresenceSnapshot{}
	case UserJoinedType:
		out = &UserJoined{}
	case UserLeftType:
		out = &UserLeft{}
	case PublicMessageType:
		out = &PublicMessage{}
	case PrivateMessageType:
		out = &PrivateMessage{}
	case PublicTypingListType:
		out = &PublicTypingList{}
	case PrivateTypingType:
		out = &PrivateTyping{}
	case InitialMessagesType:
		out = &InitialMessages{}
	case JoinRejectedType:
		out = &JoinRejected{}
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, env.Type)
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidMessage, err)
	}
	return out, nil
}
