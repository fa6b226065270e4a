package event

import "chat-relay/domain"

type Kind string

const (
	JoinType             Kind = "join"
	SendPublicType       Kind = "send_public"
	SendPrivateType      Kind = "send_private"
	TypingType           Kind = "typing"
	PrivateTypingType    Kind = "private_typing"
	DisconnectType       Kind = "disconnect"
	PresenceSnapshotType Kind = "presence_snapshot"
	UserJoinedType       Kind = "user_joined"
	UserLeftType         Kind = "user_left"
	PublicMessageType    Kind = "public_message"
	PrivateMessageType   Kind = "private_message"
	PublicTypingListType Kind = "public_typing_list"
	InitialMessagesType  Kind = "initial_messages"
	JoinRejectedType     Kind = "join_rejected"
	WelcomeType          Kind = "welcome"
)

// Inbound is the closed set of events a connection can push to the coordinator.
type Inbound interface {
	Kind() Kind
	inbound()
}

type Join struct {
	Username string `json:"username"`
}

type SendPublic struct {
	Body string `json:"body" validate:"required"`
}

type SendPrivate struct {
	To   domain.ConnectionID `json:"to" validate:"required"`
	Body string              `json:"body" validate:"required"`
}

type SetTyping struct {
	IsTyping bool `json:"isTyping"`
}

type SetPrivateTyping struct {
	To       domain.ConnectionID `json:"to" validate:"required"`
	IsTyping bool                `json:"isTyping"`
}

// Disconnect is synthesized by the transport when the socket goes away.
type Disconnect struct {
	Reason string `json:"reason"`
}

func (Join) Kind() Kind             { return JoinType }
func (SendPublic) Kind() Kind       { return SendPublicType }
func (SendPrivate) Kind() Kind      { return SendPrivateType }
func (SetTyping) Kind() Kind        { return TypingType }
func (SetPrivateTyping) Kind() Kind { return PrivateTypingType }
func (Disconnect) Kind() Kind       { return DisconnectType }

func (Join) inbound()             {}
func (SendPublic) inbound()       {}
func (SendPrivate) inbound()      {}
func (SetTyping) inbound()        {}
func (SetPrivateTyping) inbound() {}
func (Disconnect) inbound()       {}
