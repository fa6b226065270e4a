package event

import "chat-relay/domain"

// Outbound is anything the coordinator pushes to one or many connections.
type Outbound interface {
	Kind() Kind
}

type Welcome struct {
	ConnectionID domain.ConnectionID `json:"connectionId"`
}

type PresenceSnapshot struct {
	Records []domain.PresenceRecord `json:"records"`
}

type UserJoined struct {
	ConnectionID domain.ConnectionID `json:"connectionId"`
	Username     string              `json:"username"`
}

type UserLeft struct {
	ConnectionID domain.ConnectionID `json:"connectionId"`
	Username     string              `json:"username"`
}

type PublicMessage struct {
	Message domain.Message `json:"message"`
}

type PrivateMessage struct {
	Message domain.Message `json:"message"`
}

type PublicTypingList struct {
	Usernames []string `json:"usernames"`
}

type PrivateTyping struct {
	From     domain.ConnectionID `json:"from"`
	Username string              `json:"username"`
	IsTyping bool                `json:"isTyping"`
}

type InitialMessages struct {
	Messages []domain.Message `json:"messages"`
}

type JoinRejected struct {
	Reason string `json:"reason"`
}

func (Welcome) Kind() Kind          { return WelcomeType }
func (PresenceSnapshot) Kind() Kind { return PresenceSnapshotType }
func (UserJoined) Kind() Kind       { return UserJoinedType }
func (UserLeft) Kind() Kind         { return UserLeftType }
func (PublicMessage) Kind() Kind    { return PublicMessageType }
func (PrivateMessage) Kind() Kind   { return PrivateMessageType }
func (PublicTypingList) Kind() Kind { return PublicTypingListType }
func (PrivateTyping) Kind() Kind    { return PrivateTypingType }
func (InitialMessages) Kind() Kind  { return InitialMessagesType }
func (JoinRejected) Kind() Kind     { return JoinRejectedType }

func NewPresenceSnapshot(records []domain.PresenceRecord) PresenceSnapshot {
	if records == nil {
		records = []domain.PresenceRecord{}
	}
	return PresenceSnapshot{Records: records}
}

func NewPublicTypingList(usernames []string) PublicTypingList {
	if usernames == nil {
		usernames = []string{}
	}
	return PublicTypingList{Usernames: usernames}
}

func NewInitialMessages(messages []domain.Message) InitialMessages {
	if messages == nil {
		messages = []domain.Message{}
	}
	return InitialMessages{Messages: messages}
}
