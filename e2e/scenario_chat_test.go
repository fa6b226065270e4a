package e2e

import (
	"chat-relay/domain/event"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type testChatSuite struct {
	BaseRelaySuite
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, &testChatSuite{})
}

func (s *testChatSuite) TestPublicAndPrivateFlow() {
	// Unique names so the suite can run against a relay with history
	alice := "alice-" + uuid.NewString()[:8]
	bob := "bob-" + uuid.NewString()[:8]

	a := s.Connect(alice)
	defer a.Close()
	b := s.Connect(bob)
	defer b.Close()

	s.Run("Step 1: Alice sees Bob joining", func() {
		s.Step("Presence broadcast")
		for {
			joined := s.Expect(a, event.UserJoinedType).(*event.UserJoined)
			if joined.ConnectionID == b.ID {
				s.Require().Equal(bob, joined.Username)
				return
			}
		}
	})

	s.Run("Step 2: Public message reaches both participants", func() {
		s.Step("Public broadcast")
		body := "hello from " + alice
		s.Require().NoError(a.Send(event.SendPublic{Body: body}))

		for _, c := range []string{"alice", "bob"} {
			receiver := a
			if c == "bob" {
				receiver = b
			}
			for {
				msg := s.Expect(receiver, event.PublicMessageType).(*event.PublicMessage)
				if msg.Message.Body != body {
					continue
				}
				s.Require().Equal(alice, msg.Message.Sender)
				s.Require().Equal(a.ID, msg.Message.SenderConnectionID)
				s.Require().NotEmpty(msg.Message.ID)
				break
			}
		}
	})

	s.Run("Step 3: Private typing and message reach only Bob", func() {
		s.Step("Private exchange")
		s.Require().NoError(a.Send(event.SetPrivateTyping{To: b.ID, IsTyping: true}))
		typing := s.Expect(b, event.PrivateTypingType).(*event.PrivateTyping)
		s.Require().Equal(a.ID, typing.From)
		s.Require().True(typing.IsTyping)

		s.Require().NoError(a.Send(event.SendPrivate{To: b.ID, Body: "psst"}))
		msg := s.Expect(b, event.PrivateMessageType).(*event.PrivateMessage)
		s.Require().Equal("psst", msg.Message.Body)
		s.Require().True(msg.Message.IsPrivate)
		s.Require().NotNil(msg.Message.Recipient)
		s.Require().Equal(b.ID, *msg.Message.Recipient)

		echo := s.Expect(a, event.PrivateMessageType).(*event.PrivateMessage)
		s.Require().Equal(msg.Message.ID, echo.Message.ID)
	})

	s.Run("Step 4: Bob leaving is broadcast to Alice", func() {
		s.Step("Disconnect")
		s.Require().NoError(b.Close())
		for {
			left := s.Expect(a, event.UserLeftType).(*event.UserLeft)
			if left.ConnectionID == b.ID {
				s.Require().Equal(bob, left.Username)
				return
			}
		}
	})
}
