package e2e

import (
	"chat-relay/client"
	"chat-relay/domain/event"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
)

const frameTimeout = 5 * time.Second

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayURL == "" {
		s.T().Skip("RELAY_URL not set, skipping end-to-end suite")
	}
}

// Step prints a colorized header for the current step
func (s *BaseRelaySuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Connect dials the relay and joins with the given username
func (s *BaseRelaySuite) Connect(username string) *client.Client {
	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()

	c, err := client.Dial(ctx, s.Config.RelayURL, nil)
	s.Require().NoError(err, "Failed to connect to relay at "+s.Config.RelayURL)
	s.T().Logf("%s connected as %s", username, c.ID)
	s.Require().NoError(c.Join(username))
	return c
}

// Expect waits for the next frame of the given kind and dumps it when E2E_DEBUG_JSON is set
func (s *BaseRelaySuite) Expect(c *client.Client, kind event.Kind) event.Outbound {
	start := time.Now()
	evt, err := c.WaitFor(kind, frameTimeout)
	s.Require().NoError(err, "%s never received %s", c.ID, kind)
	s.T().Logf("WS %s <- %s in %v", c.ID, kind, time.Since(start))
	if s.Config.DebugJSON {
		body, _ := json.MarshalIndent(evt, "", "  ")
		s.T().Log(string(body))
	}
	return evt
}
