package main

import (
	"bufio"
	"chat-relay/client"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `env:"CHAT_SERVER_URL,default=ws://localhost:5000/ws"`
	Username  string `env:"CHAT_USERNAME,required=true"`
	LogLevel  string `env:"LOG_LEVEL,default=WARN"`
}

var (
	systemStyle  = color.New(color.FgGray)
	publicStyle  = color.New(color.FgGreen)
	privateStyle = color.New(color.FgMagenta, color.OpBold)
	typingStyle  = color.New(color.FgYellow)
	errorStyle   = color.New(color.FgRed)
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run connects, joins and then forwards stdin lines until Ctrl+C or EOF.
// "/w <connectionId> <text>" whispers, "/typing" toggles the typing flag, anything else goes to the room.
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, err := client.Dial(dialCtx, config.ServerURL, nil)
	cancel()
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		log.Info("Closing connection...")
		_ = c.Close()
	}()

	if err = c.Join(config.Username); err != nil {
		return exitRuntime, fmt.Errorf("join: %w", err)
	}
	systemStyle.Printf(">>> Connected to %s as %s (id %s), Ctrl+C to quit\n", config.ServerURL, config.Username, c.ID)

	errChan := make(chan error, 2)
	go func() { errChan <- receive(c) }()
	go func() { errChan <- send(c) }()

	select {
	case <-ctx.Done():
		return exitOK, nil
	case err = <-errChan:
		if err == nil || ctx.Err() != nil {
			return exitOK, nil
		}
		return exitRuntime, err
	}
}

func send(c *client.Client) error {
	typing := false
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		var err error
		switch {
		case line == "":
			continue
		case line == "/typing":
			typing = !typing
			err = c.Send(event.SetTyping{IsTyping: typing})
		case strings.HasPrefix(line, "/w "):
			parts := strings.SplitN(strings.TrimPrefix(line, "/w "), " ", 2)
			if len(parts) != 2 {
				errorStyle.Println("usage: /w <connectionId> <text>")
				continue
			}
			err = c.Send(event.SendPrivate{To: domain.ConnectionID(parts[0]), Body: parts[1]})
		default:
			typing = false
			err = c.Send(event.SendPublic{Body: line})
		}
		if err != nil {
			return err
		}
	}
	return scanner.Err()
}

func receive(c *client.Client) error {
	for {
		evt, err := c.Next(0)
		if err != nil {
			return err
		}
		render(evt)
	}
}

func render(evt event.Outbound) {
	switch e := evt.(type) {
	case *event.InitialMessages:
		for _, m := range e.Messages {
			publicStyle.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), m.Sender, m.Body)
		}
	case *event.PresenceSnapshot:
		names := make([]string, 0, len(e.Records))
		for _, r := range e.Records {
			names = append(names, fmt.Sprintf("%s(%s)", r.Username, r.ConnectionID))
		}
		systemStyle.Printf("online: %s\n", strings.Join(names, ", "))
	case *event.UserJoined:
		systemStyle.Printf("* %s joined\n", e.Username)
	case *event.UserLeft:
		systemStyle.Printf("* %s left\n", e.Username)
	case *event.PublicMessage:
		publicStyle.Printf("[%s] %s: %s\n", e.Message.CreatedAt.Local().Format(time.TimeOnly), e.Message.Sender, e.Message.Body)
	case *event.PrivateMessage:
		privateStyle.Printf("[%s] (private) %s: %s\n", e.Message.CreatedAt.Local().Format(time.TimeOnly), e.Message.Sender, e.Message.Body)
	case *event.PublicTypingList:
		if len(e.Usernames) > 0 {
			typingStyle.Printf("%s typing...\n", strings.Join(e.Usernames, ", "))
		}
	case *event.PrivateTyping:
		if e.IsTyping {
			typingStyle.Printf("%s is typing to you...\n", e.Username)
		}
	case *event.JoinRejected:
		errorStyle.Printf("join rejected: %s\n", e.Reason)
	}
}
