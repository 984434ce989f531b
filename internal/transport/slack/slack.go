// Package slack implements transport.Adapter over the Slack Events API via
// Socket Mode: chat.postMessage/chat.update for the outbound half and the
// socketmode event loop for inbound delivery.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	goslack "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/conductor/internal/session"
	"github.com/nextlevelbuilder/conductor/pkg/messages"
)

// characterLimit is Slack's practical per-message cap.
const characterLimit = 4000

// sendRate bounds outbound Web API calls; chat.postMessage is Tier 4-ish in
// practice but Slack documents roughly one message per second per channel.
const sendRate = 1

// Config configures the Slack adapter.
type Config struct {
	BotToken  string
	AppToken  string // xapp- token for Socket Mode
	Allowlist []string
}

// Adapter implements transport.Adapter over Slack Socket Mode.
type Adapter struct {
	cfg     Config
	api     *goslack.Client
	client  *socketmode.Client
	botID   string
	inbound chan messages.IncomingMessage
	limiter *rate.Limiter
}

// New builds the Slack API and Socket Mode clients.
func New(cfg Config) (*Adapter, error) {
	api := goslack.New(cfg.BotToken, goslack.OptionAppLevelToken(cfg.AppToken))
	client := socketmode.New(api)
	return &Adapter{
		cfg:     cfg,
		api:     api,
		client:  client,
		inbound: make(chan messages.IncomingMessage, 64),
		limiter: rate.NewLimiter(rate.Limit(sendRate), 3),
	}, nil
}

func (a *Adapter) Name() string       { return "slack" }
func (a *Adapter) CharacterLimit() int { return characterLimit }
func (a *Adapter) Inbound() <-chan messages.IncomingMessage { return a.inbound }

// Start connects via Socket Mode and blocks until ctx is cancelled.
func (a *Adapter) Start(ctx context.Context) error {
	auth, err := a.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	a.botID = auth.UserID

	go func() {
		for evt := range a.client.Events {
			a.handleEvent(evt)
		}
	}()

	slog.Info("slack adapter connected", "bot_id", a.botID)
	if err := a.client.RunContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("slack socket mode run: %w", err)
	}
	return nil
}

func (a *Adapter) handleEvent(evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	a.client.Ack(*evt.Request)

	inner, ok := eventsAPIEvent.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	if inner.BotID != "" || inner.User == a.botID {
		return
	}
	if len(a.cfg.Allowlist) > 0 && !slices.Contains(a.cfg.Allowlist, inner.User) {
		return
	}

	a.inbound <- messages.IncomingMessage{
		Channel:    a.Name(),
		SenderID:   inner.User,
		SessionID:  session.Slack(inner.Channel, inner.ThreadTimeStamp),
		Content:    inner.Text,
		ReplyTo:    inner.TimeStamp,
		IsGroup:    true, // Slack channels are always treated as group sessions
	}
}

type placeholderHandle struct {
	channelID string
	timestamp string
}

func (a *Adapter) SendPlaceholder(ctx context.Context, sessionID, content string) (messages.PlaceholderHandle, error) {
	channelID, threadTS := channelAndThread(sessionID)
	opts := []goslack.MsgOption{goslack.MsgOptionText(truncate(content), false)}
	if threadTS != "" {
		opts = append(opts, goslack.MsgOptionTS(threadTS))
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	_, ts, err := a.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return nil, fmt.Errorf("slack post message: %w", err)
	}
	return placeholderHandle{channelID: channelID, timestamp: ts}, nil
}

// EditMessage replaces the placeholder's text, posting additional messages
// if content exceeds Slack's ~4000-character cap.
func (a *Adapter) EditMessage(ctx context.Context, handle messages.PlaceholderHandle, content string) error {
	h, ok := handle.(placeholderHandle)
	if !ok {
		return fmt.Errorf("slack: invalid placeholder handle")
	}
	chunks := splitOnLimit(content, characterLimit)
	if len(chunks) == 0 {
		return nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, _, _, err := a.api.UpdateMessageContext(ctx, h.channelID, h.timestamp, goslack.MsgOptionText(chunks[0], false)); err != nil {
		return fmt.Errorf("slack update message: %w", err)
	}
	for _, chunk := range chunks[1:] {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, _, err := a.api.PostMessageContext(ctx, h.channelID, goslack.MsgOptionText(chunk, false)); err != nil {
			return fmt.Errorf("slack post overflow chunk: %w", err)
		}
	}
	return nil
}

func (a *Adapter) StartTyping(ctx context.Context, sessionID string) (messages.TypingCancel, error) {
	// Slack's Events API has no typing indicator for bots; the closest
	// analogue (an ephemeral "is typing" presence) requires RTM, which
	// Socket Mode does not expose. No-op cancel, kept for interface parity.
	_, cancel := context.WithCancel(ctx)
	return func() { cancel() }, nil
}

func channelAndThread(sessionID string) (channelID, threadTS string) {
	rest := strings.TrimPrefix(sessionID, session.PrefixSlack)
	parts := strings.SplitN(rest, "-", 2)
	channelID = parts[0]
	if len(parts) == 2 {
		threadTS = parts[1]
	}
	return channelID, threadTS
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= characterLimit {
		return s
	}
	return string(r[:characterLimit])
}

func splitOnLimit(content string, limit int) []string {
	runes := []rune(content)
	if len(runes) == 0 {
		return nil
	}
	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
