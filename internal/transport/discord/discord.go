// Package discord implements transport.Adapter over the Discord gateway:
// streaming previews are delivered by editing the already-sent message in
// place.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/conductor/internal/session"
	"github.com/nextlevelbuilder/conductor/pkg/messages"
)

// characterLimit is Discord's per-message cap.
const characterLimit = 2000

// sendRate bounds outbound REST calls; Discord throttles message
// creation/editing at roughly 5 requests per 5 s per channel.
const sendRate = 5

// Config configures the Discord adapter.
type Config struct {
	Token     string
	Allowlist []string
}

// Adapter implements transport.Adapter over a discordgo gateway session.
type Adapter struct {
	cfg     Config
	session *discordgo.Session
	botID   string
	inbound chan messages.IncomingMessage
	limiter *rate.Limiter
}

// New opens a discordgo session (not yet connected; call Start).
func New(cfg Config) (*Adapter, error) {
	sess, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	sess.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Adapter{
		cfg:     cfg,
		session: sess,
		inbound: make(chan messages.IncomingMessage, 64),
		limiter: rate.NewLimiter(rate.Every(5*time.Second/sendRate), sendRate),
	}, nil
}

func (a *Adapter) Name() string       { return "discord" }
func (a *Adapter) CharacterLimit() int { return characterLimit }
func (a *Adapter) Inbound() <-chan messages.IncomingMessage { return a.inbound }

// Start opens the gateway connection and blocks until ctx is cancelled.
func (a *Adapter) Start(ctx context.Context) error {
	a.session.AddHandler(a.handleMessage)

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer a.session.Close()

	user, err := a.session.User("@me")
	if err != nil {
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	a.botID = user.ID
	slog.Info("discord adapter connected", "username", user.Username)

	<-ctx.Done()
	return nil
}

func (a *Adapter) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == a.botID {
		return
	}
	if len(a.cfg.Allowlist) > 0 && !slices.Contains(a.cfg.Allowlist, m.Author.ID) {
		return
	}

	a.inbound <- messages.IncomingMessage{
		Channel:    a.Name(),
		SenderID:   m.Author.ID,
		SenderName: m.Author.Username,
		SessionID:  session.Discord(m.ChannelID),
		Content:    m.Content,
		ReplyTo:    m.ID,
		IsGroup:    true, // Discord channels are always treated as group sessions
	}
}

type placeholderHandle struct {
	channelID string
	messageID string
}

func (a *Adapter) SendPlaceholder(ctx context.Context, sessionID, content string) (messages.PlaceholderHandle, error) {
	channelID := channelIDFromSession(sessionID)
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	sent, err := a.session.ChannelMessageSend(channelID, truncate(content))
	if err != nil {
		return nil, fmt.Errorf("discord send: %w", err)
	}
	return placeholderHandle{channelID: channelID, messageID: sent.ID}, nil
}

// EditMessage replaces the placeholder's text, splitting across additional
// messages if content exceeds Discord's 2000-character cap.
func (a *Adapter) EditMessage(ctx context.Context, handle messages.PlaceholderHandle, content string) error {
	h, ok := handle.(placeholderHandle)
	if !ok {
		return fmt.Errorf("discord: invalid placeholder handle")
	}
	chunks := splitOnLimit(content, characterLimit)
	if len(chunks) == 0 {
		return nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := a.session.ChannelMessageEdit(h.channelID, h.messageID, chunks[0]); err != nil {
		return fmt.Errorf("discord edit: %w", err)
	}
	for _, chunk := range chunks[1:] {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := a.session.ChannelMessageSend(h.channelID, chunk); err != nil {
			return fmt.Errorf("discord send overflow chunk: %w", err)
		}
	}
	return nil
}

func (a *Adapter) StartTyping(ctx context.Context, sessionID string) (messages.TypingCancel, error) {
	channelID := channelIDFromSession(sessionID)
	typingCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(8 * time.Second)
		defer ticker.Stop()
		_ = a.session.ChannelTyping(channelID)
		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				_ = a.session.ChannelTyping(channelID)
			}
		}
	}()
	return func() { cancel() }, nil
}

func channelIDFromSession(sessionID string) string {
	return strings.TrimPrefix(sessionID, session.PrefixDiscord)
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
