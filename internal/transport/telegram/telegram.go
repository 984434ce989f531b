// Package telegram implements transport.Adapter over the Telegram Bot API
// via long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/conductor/internal/session"
	"github.com/nextlevelbuilder/conductor/pkg/messages"
)

// characterLimit is Telegram's per-message cap.
const characterLimit = 4096

// sendRate bounds outbound Bot API calls so a burst of placeholder edits
// can't trip Telegram's global ~30 msg/s limit.
const sendRate = 25

// Config configures the Telegram adapter.
type Config struct {
	Token     string
	Allowlist []string // sender ids permitted to talk to the bot; empty means allow all
}

// Adapter implements transport.Adapter over long polling.
type Adapter struct {
	cfg     Config
	bot     *telego.Bot
	inbound chan messages.IncomingMessage
	limiter *rate.Limiter
	cancel  context.CancelFunc
}

// New creates the Telegram bot client. It does not start polling; call Start.
func New(cfg Config) (*Adapter, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Adapter{
		cfg:     cfg,
		bot:     bot,
		inbound: make(chan messages.IncomingMessage, 64),
		limiter: rate.NewLimiter(rate.Limit(sendRate), sendRate),
	}, nil
}

func (a *Adapter) Name() string       { return "telegram" }
func (a *Adapter) CharacterLimit() int { return characterLimit }
func (a *Adapter) Inbound() <-chan messages.IncomingMessage { return a.inbound }

// Start begins long polling and blocks until ctx is cancelled.
func (a *Adapter) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	updates, err := a.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	slog.Info("telegram adapter connected")
	for {
		select {
		case <-pollCtx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				a.handleMessage(update.Message)
			}
		}
	}
}

func (a *Adapter) handleMessage(msg *telego.Message) {
	senderID := ""
	senderName := ""
	if msg.From != nil {
		senderID = strconv.FormatInt(msg.From.ID, 10)
		senderName = msg.From.Username
		if senderName == "" {
			senderName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		}
	}
	if len(a.cfg.Allowlist) > 0 && !slices.Contains(a.cfg.Allowlist, senderID) {
		slog.Warn("telegram message from non-allowlisted sender dropped", "sender_id", senderID)
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	isGroup := msg.Chat.Type != telego.ChatTypePrivate

	a.inbound <- messages.IncomingMessage{
		Channel:    a.Name(),
		SenderID:   senderID,
		SenderName: senderName,
		SessionID:  session.Telegram(chatID),
		Content:    msg.Text,
		ReplyTo:    strconv.Itoa(msg.MessageID),
		IsGroup:    isGroup,
	}
}

// placeholderHandle identifies an editable Telegram message.
type placeholderHandle struct {
	chatID    int64
	messageID int
}

func (a *Adapter) SendPlaceholder(ctx context.Context, sessionID, content string) (messages.PlaceholderHandle, error) {
	chatID, err := chatIDFromSession(sessionID)
	if err != nil {
		return nil, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	sent, err := a.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), truncate(content)))
	if err != nil {
		return nil, fmt.Errorf("telegram send: %w", err)
	}
	return placeholderHandle{chatID: chatID, messageID: sent.MessageID}, nil
}

// EditMessage replaces the placeholder's text, splitting across additional
// messages if content exceeds Telegram's 4096-character cap.
func (a *Adapter) EditMessage(ctx context.Context, handle messages.PlaceholderHandle, content string) error {
	h, ok := handle.(placeholderHandle)
	if !ok {
		return fmt.Errorf("telegram: invalid placeholder handle")
	}
	chunks := splitOnLimit(content, characterLimit)
	if len(chunks) == 0 {
		return nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := a.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(h.chatID),
		MessageID: h.messageID,
		Text:      chunks[0],
	})
	if err != nil {
		return fmt.Errorf("telegram edit: %w", err)
	}
	for _, chunk := range chunks[1:] {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := a.bot.SendMessage(ctx, tu.Message(tu.ID(h.chatID), chunk)); err != nil {
			return fmt.Errorf("telegram send overflow chunk: %w", err)
		}
	}
	return nil
}

func (a *Adapter) StartTyping(ctx context.Context, sessionID string) (messages.TypingCancel, error) {
	chatID, err := chatIDFromSession(sessionID)
	if err != nil {
		return nil, err
	}
	typingCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(4 * time.Second)
		defer ticker.Stop()
		_ = a.bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping))
		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				_ = a.bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping))
			}
		}
	}()
	return func() { cancel() }, nil
}

func chatIDFromSession(sessionID string) (int64, error) {
	raw := strings.TrimPrefix(sessionID, session.PrefixTelegram)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid session id %q: %w", sessionID, err)
	}
	return id, nil
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= characterLimit {
		return s
	}
	return string(r[:characterLimit])
}

// splitOnLimit breaks content into chunks no longer than limit runes,
// preferring to break on a newline boundary.
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
