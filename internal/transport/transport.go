// Package transport defines the adapter seam every chat transport
// implements. Concrete adapters live in
// internal/transport/{telegram,discord,slack}.
package transport

import (
	"context"

	"github.com/nextlevelbuilder/conductor/pkg/messages"
)

// PlaceholderHandle identifies a sent message that can later be edited
// (streaming) or finalized.
type PlaceholderHandle = messages.PlaceholderHandle

// TypingCancel stops a started typing indicator.
type TypingCancel = messages.TypingCancel

// Adapter is the minimal surface the Conductor needs from a chat
// transport. Name() must match the `channel` field of every message the
// adapter produces or accepts.
type Adapter interface {
	Name() string

	// SendPlaceholder posts content and returns a handle for later edits.
	SendPlaceholder(ctx context.Context, sessionID, content string) (PlaceholderHandle, error)
	// EditMessage replaces a previously sent placeholder's content,
	// splitting across multiple messages if content exceeds the
	// transport's single-message character limit.
	EditMessage(ctx context.Context, handle PlaceholderHandle, content string) error
	// StartTyping begins a typing indicator for sessionID and returns a
	// cancel function.
	StartTyping(ctx context.Context, sessionID string) (TypingCancel, error)

	// CharacterLimit is this transport's per-message cap (Telegram 4096,
	// Discord 2000, Slack ~4000).
	CharacterLimit() int

	// Inbound delivers every IncomingMessage the adapter receives. The
	// Conductor registers exactly one listener.
	Inbound() <-chan messages.IncomingMessage

	// Start begins receiving/polling. Start is expected to block until ctx
	// is cancelled.
	Start(ctx context.Context) error
}
