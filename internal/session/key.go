// Package session builds and parses the canonical session id used to key
// the tape, route outbound replies, and select a transport adapter.
//
// Formats:
//
//	tg-<chat>                    Telegram
//	dc-<channel>                 Discord
//	slack-<channel>[-<thread>]   Slack
//	cron-<jobname>               Scheduler
package session

import "strings"

const (
	PrefixTelegram = "tg-"
	PrefixDiscord  = "dc-"
	PrefixSlack    = "slack-"
	PrefixCron     = "cron-"
)

// Telegram builds a Telegram session id for a chat.
func Telegram(chatID string) string { return PrefixTelegram + chatID }

// Discord builds a Discord session id for a channel.
func Discord(channelID string) string { return PrefixDiscord + channelID }

// Slack builds a Slack session id for a channel, optionally scoped to a thread.
func Slack(channelID, threadTS string) string {
	if threadTS == "" {
		return PrefixSlack + channelID
	}
	return PrefixSlack + channelID + "-" + threadTS
}

// Cron builds the session id used to deliver a cron job's output.
func Cron(jobName string) string { return PrefixCron + jobName }

// Adapter returns the transport adapter name that owns this session id,
// derived from its prefix. Returns "" if the id matches no known prefix.
func Adapter(sessionID string) string {
	switch {
	case strings.HasPrefix(sessionID, PrefixTelegram):
		return "telegram"
	case strings.HasPrefix(sessionID, PrefixDiscord):
		return "discord"
	case strings.HasPrefix(sessionID, PrefixSlack):
		return "slack"
	case strings.HasPrefix(sessionID, PrefixCron):
		return "cron"
	default:
		return ""
	}
}

// IsGroup reports whether a session id denotes a multi-party conversation
// (Discord channels and Slack channels are always "group" from the
// Conductor's point of view; Telegram DMs vs groups are disambiguated
// upstream by the transport adapter via IncomingMessage.IsGroup).
func IsGroup(sessionID string) bool {
	return strings.HasPrefix(sessionID, PrefixDiscord) || strings.HasPrefix(sessionID, PrefixSlack)
}
