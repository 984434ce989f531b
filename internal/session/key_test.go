package session

import "testing"

func TestBuilders(t *testing.T) {
	if got := Telegram("123"); got != "tg-123" {
		t.Errorf("Telegram() = %q", got)
	}
	if got := Discord("456"); got != "dc-456" {
		t.Errorf("Discord() = %q", got)
	}
	if got := Slack("C1", ""); got != "slack-C1" {
		t.Errorf("Slack(no thread) = %q", got)
	}
	if got := Slack("C1", "167700.01"); got != "slack-C1-167700.01" {
		t.Errorf("Slack(thread) = %q", got)
	}
	if got := Cron("daily-digest"); got != "cron-daily-digest" {
		t.Errorf("Cron() = %q", got)
	}
}

func TestAdapter(t *testing.T) {
	cases := map[string]string{
		"tg-123":          "telegram",
		"dc-456":          "discord",
		"slack-C1":        "slack",
		"slack-C1-167700": "slack",
		"cron-job":        "cron",
		"unknown-1":       "",
	}
	for id, want := range cases {
		if got := Adapter(id); got != want {
			t.Errorf("Adapter(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestIsGroup(t *testing.T) {
	cases := map[string]bool{
		"tg-123":   false,
		"dc-456":   true,
		"slack-C1": true,
		"cron-job": false,
	}
	for id, want := range cases {
		if got := IsGroup(id); got != want {
			t.Errorf("IsGroup(%q) = %v, want %v", id, got, want)
		}
	}
}
