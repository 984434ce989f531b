package sqlite

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/conductor/internal/store"
)

func TestSanitizeFTSTerm(t *testing.T) {
	cases := map[string]string{
		`hello`:          `hello`,
		`"quoted"`:       `quoted`,
		`wild*card`:      `wildcard`,
		`a:b(c)^d`:       `abcd`,
		``:                ``,
	}
	for in, want := range cases {
		if got := sanitizeFTSTerm(in); got != want {
			t.Errorf("sanitizeFTSTerm(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFTSPrefixQuery(t *testing.T) {
	if got := ftsPrefixQuery("deploy staging"); got != "deploy* AND staging*" {
		t.Errorf("ftsPrefixQuery() = %q", got)
	}
	if got := ftsPrefixQuery(""); got != "" {
		t.Errorf("ftsPrefixQuery(empty) = %q, want empty", got)
	}
	if got := ftsPrefixQuery(`"malicious"*`); got != "malicious*" {
		t.Errorf("ftsPrefixQuery should sanitize special chars, got %q", got)
	}
}

func TestDecayFactorDecisionNeverDecays(t *testing.T) {
	createdAt := time.Now().UTC().AddDate(-5, 0, 0)
	if got := decayFactor(store.CategoryDecision, createdAt, time.Now().UTC()); got != 1 {
		t.Errorf("decision decay = %v, want 1 regardless of age", got)
	}
}

func TestDecayFactorHalfLife(t *testing.T) {
	now := time.Now().UTC()
	// A task (7-day half-life) exactly one half-life old should decay to ~0.5.
	createdAt := now.Add(-7 * 24 * time.Hour)
	got := decayFactor(store.CategoryTask, createdAt, now)
	if got < 0.49 || got > 0.51 {
		t.Errorf("decayFactor at one half-life = %v, want ~0.5", got)
	}
}

func TestDecayFactorFreshEntry(t *testing.T) {
	now := time.Now().UTC()
	if got := decayFactor(store.CategoryFact, now, now); got < 0.999 {
		t.Errorf("fresh entry decay = %v, want ~1", got)
	}
}

func TestDecayFactorUnknownCategory(t *testing.T) {
	createdAt := time.Now().UTC().AddDate(-10, 0, 0)
	if got := decayFactor(store.MemoryCategory("unknown"), createdAt, time.Now().UTC()); got != 1 {
		t.Errorf("unknown category decay = %v, want 1 (no decay configured)", got)
	}
}
