package telegram

import (
	"strings"
	"testing"
)

func TestTruncateUnderLimit(t *testing.T) {
	s := "short message"
	if got := truncate(s); got != s {
		t.Fatalf("truncate(%q) = %q, want unchanged", s, got)
	}
}

func TestTruncateOverLimitIsUTF8Safe(t *testing.T) {
	s := strings.Repeat("é", characterLimit+50)
	got := truncate(s)
	if n := len([]rune(got)); n != characterLimit {
		t.Fatalf("truncate() rune length = %d, want %d", n, characterLimit)
	}
	for _, r := range got {
		if r != 'é' {
			t.Fatalf("truncate() corrupted a multi-byte rune: %q", got)
		}
	}
}

func TestSplitOnLimitEmpty(t *testing.T) {
	if chunks := splitOnLimit("", 10); chunks != nil {
		t.Fatalf("splitOnLimit(\"\") = %v, want nil", chunks)
	}
}

func TestSplitOnLimitUnderLimit(t *testing.T) {
	chunks := splitOnLimit("hello", 100)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("splitOnLimit() = %v, want one chunk", chunks)
	}
}

func TestSplitOnLimitPrefersNewlineBoundary(t *testing.T) {
	// Build a string whose midpoint lands mid-word, with a newline just
	// before the limit so the splitter should cut there instead.
	first := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 5)
	content := first + strings.Repeat("c", 10)
	limit := len(first)

	chunks := splitOnLimit(content, limit)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if chunks[0] != strings.Repeat("a", 8) {
		t.Fatalf("expected split to prefer the newline boundary, first chunk = %q", chunks[0])
	}
}

func TestSplitOnLimitReassemblesContent(t *testing.T) {
	content := strings.Repeat("word ", 2000)
	chunks := splitOnLimit(content, characterLimit)
	if len(chunks) < 2 {
		t.Fatalf("expected content longer than the limit to split into multiple chunks, got %d", len(chunks))
	}
	var rebuilt strings.Builder
	for _, c := range chunks {
		if n := len([]rune(c)); n > characterLimit {
			t.Fatalf("chunk exceeds limit: %d runes", n)
		}
		rebuilt.WriteString(c)
	}
	if rebuilt.String() != content {
		t.Fatal("splitOnLimit should losslessly reassemble the original content")
	}
}
