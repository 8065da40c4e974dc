package router

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPreviewBoundsLength(t *testing.T) {
	s := strings.Repeat("x", 5000)
	out := preview(s, 400)
	if !strings.HasSuffix(out, "…") {
		t.Fatalf("expected ellipsis, got %q", out[len(out)-8:])
	}
	if got := len(strings.TrimSuffix(out, "…")); got != 400 {
		t.Fatalf("expected 400 bytes kept, got %d", got)
	}
	if preview("short", 400) != "short" {
		t.Fatalf("short input must pass through")
	}
}

func TestPreviewCutsOnRuneBoundary(t *testing.T) {
	s := strings.Repeat("é", 10)
	out := preview(s, 5)
	if !utf8.ValidString(out) {
		t.Fatalf("preview split a rune: %q", out)
	}
}

func TestTruncateToolResult(t *testing.T) {
	s := strings.Repeat("a", 2000)
	out := truncateToolResult(s, 100)
	if !strings.Contains(out, "[truncated: result was 2000 bytes]") {
		t.Fatalf("expected truncation marker, got %q", out)
	}
	if truncateToolResult(s, 0) != s {
		t.Fatalf("zero limit must disable truncation")
	}
}
