package app

import (
	"strings"
	"testing"
)

func TestExtractTextPlain(t *testing.T) {
	got, err := ExtractText("notes.txt", []byte("  a   b \n\n c  \n"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "a b\nc" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestExtractTextHTMLSkipsScripts(t *testing.T) {
	const page = `<html><head><script>var x = 1;</script></head>` +
		`<body><p>Hello</p><div>world</div></body></html>`
	got, err := ExtractText("page.html", []byte(page))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(got, "Hello") || !strings.Contains(got, "world") {
		t.Fatalf("expected body text, got %q", got)
	}
	if strings.Contains(got, "var x") {
		t.Fatalf("script content leaked into %q", got)
	}
}

func TestExtractTextUnsupported(t *testing.T) {
	if _, err := ExtractText("image.png", []byte{0x89}); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestClampText(t *testing.T) {
	long := strings.Repeat("a", maxExtractRunes+100)
	if got := clampText(long); len([]rune(got)) != maxExtractRunes {
		t.Fatalf("clamp length = %d", len([]rune(got)))
	}
}
