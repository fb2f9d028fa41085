package markdown

import (
	"strings"
	"testing"
)

func TestRenderBasicMarkdown(t *testing.T) {
	renderer := NewRenderer()
	html, err := renderer.Render("# Hello\n\nSome **bold** text.")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(html, "<h1>Hello</h1>") {
		t.Fatalf("heading not rendered: %q", html)
	}
	if !strings.Contains(html, "<strong>bold</strong>") {
		t.Fatalf("emphasis not rendered: %q", html)
	}
}

func TestRenderEscapesRawHTML(t *testing.T) {
	renderer := NewRenderer()
	html, err := renderer.Render(`before <script>alert("x")</script> after`)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("raw html passed through: %q", html)
	}
}

func TestRenderAutolinksURLs(t *testing.T) {
	renderer := NewRenderer()
	html, err := renderer.Render("visit https://example.com today")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(html, `<a href="https://example.com"`) {
		t.Fatalf("url not autolinked: %q", html)
	}
}

func TestRenderGFMTables(t *testing.T) {
	renderer := NewRenderer()
	html, err := renderer.Render("| a | b |\n|---|---|\n| 1 | 2 |")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(html, "<table>") {
		t.Fatalf("table not rendered: %q", html)
	}
}
