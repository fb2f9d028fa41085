// Package markdown renders note bodies to HTML.
package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Renderer converts Markdown note bodies to HTML. Raw HTML in tenant
// content is escaped, not passed through.
type Renderer struct {
	engine goldmark.Markdown
}

// NewRenderer constructs a renderer with the GFM extension set and URL
// autolinking enabled.
func NewRenderer() *Renderer {
	return &Renderer{
		engine: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Linkify,
			),
		),
	}
}

// Render converts the Markdown source to HTML.
func (r *Renderer) Render(source string) (string, error) {
	var buffer bytes.Buffer
	if err := r.engine.Convert([]byte(source), &buffer); err != nil {
		return "", fmt.Errorf("markdown: render failed: %w", err)
	}
	return buffer.String(), nil
}
