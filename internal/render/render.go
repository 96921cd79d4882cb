// Package render turns a resolved context (project state, excerpts,
// active work, plans) into one of the three wire formats of spec
// §4.11: XML, JSON, or Markdown. All three carry the same logical
// content over the same input model.
package render

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/ternarybob/memorybank/internal/storage"
)

// ActiveItem is a pending or in-progress todo/task surfaced in the
// ACTIVE_TASKS section.
type ActiveItem struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Status    string `json:"status"`
	Priority  string `json:"priority,omitempty"`
}

// Plan is a markdown plan document included in the PLANS section.
type Plan struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Context is the single input model shared by every renderer.
type Context struct {
	State        storage.ProjectState
	Excerpts     []storage.Chunk
	ActiveItems  []ActiveItem
	Plans        []Plan
	Instructions string
}

const defaultInstructions = "Use the sections above to restore working context for this project. " +
	"Recent excerpts are ordered most-recent-first and may be truncated; prefer PROJECT_STATE and " +
	"DECISIONS for durable facts."

// WithDefaultInstructions fills Instructions with the standard
// restoration guidance when the caller did not set one.
func (c Context) WithDefaultInstructions() Context {
	if c.Instructions == "" {
		c.Instructions = defaultInstructions
	}
	return c
}

// Format selects one of the three renderers.
type Format string

const (
	FormatXML      Format = "xml"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
)

// Render dispatches to the renderer named by format.
func Render(ctx Context, format Format) (string, error) {
	ctx = ctx.WithDefaultInstructions()
	switch format {
	case FormatXML:
		return RenderXML(ctx), nil
	case FormatJSON:
		return RenderJSON(ctx)
	case FormatMarkdown:
		return RenderMarkdown(ctx), nil
	default:
		return "", fmt.Errorf("render: unknown format %q", format)
	}
}

func xmlEscape(s string) string {
	var buf strings.Builder
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}

// xmlAttrEscape escapes text for use inside a double-quoted XML
// attribute; xml.EscapeText already escapes quotes, so this is the
// same transform as xmlEscape under a name that documents intent.
func xmlAttrEscape(s string) string {
	return xmlEscape(s)
}
