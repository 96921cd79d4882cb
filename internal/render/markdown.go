package render

import (
	"fmt"
	"strings"
)

// RenderMarkdown produces a heading-and-bullet rendering carrying the
// same logical content as RenderXML and RenderJSON.
func RenderMarkdown(ctx Context) string {
	var b strings.Builder

	b.WriteString("# Memory Bank Context\n\n")

	b.WriteString("## Project State\n\n")
	if ctx.State.Summary != "" {
		b.WriteString(ctx.State.Summary + "\n\n")
	}

	b.WriteString("## Decisions\n\n")
	for _, d := range ctx.State.Decisions {
		fmt.Fprintf(&b, "- **%s**: %s\n", d.Statement, d.Rationale)
	}
	b.WriteString("\n")

	b.WriteString("## Constraints\n\n")
	for _, c := range ctx.State.Constraints {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\n")

	b.WriteString("## Active Tasks\n\n")
	for _, item := range ctx.ActiveItems {
		fmt.Fprintf(&b, "- [%s] (%s) %s\n", item.Status, item.Priority, item.Text)
	}
	b.WriteString("\n")

	if len(ctx.Plans) > 0 {
		b.WriteString("## Plans\n\n")
		for _, p := range ctx.Plans {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", p.Title, p.Body)
		}
	}

	b.WriteString("## Recent Context Excerpts\n\n")
	for _, c := range ctx.Excerpts {
		fmt.Fprintf(&b, "- (%s) %s\n", c.SessionID, c.Text)
	}
	b.WriteString("\n")

	b.WriteString("## Instructions\n\n")
	b.WriteString(ctx.Instructions + "\n")

	return b.String()
}
