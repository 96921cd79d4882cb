package render

import (
	"fmt"
	"strings"
)

// RenderXML produces the <MEMORY_BANK_CONTEXT version="1.0"> envelope
// with ordered child elements. Empty sections self-close; all user
// text is XML-escaped. The element boundaries here are exactly what
// internal/budget's element-aware truncation path trims from the tail.
func RenderXML(ctx Context) string {
	var b strings.Builder
	b.WriteString(`<MEMORY_BANK_CONTEXT version="1.0">` + "\n")

	writeElement(&b, "PROJECT_STATE", ctx.State.Summary)

	b.WriteString("<DECISIONS>")
	if len(ctx.State.Decisions) == 0 {
		b.WriteString("</DECISIONS>\n")
	} else {
		b.WriteString("\n")
		for _, d := range ctx.State.Decisions {
			fmt.Fprintf(&b, "<DECISION id=\"%s\"><STATEMENT>%s</STATEMENT><RATIONALE>%s</RATIONALE></DECISION>\n",
				xmlAttrEscape(d.ID), xmlEscape(d.Statement), xmlEscape(d.Rationale))
		}
		b.WriteString("</DECISIONS>\n")
	}

	b.WriteString("<CONSTRAINTS>")
	if len(ctx.State.Constraints) == 0 {
		b.WriteString("</CONSTRAINTS>\n")
	} else {
		b.WriteString("\n")
		for _, c := range ctx.State.Constraints {
			fmt.Fprintf(&b, "<CONSTRAINT>%s</CONSTRAINT>\n", xmlEscape(c))
		}
		b.WriteString("</CONSTRAINTS>\n")
	}

	b.WriteString("<ACTIVE_TASKS>")
	if len(ctx.ActiveItems) == 0 {
		b.WriteString("</ACTIVE_TASKS>\n")
	} else {
		b.WriteString("\n")
		for _, item := range ctx.ActiveItems {
			fmt.Fprintf(&b, "<TASK id=\"%s\" status=\"%s\" priority=\"%s\">%s</TASK>\n",
				xmlAttrEscape(item.ID), xmlAttrEscape(item.Status), xmlAttrEscape(item.Priority), xmlEscape(item.Text))
		}
		b.WriteString("</ACTIVE_TASKS>\n")
	}

	if len(ctx.Plans) > 0 {
		b.WriteString("<PLANS>\n")
		for _, p := range ctx.Plans {
			fmt.Fprintf(&b, "<PLAN slug=\"%s\" title=\"%s\">%s</PLAN>\n", xmlAttrEscape(p.Slug), xmlAttrEscape(p.Title), xmlEscape(p.Body))
		}
		b.WriteString("</PLANS>\n")
	}

	b.WriteString("<RECENT_CONTEXT_EXCERPTS>")
	if len(ctx.Excerpts) == 0 {
		b.WriteString("</RECENT_CONTEXT_EXCERPTS>\n")
	} else {
		b.WriteString("\n")
		for _, c := range ctx.Excerpts {
			fmt.Fprintf(&b, "<EXCERPT session_id=\"%s\" ts_end=\"%g\">%s</EXCERPT>\n",
				xmlAttrEscape(c.SessionID), c.TsEnd, xmlEscape(c.Text))
		}
		b.WriteString("</RECENT_CONTEXT_EXCERPTS>\n")
	}

	writeElement(&b, "INSTRUCTIONS", ctx.Instructions)

	b.WriteString("</MEMORY_BANK_CONTEXT>\n")
	return b.String()
}

func writeElement(b *strings.Builder, name, content string) {
	if content == "" {
		fmt.Fprintf(b, "<%s/>\n", name)
		return
	}
	fmt.Fprintf(b, "<%s>%s</%s>\n", name, xmlEscape(content), name)
}
