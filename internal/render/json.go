package render

import "encoding/json"

type jsonExcerpt struct {
	SessionID string  `json:"session_id"`
	Text      string  `json:"text"`
	TsEnd     float64 `json:"ts_end"`
}

type jsonDoc struct {
	Version        string                 `json:"version"`
	ProjectState   string                 `json:"project_state"`
	Decisions      []jsonDecision         `json:"decisions"`
	Constraints    []string               `json:"constraints"`
	ActiveTasks    []ActiveItem           `json:"active_tasks"`
	Plans          []Plan                 `json:"plans,omitempty"`
	RecentExcerpts []jsonExcerpt          `json:"recent_excerpts"`
	Instructions   string                 `json:"instructions"`
}

type jsonDecision struct {
	ID        string `json:"id"`
	Statement string `json:"statement"`
	Rationale string `json:"rationale"`
}

// RenderJSON produces a single JSON object carrying the same logical
// content as RenderXML and RenderMarkdown.
func RenderJSON(ctx Context) (string, error) {
	doc := jsonDoc{
		Version:      "1.0",
		ProjectState: ctx.State.Summary,
		Constraints:  ctx.State.Constraints,
		ActiveTasks:  ctx.ActiveItems,
		Plans:        ctx.Plans,
		Instructions: ctx.Instructions,
	}
	for _, d := range ctx.State.Decisions {
		doc.Decisions = append(doc.Decisions, jsonDecision{ID: d.ID, Statement: d.Statement, Rationale: d.Rationale})
	}
	for _, c := range ctx.Excerpts {
		doc.RecentExcerpts = append(doc.RecentExcerpts, jsonExcerpt{SessionID: c.SessionID, Text: c.Text, TsEnd: c.TsEnd})
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
