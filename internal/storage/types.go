// Package storage owns the on-disk layout for one project-scoped Memory
// Bank root: sessions, events, chunks, the embedding index, artifacts,
// and the hook/import state files. All entities are immutable once
// written (see spec §3); Storage is the only package that reads or
// writes these files directly.
package storage

// Session is a captured or imported interactive run.
type Session struct {
	SessionID string   `json:"session_id"`
	Command   []string `json:"command"`
	Cwd       string   `json:"cwd"`
	StartedAt float64  `json:"started_at"`
	EndedAt   *float64 `json:"ended_at,omitempty"`
	ExitCode  *int     `json:"exit_code,omitempty"`
	Source    string   `json:"source,omitempty"` // pty | hook | import
}

// Event is one timestamped entry in a session's events.jsonl.
type Event struct {
	EventID   string  `json:"event_id"`
	Ts        float64 `json:"ts"`
	SessionID string  `json:"session_id"`
	Stream    string  `json:"stream"` // stdin | stdout | stderr | system
	Role      string  `json:"role"`
	Content   string  `json:"content"`
}

// Chunk is a semantically meaningful, quality-scored text segment.
type Chunk struct {
	ChunkID       string  `json:"chunk_id"`
	SessionID     string  `json:"session_id"`
	Index         int     `json:"index"`
	Text          string  `json:"text"`
	TsStart       float64 `json:"ts_start"`
	TsEnd         float64 `json:"ts_end"`
	TokenEstimate int     `json:"token_estimate"`
	QualityScore  float64 `json:"quality_score"`
	ArtifactType  string  `json:"artifact_type,omitempty"` // plan | todo | task
	Source        string  `json:"source,omitempty"`
	TurnNumber    int     `json:"turn_number,omitempty"`
}

// TodoItem is one entry in a session's todo list artifact.
type TodoItem struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Status    string `json:"status"`   // pending | in_progress | completed
	Priority  string `json:"priority"` // high | medium | low
}

// TaskItem is one node in a session's task DAG (not validated acyclic).
type TaskItem struct {
	ID        string   `json:"id"`
	SessionID string   `json:"session_id"`
	Text      string   `json:"text"`
	Status    string   `json:"status"` // pending | in_progress | completed | deleted
	Blocks    []string `json:"blocks,omitempty"`
	BlockedBy []string `json:"blocked_by,omitempty"`
}

// PlanMeta describes a markdown plan document identified by slug.
type PlanMeta struct {
	Slug      string  `json:"slug"`
	SessionID string  `json:"session_id"`
	Title     string  `json:"title"`
	CreatedAt float64 `json:"created_at"`
}

// SessionNode is the Session Graph's derived view of one session.
type SessionNode struct {
	SessionID       string   `json:"session_id"`
	EpisodeType     string   `json:"episode_type"`
	HasError        bool     `json:"has_error"`
	ErrorSummary    string   `json:"error_summary,omitempty"`
	RelatedSessions []string `json:"related_sessions,omitempty"`
}

// Decision is one recorded project decision.
type Decision struct {
	ID        string `json:"id"`
	Statement string `json:"statement"`
	Rationale string `json:"rationale"`
}

// TaskRef is a summarized task reference inside a ProjectState.
type TaskRef struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ProjectState is the LLM-generated snapshot of a project, persisted at
// state/state.json.
type ProjectState struct {
	Summary        string     `json:"summary"`
	Decisions      []Decision `json:"decisions"`
	Constraints    []string   `json:"constraints"`
	Tasks          []TaskRef  `json:"tasks"`
	UpdatedAt      float64    `json:"updated_at"`
	SourceSessions []string   `json:"source_sessions"`
}

// HookEntry tracks one external session the hook handler has seen.
type HookEntry struct {
	MBSessionID    string  `json:"mb_session_id"`
	TranscriptPath string  `json:"transcript_path"`
	TranscriptSize int64   `json:"transcript_size"`
	LastProcessed  float64 `json:"last_processed"`
}

// HooksState is the whole content of hooks_state.json.
type HooksState struct {
	Sessions map[string]HookEntry `json:"sessions"`
}

// ImportState is the whole content of import_state.json.
type ImportState struct {
	Imported map[string]string `json:"imported"` // external_uuid -> mb_session_id
}
