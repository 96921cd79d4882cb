// Package pack orchestrates the Pack Builder of spec §4.12: resolve a
// budget profile, retrieve recent-context excerpts, load artifacts and
// ProjectState, render, and enforce the token budget.
package pack

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/ternarybob/memorybank/internal/budget"
	"github.com/ternarybob/memorybank/internal/chunker"
	"github.com/ternarybob/memorybank/internal/config"
	"github.com/ternarybob/memorybank/internal/llmclient"
	"github.com/ternarybob/memorybank/internal/logger"
	"github.com/ternarybob/memorybank/internal/packmode"
	"github.com/ternarybob/memorybank/internal/render"
	"github.com/ternarybob/memorybank/internal/retriever"
	"github.com/ternarybob/memorybank/internal/state"
	"github.com/ternarybob/memorybank/internal/storage"
)

// recentPlanCount and activeItemSessionCount bound how many plans and
// how many sessions' worth of active todos/tasks are loaded; spec
// §4.12 names the quantities ("N most recent plans", "up to M
// sessions") without fixing N or M, so these are the Pack Builder's
// own defaults.
const (
	recentPlanCount        = 5
	activeItemSessionCount = 10
)

var priorityRank = map[string]int{"high": 0, "medium": 1, "low": 2}

// Options configures one Build call.
type Options struct {
	Mode         packmode.Mode // empty means auto-infer
	BudgetTokens int
	Format       render.Format
	Force        bool // regenerate ProjectState and rechunk even if fresh
}

// Builder owns everything Build needs: storage, config, and an
// embed/chat client.
type Builder struct {
	Storage *storage.Storage
	Config  *config.Config
	Client  llmclient.Client
}

// NewBuilder constructs a Builder from an already-open Storage, loaded
// Config, and a Client selected via llmclient.NewFromConfig.
func NewBuilder(s *storage.Storage, cfg *config.Config, client llmclient.Client) *Builder {
	return &Builder{Storage: s, Config: cfg, Client: client}
}

// Build runs the full pipeline and returns the rendered pack.
func (b *Builder) Build(ctx context.Context, opts Options) (string, error) {
	if opts.BudgetTokens <= 0 {
		opts.BudgetTokens = 8000
	}
	if opts.Format == "" {
		opts.Format = render.FormatXML
	}

	if err := b.ensureChunked(opts.Force); err != nil {
		return "", fmt.Errorf("pack: ensure chunked: %w", err)
	}

	mode := opts.Mode
	if mode == "" {
		inferred, err := packmode.InferMode(b.Storage)
		if err != nil {
			return "", fmt.Errorf("pack: infer mode: %w", err)
		}
		mode = inferred
	}
	profile := packmode.Resolve(b.Config, mode)

	excerpts, err := b.retrieveExcerpts(mode)
	if err != nil {
		return "", fmt.Errorf("pack: retrieve excerpts: %w", err)
	}

	plans, err := b.loadPlans()
	if err != nil {
		return "", fmt.Errorf("pack: load plans: %w", err)
	}

	activeItems, err := b.loadActiveItems()
	if err != nil {
		return "", fmt.Errorf("pack: load active items: %w", err)
	}

	projectState, err := b.loadOrRegenerateState(ctx, opts.Force)
	if err != nil {
		return "", fmt.Errorf("pack: load project state: %w", err)
	}

	decisionCap := int(math.Floor(profile.Decisions * float64(opts.BudgetTokens)))
	activeTasksCap := int(math.Floor(profile.ActiveTasks * float64(opts.BudgetTokens)))
	plansCap := int(math.Floor(profile.Plans * float64(opts.BudgetTokens)))
	recentCap := int(math.Floor(profile.RecentContext * float64(opts.BudgetTokens)))

	projectState.Decisions = truncateDecisions(projectState.Decisions, decisionCap)
	activeItems = truncateActiveItems(activeItems, activeTasksCap)
	plans = truncatePlans(plans, plansCap)
	excerpts = truncateExcerpts(excerpts, recentCap)

	renderCtx := render.Context{
		State:       *projectState,
		Excerpts:    excerpts,
		ActiveItems: activeItems,
		Plans:       plans,
	}

	out, err := render.Render(renderCtx, opts.Format)
	if err != nil {
		return "", fmt.Errorf("pack: render: %w", err)
	}

	return b.enforceFinalBudget(out, opts), nil
}

// retrieveExcerpts implements spec §4.12 step 4: RecencyRetriever by
// default, switching to ContextualRetriever around the latest failed
// session in debug mode.
func (b *Builder) retrieveExcerpts(mode packmode.Mode) ([]storage.Chunk, error) {
	if mode == packmode.Debug {
		failed, err := packmode.FindLatestErrorSession(b.Storage)
		if err != nil {
			return nil, err
		}
		if failed != nil {
			cr := retriever.DefaultContextualRetriever()
			return cr.RetrieveAroundFailure(b.Storage, failed.SessionID)
		}
	}

	rr := retriever.DefaultRecencyRetriever()
	rr.HalfLifeDays = b.Config.Decay.HalfLifeDays
	if !b.Config.Decay.Enabled {
		rr.HalfLifeDays = 0
	}
	rr.NearThreshold = b.Config.Dedup.NearDuplicateThreshold
	return rr.Retrieve(b.Storage, float64(time.Now().Unix()))
}

func (b *Builder) loadPlans() ([]render.Plan, error) {
	metas, err := b.Storage.ListPlans()
	if err != nil {
		return nil, err
	}
	if len(metas) > recentPlanCount {
		metas = metas[:recentPlanCount]
	}

	plans := make([]render.Plan, 0, len(metas))
	for _, meta := range metas {
		_, body, err := b.Storage.ReadPlan(meta.Slug)
		if err != nil {
			logger.GetLogger().Warn().Err(err).Str("slug", meta.Slug).Msg("skipping unreadable plan")
			continue
		}
		plans = append(plans, render.Plan{Slug: meta.Slug, Title: meta.Title, Body: body})
	}
	return plans, nil
}

func (b *Builder) loadActiveItems() ([]render.ActiveItem, error) {
	sessions, err := b.Storage.ListSessions()
	if err != nil {
		return nil, err
	}
	if len(sessions) > activeItemSessionCount {
		sessions = sessions[:activeItemSessionCount]
	}

	var items []render.ActiveItem
	for _, sess := range sessions {
		todos, err := b.Storage.ReadTodos(sess.SessionID)
		if err != nil {
			continue
		}
		for _, t := range todos {
			if t.Status != "pending" && t.Status != "in_progress" {
				continue
			}
			items = append(items, render.ActiveItem{ID: t.ID, SessionID: t.SessionID, Text: t.Text, Status: t.Status, Priority: t.Priority})
		}

		tasks, err := b.Storage.ReadTasks(sess.SessionID)
		if err != nil {
			continue
		}
		for _, t := range tasks {
			if t.Status != "pending" && t.Status != "in_progress" {
				continue
			}
			items = append(items, render.ActiveItem{ID: t.ID, SessionID: t.SessionID, Text: t.Text, Status: t.Status})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return priorityRankOf(items[i].Priority) < priorityRankOf(items[j].Priority)
	})
	return items, nil
}

func priorityRankOf(priority string) int {
	if r, ok := priorityRank[priority]; ok {
		return r
	}
	return len(priorityRank)
}

func (b *Builder) loadOrRegenerateState(ctx context.Context, force bool) (*storage.ProjectState, error) {
	if !force {
		needs, err := state.NeedsRegeneration(b.Storage)
		if err != nil {
			return nil, err
		}
		if !needs {
			existing, err := b.Storage.ReadState()
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return existing, nil
			}
		}
	}

	if b.Client == nil {
		return &storage.ProjectState{}, nil
	}
	return state.GenerateAndPersist(ctx, b.Storage, b.Client, float64(time.Now().Unix()))
}

// ensureChunked chunks any session missing chunks.jsonl (or, when
// force is set, every session) using the terminal chunker — the
// structured-transcript chunker applies only to hook-imported sessions,
// handled by internal/pipeline.
func (b *Builder) ensureChunked(force bool) error {
	sessions, err := b.Storage.ListSessions()
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if !force {
			existing, err := b.Storage.ReadChunks(sess.SessionID)
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				continue
			}
		}
		events, err := b.Storage.ReadEvents(sess.SessionID)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			continue
		}
		chunks := chunker.Terminal(sess.SessionID, events, b.Config.Chunking.MaxTokens)
		if err := b.Storage.WriteChunks(sess.SessionID, chunks); err != nil {
			return err
		}
	}
	return nil
}

func truncateDecisions(decisions []storage.Decision, capTokens int) []storage.Decision {
	var out []storage.Decision
	used := 0
	for _, d := range decisions {
		cost := budget.EstimateTokens(d.Statement + d.Rationale)
		if used+cost > capTokens && len(out) > 0 {
			break
		}
		out = append(out, d)
		used += cost
	}
	return out
}

func truncateActiveItems(items []render.ActiveItem, capTokens int) []render.ActiveItem {
	var out []render.ActiveItem
	used := 0
	for _, item := range items {
		cost := budget.EstimateTokens(item.Text)
		if used+cost > capTokens && len(out) > 0 {
			break
		}
		out = append(out, item)
		used += cost
	}
	return out
}

func truncatePlans(plans []render.Plan, capTokens int) []render.Plan {
	var out []render.Plan
	used := 0
	for _, p := range plans {
		cost := budget.EstimateTokens(p.Body)
		if used+cost > capTokens && len(out) > 0 {
			break
		}
		out = append(out, p)
		used += cost
	}
	return out
}

func truncateExcerpts(chunks []storage.Chunk, capTokens int) []storage.Chunk {
	var out []storage.Chunk
	used := 0
	for _, c := range chunks {
		cost := budget.EstimateTokens(c.Text)
		if used+cost > capTokens && len(out) > 0 {
			break
		}
		out = append(out, c)
		used += cost
	}
	return out
}

// enforceFinalBudget is the safety net named in spec §4.12 step 9: the
// per-section caps above should already have landed the render under
// budget, but a final pass guarantees the invariant and warns if it had
// to cut further.
func (b *Builder) enforceFinalBudget(rendered string, opts Options) string {
	isXML := opts.Format == render.FormatXML
	sections := []budget.Section{{Name: "pack", Content: rendered, Priority: 0, IsXML: isXML}}
	out := budget.Enforce(sections, opts.BudgetTokens)
	if out[0].Content != rendered {
		fmt.Fprintln(os.Stderr, "memorybank: pack output exceeded budget after section-level truncation; applied a final safety truncation")
	}
	return out[0].Content
}
