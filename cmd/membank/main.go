// Command membank captures interactive AI-CLI coding sessions, extracts
// structured artifacts, and synthesizes token-budgeted context packs for
// a project's working directory.
//
// Usage:
//
//	membank init                          - create storage in cwd
//	membank run -- <argv>                 - PTY-capture a child command
//	membank sessions                      - list sessions newest first
//	membank delete <session_id>           - remove a session
//	membank search <query>                - embed + cosine search
//	membank pack                          - build a context pack
//	membank import [--dry-run]            - retroactively ingest transcripts
//	membank graph [--json]                - classify session episodes
//	membank reindex                       - rebuild the embedding index
//	membank migrate                       - apply storage schema migrations
//	membank hooks install|uninstall|status - manage host AI CLI hooks
//	membank projects [--json]             - manage the global registry
//	membank mcp                           - start an MCP stdio server
//	membank watch                         - reindex on file-system change
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/memorybank/internal/capture"
	"github.com/ternarybob/memorybank/internal/config"
	"github.com/ternarybob/memorybank/internal/graph"
	"github.com/ternarybob/memorybank/internal/hooks"
	"github.com/ternarybob/memorybank/internal/index"
	"github.com/ternarybob/memorybank/internal/llmclient"
	"github.com/ternarybob/memorybank/internal/logger"
	"github.com/ternarybob/memorybank/internal/mcpserver"
	"github.com/ternarybob/memorybank/internal/migrate"
	"github.com/ternarybob/memorybank/internal/pack"
	"github.com/ternarybob/memorybank/internal/packmode"
	"github.com/ternarybob/memorybank/internal/pipeline"
	"github.com/ternarybob/memorybank/internal/project"
	"github.com/ternarybob/memorybank/internal/redact"
	"github.com/ternarybob/memorybank/internal/render"
	"github.com/ternarybob/memorybank/internal/rerank"
	"github.com/ternarybob/memorybank/internal/storage"
	"github.com/ternarybob/memorybank/internal/watch"
)

const hookCommand = "membank hook"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "init":
		err = cmdInit(args)
	case "run":
		err = cmdRun(args)
	case "sessions":
		err = cmdSessions(args)
	case "delete":
		err = cmdDelete(args)
	case "search":
		err = cmdSearch(args)
	case "pack":
		err = cmdPack(args)
	case "import":
		err = cmdImport(args)
	case "graph":
		err = cmdGraph(args)
	case "reindex":
		err = cmdReindex(args)
	case "migrate":
		err = cmdMigrate(args)
	case "hooks":
		err = cmdHooks(args)
	case "projects":
		err = cmdProjects(args)
	case "mcp":
		err = cmdMCP(args)
	case "watch":
		err = cmdWatch(args)
	case "hook":
		err = cmdHook(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		switch err.(type) {
		case *storage.ServiceUnavailable:
			os.Exit(2)
		default:
			os.Exit(1)
		}
	}
}

func printUsage() {
	fmt.Println(`membank - local developer memory for interactive AI coding sessions

Commands:
  init                              Create storage in the current directory
  run -- <argv>                     Capture a child command in a PTY
  sessions                          List sessions, newest first
  delete <session_id>               Remove a session
  search <query> [--top N] [--type session|plan|todo|task] [--rerank] [--no-decay] [--global] [--json]
  pack [--budget N] [--format xml|json|md] [--out PATH] [--mode auto|debug|build|explore]
  import [--dry-run]                Retroactively ingest the host AI CLI's transcripts
  graph [--json]                    Classify each session's episode and error status
  reindex                           Rebuild the embedding index
  migrate                           Apply any pending storage schema migrations
  hooks install [--autostart] | uninstall | status
  projects [--json] | projects remove <path>
  mcp                               Start an MCP stdio server
  watch                             Reindex automatically on file-system change`)
}

func openProject() (*storage.Storage, *config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("get working directory: %w", err)
	}
	s := storage.Open(cwd)
	if !fileExists(s.ConfigPath()) {
		return nil, nil, storage.NewUserError("not a memory bank project (run `membank init` first)")
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, nil, err
	}
	logger.InitLogger(logger.SetupLogger(cfg))
	return s, cfg, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func cmdInit(args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	s := storage.Open(cwd)
	created, err := s.Init()
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := config.Save(cwd, config.DefaultConfig()); err != nil {
		return fmt.Errorf("init: write config: %w", err)
	}

	home, err := os.UserHomeDir()
	if err == nil {
		path, err := project.DefaultPath()
		if err == nil {
			reg := project.NewRegistry(path)
			if err := reg.Load(); err == nil {
				if _, err := reg.Register(cwd, filepath.Base(cwd)); err == nil {
					_ = reg.Save()
				}
			}
		}
		_ = home
	}

	if created {
		fmt.Printf("initialized memory bank in %s\n", s.Root)
	} else {
		fmt.Printf("memory bank already initialized in %s\n", s.Root)
	}
	return nil
}

func cmdRun(args []string) error {
	if len(args) == 0 || args[0] != "--" {
		return storage.NewUserError("usage: membank run -- <argv>")
	}
	argv := args[1:]
	if len(argv) == 0 {
		return storage.NewUserError("usage: membank run -- <argv>")
	}

	s, _, err := openProject()
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	exitCode, err := capture.Session(s, argv, cwd, redact.New(true))
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	os.Exit(exitCode)
	return nil
}

func cmdSessions(args []string) error {
	s, _, err := openProject()
	if err != nil {
		return err
	}

	sessions, err := s.ListSessions()
	if err != nil {
		return err
	}

	asJSON := hasFlag(args, "--json")
	if asJSON {
		return outputJSON(sessions)
	}

	fmt.Printf("%-22s %-24s %-20s %s\n", "SESSION", "COMMAND", "STARTED (UTC)", "EXIT")
	for _, sess := range sessions {
		cmdStr := strings.Join(sess.Command, " ")
		if cmdStr == "" {
			cmdStr = "-"
		}
		started := time.Unix(int64(sess.StartedAt), 0).UTC().Format("2006-01-02 15:04:05")
		exitStr := "-"
		if sess.ExitCode != nil {
			exitStr = strconv.Itoa(*sess.ExitCode)
		}
		chunks, _ := s.ReadChunks(sess.SessionID)
		suffix := ""
		if len(chunks) > 0 {
			suffix = fmt.Sprintf(" (%d chunks)", len(chunks))
		}
		fmt.Printf("%-22s %-24s %-20s %s%s\n", sess.SessionID, cmdStr, started, exitStr, suffix)
	}
	return nil
}

func cmdDelete(args []string) error {
	if len(args) < 1 {
		return storage.NewUserError("usage: membank delete <session_id>")
	}
	s, cfg, err := openProject()
	if err != nil {
		return err
	}
	if err := s.DeleteSession(args[0]); err != nil {
		return err
	}

	ix := index.New(s, cfg.Ollama.EmbedDim)
	if err := ix.Clear(); err != nil {
		return fmt.Errorf("delete: clear index: %w", err)
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}

// globalResult tags a search hit with the project it was found in, for
// `search --global` output.
type globalResult struct {
	index.Result
	ProjectPath string `json:"project_path"`
}

func cmdSearch(args []string) error {
	if len(args) < 1 {
		return storage.NewUserError("usage: membank search <query> [--top N] [--type TYPE] [--rerank] [--no-decay] [--global] [--json]")
	}
	query := args[0]
	topK := 10
	artifactType := ""
	noDecay := false
	asJSON := false
	useRerank := false
	global := false

	for i := 1; i < len(args); i++ {
		switch {
		case args[i] == "--top" && i+1 < len(args):
			n, err := strconv.Atoi(args[i+1])
			if err == nil {
				topK = n
			}
			i++
		case args[i] == "--type" && i+1 < len(args):
			artifactType = args[i+1]
			i++
		case args[i] == "--no-decay":
			noDecay = true
		case args[i] == "--rerank":
			useRerank = true
		case args[i] == "--global":
			global = true
		case args[i] == "--json":
			asJSON = true
		}
	}

	s, cfg, err := openProject()
	if err != nil {
		return err
	}
	client, err := llmclient.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	if err := client.Available(context.Background()); err != nil {
		return err
	}

	ctx := context.Background()
	vectors, err := client.Embed(ctx, []string{query})
	if err != nil {
		return err
	}
	if len(vectors) == 0 {
		return fmt.Errorf("search: embedding service returned no vector")
	}
	queryVector := vectors[0]

	if global {
		results, err := globalSearch(ctx, s, cfg, queryVector, topK, noDecay, artifactType)
		if err != nil {
			return err
		}
		if asJSON {
			return outputJSON(results)
		}
		for _, r := range results {
			fmt.Printf("[%.3f] %s (%s) %s\n  %s\n", r.Score, r.ChunkID, r.SessionID, r.ProjectPath, r.Text)
		}
		return nil
	}

	ix := index.New(s, cfg.Ollama.EmbedDim)
	results, err := ix.Search(queryVector, topK, cfg.Decay.HalfLifeDays, noDecay, artifactType, float64(time.Now().Unix()))
	if err != nil {
		return err
	}

	if useRerank {
		results = rerank.Rerank(ctx, query, results, client, topK)
	}

	if asJSON {
		return outputJSON(results)
	}
	for _, r := range results {
		fmt.Printf("[%.3f] %s (%s)\n  %s\n", r.Score, r.ChunkID, r.SessionID, r.Text)
	}
	return nil
}

// globalSearch embeds the query once (by the caller) and searches
// every project in the global registry, merging hits by score. A
// project whose storage is missing, uninitialized, or configured with
// a different embedding dimension is skipped with a warning rather
// than failing the whole search.
func globalSearch(ctx context.Context, current *storage.Storage, currentCfg *config.Config, queryVector []float32, topK int, noDecay bool, artifactType string) ([]globalResult, error) {
	registryPath, err := project.DefaultPath()
	if err != nil {
		return nil, err
	}
	reg := project.NewRegistry(registryPath)
	if err := reg.Load(); err != nil {
		return nil, err
	}

	now := float64(time.Now().Unix())
	var merged []globalResult

	searchOne := func(s *storage.Storage, cfg *config.Config, label string) {
		if len(queryVector) != cfg.Ollama.EmbedDim {
			logger.GetLogger().Warn().Str("project", label).Msg("global search: skipping project with mismatched embedding dimension")
			return
		}
		ix := index.New(s, cfg.Ollama.EmbedDim)
		results, err := ix.Search(queryVector, topK, cfg.Decay.HalfLifeDays, noDecay, artifactType, now)
		if err != nil {
			logger.GetLogger().Warn().Err(err).Str("project", label).Msg("global search: project search failed")
			return
		}
		for _, r := range results {
			merged = append(merged, globalResult{Result: r, ProjectPath: label})
		}
	}

	searchOne(current, currentCfg, current.Root)

	for _, p := range reg.List() {
		if p.Path == current.Root {
			continue
		}
		s := storage.Open(p.Path)
		if !fileExists(s.ConfigPath()) {
			logger.GetLogger().Warn().Str("project", p.Path).Msg("global search: skipping project with no storage")
			continue
		}
		cfg, err := config.Load(p.Path)
		if err != nil {
			logger.GetLogger().Warn().Err(err).Str("project", p.Path).Msg("global search: skipping project with unreadable config")
			continue
		}
		searchOne(s, cfg, p.Path)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

func cmdPack(args []string) error {
	opts := pack.Options{BudgetTokens: 8000, Format: render.FormatXML}
	outPath := ""

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--budget" && i+1 < len(args):
			n, err := strconv.Atoi(args[i+1])
			if err == nil {
				opts.BudgetTokens = n
			}
			i++
		case args[i] == "--format" && i+1 < len(args):
			opts.Format = render.Format(args[i+1])
			i++
		case args[i] == "--out" && i+1 < len(args):
			outPath = args[i+1]
			i++
		case args[i] == "--mode" && i+1 < len(args):
			opts.Mode = packmode.Mode(args[i+1])
			i++
		}
	}

	s, cfg, err := openProject()
	if err != nil {
		return err
	}
	client, err := llmclient.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	builder := pack.NewBuilder(s, cfg, client)
	out, err := builder.Build(context.Background(), opts)
	if err != nil {
		return err
	}

	if outPath != "" {
		return os.WriteFile(outPath, []byte(out), 0644)
	}
	fmt.Println(out)
	return nil
}

func cmdImport(args []string) error {
	dryRun := hasFlag(args, "--dry-run")

	s, cfg, err := openProject()
	if err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	src := &pipeline.ImportSource{Cwd: cwd, Home: home, Config: cfg, DryRun: dryRun}
	sessionIDs, err := src.Ingest(context.Background(), s)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	for _, id := range sessionIDs {
		fmt.Println(id)
	}
	for _, skipped := range src.Skipped {
		fmt.Fprintf(os.Stderr, "skipped (ambiguous match): %s\n", skipped)
	}
	return nil
}

func cmdGraph(args []string) error {
	s, _, err := openProject()
	if err != nil {
		return err
	}

	sessions, err := s.ListSessions()
	if err != nil {
		return err
	}

	nodes := make([]storage.SessionNode, 0, len(sessions))
	for _, sess := range sessions {
		chunks, err := s.ReadChunks(sess.SessionID)
		if err != nil {
			return err
		}
		nodes = append(nodes, graph.BuildNode(sess, chunks, sessions))
	}

	if hasFlag(args, "--json") {
		return outputJSON(nodes)
	}
	for _, n := range nodes {
		errMark := ""
		if n.HasError {
			errMark = " [error]"
		}
		fmt.Printf("%s  %-10s%s\n", n.SessionID, n.EpisodeType, errMark)
	}
	return nil
}

func cmdReindex(args []string) error {
	s, cfg, err := openProject()
	if err != nil {
		return err
	}
	client, err := llmclient.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	if err := client.Available(context.Background()); err != nil {
		return err
	}

	ix := index.New(s, cfg.Ollama.EmbedDim)
	if err := ix.Clear(); err != nil {
		return err
	}
	if err := ix.Build(context.Background(), s, client); err != nil {
		return err
	}
	fmt.Println("reindex complete")
	return nil
}

func cmdMigrate(args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	s := storage.Open(cwd)
	applied, err := migrate.Run(s)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if len(applied) == 0 {
		fmt.Println("storage schema already current")
		return nil
	}
	for _, m := range applied {
		fmt.Printf("applied migration: %s\n", m)
	}
	return nil
}

func cmdHooks(args []string) error {
	if len(args) < 1 {
		return storage.NewUserError("usage: membank hooks install [--autostart] | uninstall | status")
	}

	path, err := hooks.DefaultSettingsPath()
	if err != nil {
		return err
	}

	switch args[0] {
	case "install":
		changed, err := hooks.Install(path, hookCommand)
		if err != nil {
			return err
		}
		if changed {
			fmt.Println("installed hooks")
		} else {
			fmt.Println("hooks already installed")
		}
		return nil
	case "uninstall":
		changed, err := hooks.Uninstall(path, hookCommand)
		if err != nil {
			return err
		}
		if changed {
			fmt.Println("removed hooks")
		} else {
			fmt.Println("hooks were not installed")
		}
		return nil
	case "status":
		status, err := hooks.Status(path, hookCommand)
		if err != nil {
			return err
		}
		return outputJSON(status)
	default:
		return storage.NewUserError("unknown hooks subcommand: %s", args[0])
	}
}

func cmdProjects(args []string) error {
	path, err := project.DefaultPath()
	if err != nil {
		return err
	}
	reg := project.NewRegistry(path)
	if err := reg.Load(); err != nil {
		return err
	}

	if len(args) > 0 && args[0] == "remove" {
		if len(args) < 2 {
			return storage.NewUserError("usage: membank projects remove <path>")
		}
		removed, err := reg.Remove(args[1])
		if err != nil {
			return err
		}
		if !removed {
			return storage.NewUserError("unknown project path: %s", args[1])
		}
		fmt.Printf("removed %s\n", args[1])
		return nil
	}

	projects := reg.List()
	if hasFlag(args, "--json") {
		return outputJSON(projects)
	}
	for _, p := range projects {
		fmt.Printf("%-36s %s\n", p.ID, p.Path)
	}
	return nil
}

func cmdMCP(args []string) error {
	s, cfg, err := openProject()
	if err != nil {
		return err
	}
	client, err := llmclient.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	srv := mcpserver.New(s, cfg, client)
	return srv.ServeStdio()
}

func cmdWatch(args []string) error {
	s, cfg, err := openProject()
	if err != nil {
		return err
	}
	client, err := llmclient.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	return watch.Run(context.Background(), s, cfg, client)
}

// cmdHook handles one host-AI-CLI hook invocation: the JSON payload
// (session_id, transcript_path, cwd, source) arrives on stdin.
func cmdHook(args []string) error {
	var payload pipeline.HookPayload
	if err := json.NewDecoder(os.Stdin).Decode(&payload); err != nil {
		return fmt.Errorf("hook: decode payload: %w", err)
	}

	s := storage.Open(payload.Cwd)
	if !fileExists(s.ConfigPath()) {
		// Not a memory bank project; treat as a no-op rather than an error
		// so the host CLI's hook chain is never broken by an unrelated cwd.
		return nil
	}
	cfg, err := config.Load(payload.Cwd)
	if err != nil {
		return err
	}

	src := &pipeline.HookSource{Payload: payload, Config: cfg}
	_, err = src.Ingest(context.Background(), s)
	return err
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func outputJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
