// Package config loads and saves Memory Bank's project-scoped configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// SchemaVersion is the current on-disk config schema version.
const SchemaVersion = 1

// OllamaConfig describes the Ollama-compatible embedding/chat endpoint.
type OllamaConfig struct {
	BaseURL    string `toml:"base_url"`
	EmbedModel string `toml:"embed_model"`
	ChatModel  string `toml:"chat_model"`
	EmbedDim   int    `toml:"embed_dim"`
}

// ChunkingConfig controls the chunker's segment size.
type ChunkingConfig struct {
	MaxTokens     int `toml:"max_tokens"`
	OverlapTokens int `toml:"overlap_tokens"`
}

// DecayConfig controls recency-weighted scoring.
type DecayConfig struct {
	HalfLifeDays float64 `toml:"half_life_days"`
	Enabled      bool    `toml:"enabled"`
}

// ModeProfile is a budget-fraction override for one pack mode.
type ModeProfile struct {
	ProjectState  *float64 `toml:"project_state,omitempty"`
	Decisions     *float64 `toml:"decisions,omitempty"`
	ActiveTasks   *float64 `toml:"active_tasks,omitempty"`
	Plans         *float64 `toml:"plans,omitempty"`
	RecentContext *float64 `toml:"recent_context,omitempty"`
}

// DedupConfig controls near-duplicate chunk suppression.
type DedupConfig struct {
	// NearDuplicateThreshold is the minimum LCS-based similarity ratio
	// for two chunks to be considered near-duplicates. spec.md §9 flags
	// the hard-coded 0.70 as an open question; we surface it here.
	NearDuplicateThreshold float64 `toml:"near_duplicate_threshold"`
}

// ImportConfig controls retroactive ingestion of an AI CLI's own session
// transcripts.
type ImportConfig struct {
	// MatchWindowSeconds bounds how far a hook-reported session's
	// started_at may drift from a transcript file's mtime before the
	// two are considered unrelated. spec.md §9 flags the original's
	// loose "60s before / 5min after" window as a source of
	// mis-attribution; we use a stricter symmetric window and log
	// ambiguous matches rather than silently picking the first.
	MatchWindowSeconds int `toml:"match_window_seconds"`
}

// LoggingConfig controls arbor's writer composition.
type LoggingConfig struct {
	Output     []string `toml:"output"`
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	TimeFormat string   `toml:"time_format"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// LLMConfig selects and configures the chat/embed provider.
type LLMConfig struct {
	Provider            string `toml:"provider"` // "ollama" or "gemini"
	GeminiAPIKey        string `toml:"gemini_api_key"`
	GeminiModel         string `toml:"gemini_model"`
	EmbedTimeoutSeconds int    `toml:"embed_timeout_seconds"`
	ChatTimeoutSeconds  int    `toml:"chat_timeout_seconds"`
}

// Config is the full project-scoped configuration, persisted as
// <root>/config.toml (see SPEC_FULL.md's documented TOML-vs-JSON format
// deviation; the schema fields mirror spec.md §4.3 exactly).
type Config struct {
	SchemaVersion int                    `toml:"schema_version"`
	DataDir       string                 `toml:"data_dir"`
	Ollama        OllamaConfig           `toml:"ollama"`
	Chunking      ChunkingConfig         `toml:"chunking"`
	Decay         DecayConfig            `toml:"decay"`
	PackModes     map[string]ModeProfile `toml:"pack_modes"`
	Dedup         DedupConfig            `toml:"dedup"`
	Import        ImportConfig           `toml:"import"`
	Logging       LoggingConfig          `toml:"logging"`
	LLM           LLMConfig              `toml:"llm"`
}

// DefaultConfig returns the built-in defaults, applying env overrides for
// the Ollama base URL.
func DefaultConfig() *Config {
	baseURL := "http://localhost:11434"
	if v := os.Getenv("MEMORYBANK_OLLAMA_URL"); v != "" {
		baseURL = v
	}

	return &Config{
		SchemaVersion: SchemaVersion,
		DataDir:       DefaultDataDir(),
		Ollama: OllamaConfig{
			BaseURL:    baseURL,
			EmbedModel: "nomic-embed-text",
			ChatModel:  "llama3.1",
			EmbedDim:   768, // nomic-embed-text's native output width
		},
		Chunking: ChunkingConfig{
			MaxTokens:     500,
			OverlapTokens: 50,
		},
		Decay: DecayConfig{
			HalfLifeDays: 14,
			Enabled:      true,
		},
		PackModes: map[string]ModeProfile{},
		Dedup: DedupConfig{
			NearDuplicateThreshold: 0.70,
		},
		Import: ImportConfig{
			MatchWindowSeconds: 120,
		},
		Logging: LoggingConfig{
			Output:     []string{"stdout"},
			Level:      "info",
			Format:     "text",
			TimeFormat: "15:04:05.000",
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
		LLM: LLMConfig{
			Provider:            "ollama",
			GeminiModel:         "gemini-2.0-flash",
			EmbedTimeoutSeconds: 120,
			ChatTimeoutSeconds:  300,
		},
	}
}

// DefaultDataDir returns the OS-appropriate directory for logs and other
// process-wide (not project-scoped) state.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "memory-bank")
		}
		return filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming", "memory-bank")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "memory-bank")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "memory-bank")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".memory-bank")
	}
}

// DefaultConfigPath returns "<root>/config.toml" for a project root.
func DefaultConfigPath(root string) string {
	return filepath.Join(root, "config.toml")
}

// Load reads config.toml under root, returning defaults if the file is
// absent. Environment variables in the file's raw text are expanded
// before decoding.
func Load(root string) (*Config, error) {
	path := DefaultConfigPath(root)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return LoadFromString(string(data))
}

// LoadFromString decodes a TOML document, starting from defaults so
// unset fields keep their default value.
func LoadFromString(s string) (*Config, error) {
	cfg := DefaultConfig()
	expanded := os.ExpandEnv(s)
	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	expandPaths(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandPaths(cfg *Config) {
	cfg.DataDir = expandTilde(cfg.DataDir)
}

func expandTilde(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Save writes cfg to <root>/config.toml atomically.
func Save(root string, cfg *Config) error {
	path := DefaultConfigPath(root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("create root: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// WriteExampleConfig writes a fully-commented example config.toml to path.
func WriteExampleConfig(path string) error {
	const example = `# Memory Bank configuration.
schema_version = 1

# Directory for process-wide logs (not project data).
data_dir = "~/.memory-bank"

[ollama]
base_url = "http://localhost:11434"
embed_model = "nomic-embed-text"
chat_model = "llama3.1"
embed_dim = 768

[chunking]
max_tokens = 500
overlap_tokens = 50

[decay]
half_life_days = 14
enabled = true

[dedup]
near_duplicate_threshold = 0.70

[import]
match_window_seconds = 120

[logging]
output = ["stdout"]
level = "info"
format = "text"
time_format = "15:04:05.000"
max_size_mb = 100
max_backups = 5

[llm]
provider = "ollama"
gemini_model = "gemini-2.0-flash"
embed_timeout_seconds = 120
chat_timeout_seconds = 300
`
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(example), 0644)
}

// Validate rejects configs with inconsistent or out-of-range values.
func (c *Config) Validate() error {
	if c.Chunking.MaxTokens <= 0 {
		return fmt.Errorf("chunking.max_tokens must be positive")
	}
	if c.Ollama.EmbedDim <= 0 {
		return fmt.Errorf("ollama.embed_dim must be positive")
	}
	if c.Chunking.OverlapTokens < 0 {
		return fmt.Errorf("chunking.overlap_tokens must not be negative")
	}
	if c.Decay.HalfLifeDays < 0 {
		return fmt.Errorf("decay.half_life_days must not be negative")
	}
	if c.Dedup.NearDuplicateThreshold < 0 || c.Dedup.NearDuplicateThreshold > 1 {
		return fmt.Errorf("dedup.near_duplicate_threshold must be in [0,1]")
	}
	switch c.LLM.Provider {
	case "ollama", "gemini":
	default:
		return fmt.Errorf("llm.provider must be \"ollama\" or \"gemini\", got %q", c.LLM.Provider)
	}
	return nil
}

// Clone deep-copies cfg, notably its map and slice fields.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Logging.Output = append([]string(nil), c.Logging.Output...)
	clone.PackModes = make(map[string]ModeProfile, len(c.PackModes))
	for k, v := range c.PackModes {
		clone.PackModes[k] = v
	}
	return &clone
}
