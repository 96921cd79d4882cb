package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoadReturnsDefaultsWhenConfigMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Ollama.EmbedModel, cfg.Ollama.EmbedModel)
}

func TestSaveAndLoadRoundTrips(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Ollama.ChatModel = "mistral"
	cfg.Decay.HalfLifeDays = 30

	require.NoError(t, Save(root, cfg))

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "mistral", loaded.Ollama.ChatModel)
	assert.Equal(t, 30.0, loaded.Decay.HalfLifeDays)
}

func TestLoadFromStringStartsFromDefaultsForUnsetFields(t *testing.T) {
	cfg, err := LoadFromString(`
[ollama]
chat_model = "custom-model"
`)
	require.NoError(t, err)
	assert.Equal(t, "custom-model", cfg.Ollama.ChatModel)
	assert.Equal(t, DefaultConfig().Ollama.EmbedModel, cfg.Ollama.EmbedModel)
	assert.Equal(t, DefaultConfig().Ollama.EmbedDim, cfg.Ollama.EmbedDim)
}

func TestLoadFromStringExpandsEnvVars(t *testing.T) {
	require.NoError(t, os.Setenv("MEMORYBANK_TEST_BASE_URL", "http://example.internal:1234"))
	defer os.Unsetenv("MEMORYBANK_TEST_BASE_URL")

	cfg, err := LoadFromString(`
[ollama]
base_url = "${MEMORYBANK_TEST_BASE_URL}"
`)
	require.NoError(t, err)
	assert.Equal(t, "http://example.internal:1234", cfg.Ollama.BaseURL)
}

func TestValidateRejectsNonPositiveChunkSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chunking.MaxTokens = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeDedupThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dedup.NearDuplicateThreshold = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Provider = "openai"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveEmbedDim(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ollama.EmbedDim = 0
	assert.Error(t, cfg.Validate())
}

func TestCloneDeepCopiesMutableFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PackModes["debug"] = ModeProfile{}

	clone := cfg.Clone()
	clone.Logging.Output[0] = "mutated"
	clone.PackModes["build"] = ModeProfile{}

	assert.Equal(t, "stdout", cfg.Logging.Output[0])
	assert.NotContains(t, cfg.PackModes, "build")
}

func TestWriteExampleConfigProducesLoadableTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, WriteExampleConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	cfg, err := LoadFromString(string(data))
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", cfg.Ollama.EmbedModel)
}
