package main

import (
	"io"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketing-groupchat/client"
)

var configKeys = []string{
	"API_HOST", "GITHUB_TOKEN", "GITHUB_MODEL",
	"AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_VERSION", "AZURE_OPENAI_CHAT_MODEL", "AZURE_OPENAI_API_KEY",
	"OPENAI_API_KEY", "OPENAI_MODEL", "OLLAMA_ENDPOINT", "OLLAMA_MODEL",
	"ROUTING_MODE", "TERMINATION_MODE", "TERMINATION_KEYWORD", "TERMINATION_MATCH",
	"MAX_ITERATIONS", "HISTORY_WINDOW", "REQUESTS_PER_MINUTE",
	"ROSTER_FILE", "WORKSPACE_DIR", "METRICS_ADDR", "LOG_LEVEL",
}

// clearEnv unsets every config key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "github", cfg.APIHost)
	assert.Equal(t, "gpt-4o", cfg.GitHubModel)
	assert.Equal(t, RoutingCyclic, cfg.RoutingMode)
	assert.Equal(t, TerminationModel, cfg.TerminationMode)
	assert.Equal(t, "yes", cfg.TerminationKeyword)
	assert.Equal(t, MatchSubstring, cfg.TerminationMatch)
	assert.False(t, cfg.KeywordPolicy().WholeWord)
	assert.Equal(t, 10, cfg.MaxIterations)
	assert.Equal(t, 5, cfg.HistoryWindow)
	assert.Equal(t, 0, cfg.RequestsPerMinute)
	assert.Equal(t, "workspace", cfg.WorkspaceDir)
	assert.Equal(t, "warn", cfg.LogLevel)

	// GitHub needs a token.
	require.Error(t, cfg.Validate())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_HOST", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("ROUTING_MODE", "model")
	t.Setenv("MAX_ITERATIONS", "3")
	t.Setenv("REQUESTS_PER_MINUTE", "30")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, RoutingModel, cfg.RoutingMode)
	assert.Equal(t, 3, cfg.MaxIterations)

	cc := cfg.ClientConfig()
	assert.Equal(t, client.HostOpenAI, cc.Host)
	assert.Equal(t, "sk-test", cc.APIKey)
	assert.Equal(t, "gpt-4o-mini", cc.Model)
	assert.Equal(t, 30, cc.RequestsPerMinute)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		APIHost:            "github",
		GitHubToken:        "ghp_test",
		RoutingMode:        RoutingCyclic,
		TerminationMode:    TerminationModel,
		TerminationKeyword: "yes",
		TerminationMatch:   MatchSubstring,
		MaxIterations:      10,
		HistoryWindow:      5,
		LogLevel:           "warn",
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid github", func(*Config) {}, false},
		{"unknown host", func(c *Config) { c.APIHost = "bedrock" }, true},
		{"azure without endpoint", func(c *Config) { c.APIHost = "azure" }, true},
		{"azure complete", func(c *Config) {
			c.APIHost = "azure"
			c.AzureEndpoint = "https://example.openai.azure.com"
			c.AzureVersion = "2024-10-21"
			c.AzureChatModel = "gpt-4o"
		}, false},
		{"openai without key", func(c *Config) { c.APIHost = "openai" }, true},
		{"ollama needs nothing", func(c *Config) {
			c.APIHost = "ollama"
			c.GitHubToken = ""
		}, false},
		{"bad routing mode", func(c *Config) { c.RoutingMode = "random" }, true},
		{"bad termination mode", func(c *Config) { c.TerminationMode = "never" }, true},
		{"empty keyword", func(c *Config) { c.TerminationKeyword = "" }, true},
		{"whole word match", func(c *Config) { c.TerminationMatch = MatchWord }, false},
		{"bad match mode", func(c *Config) { c.TerminationMatch = "regex" }, true},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }, true},
		{"zero window", func(c *Config) { c.HistoryWindow = 0 }, true},
		{"negative rate", func(c *Config) { c.RequestsPerMinute = -1 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_ClientConfigPerHost(t *testing.T) {
	cfg := Config{
		GitHubToken:    "ghp_test",
		GitHubModel:    "gpt-4o",
		AzureEndpoint:  "https://example.openai.azure.com",
		AzureVersion:   "2024-10-21",
		AzureChatModel: "gpt-4o-deployment",
		AzureAPIKey:    "azure-key",
		OllamaEndpoint: "http://ollama:11434/v1",
		OllamaModel:    "llama3.1",
	}

	cfg.APIHost = "github"
	cc := cfg.ClientConfig()
	assert.Equal(t, client.GitHubModelsURL, cc.BaseURL)
	assert.Equal(t, "ghp_test", cc.APIKey)

	cfg.APIHost = "azure"
	cc = cfg.ClientConfig()
	assert.Equal(t, "https://example.openai.azure.com", cc.AzureEndpoint)
	assert.Equal(t, "2024-10-21", cc.AzureAPIVersion)
	assert.Equal(t, "gpt-4o-deployment", cc.Model)
	assert.Equal(t, "azure-key", cc.APIKey)

	cfg.APIHost = "ollama"
	cc = cfg.ClientConfig()
	assert.Equal(t, "http://ollama:11434/v1", cc.BaseURL)
	assert.Equal(t, "llama3.1", cc.Model)
	assert.Empty(t, cc.APIKey)
}

func TestCLIFlags_OverrideOnlyWhenSet(t *testing.T) {
	cmd := newRootCmd()
	cmd.RunE = func(*cobra.Command, []string) error { return nil }
	require.NoError(t, cmd.ParseFlags([]string{"--routing", "model", "--max-iterations", "4"}))

	var flags cliFlags
	flags.routing = "model"
	flags.maxIterations = 4

	cfg := Config{RoutingMode: RoutingCyclic, MaxIterations: 10, LogLevel: "warn", RosterFile: "team.yaml"}
	flags.apply(cmd, &cfg)

	assert.Equal(t, RoutingModel, cfg.RoutingMode)
	assert.Equal(t, 4, cfg.MaxIterations)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "team.yaml", cfg.RosterFile)
}

func TestRootCmd_RejectsArguments(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"unexpected"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	require.Error(t, cmd.Execute())
}

func TestConfig_KeywordPolicy(t *testing.T) {
	cfg := Config{TerminationKeyword: "approved", TerminationMatch: MatchSubstring}
	assert.True(t, cfg.KeywordPolicy().Match("Unapproved, rework it"))

	cfg.TerminationMatch = MatchWord
	assert.False(t, cfg.KeywordPolicy().Match("Unapproved, rework it"))
	assert.True(t, cfg.KeywordPolicy().Match("Approved. Ship it"))
}
