package main

import (
	"fmt"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"

	"marketing-groupchat/client"
	"marketing-groupchat/termination"
)

const (
	RoutingCyclic = "cyclic"
	RoutingModel  = "model"

	TerminationModel = "model"
	TerminationReply = "reply"

	MatchSubstring = "substring"
	MatchWord      = "word"
)

// Config is read from the environment (and .env) once at startup.
type Config struct {
	APIHost string `env:"API_HOST,default=github" validate:"oneof=github azure openai ollama"`

	GitHubToken string `env:"GITHUB_TOKEN" validate:"required_if=APIHost github"`
	GitHubModel string `env:"GITHUB_MODEL,default=gpt-4o"`

	AzureEndpoint  string `env:"AZURE_OPENAI_ENDPOINT" validate:"required_if=APIHost azure"`
	AzureVersion   string `env:"AZURE_OPENAI_VERSION" validate:"required_if=APIHost azure"`
	AzureChatModel string `env:"AZURE_OPENAI_CHAT_MODEL" validate:"required_if=APIHost azure"`
	AzureAPIKey    string `env:"AZURE_OPENAI_API_KEY"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY" validate:"required_if=APIHost openai"`
	OpenAIModel  string `env:"OPENAI_MODEL,default=gpt-4o"`

	OllamaEndpoint string `env:"OLLAMA_ENDPOINT"`
	OllamaModel    string `env:"OLLAMA_MODEL,default=llama3.1"`

	RoutingMode        string `env:"ROUTING_MODE,default=cyclic" validate:"oneof=cyclic model"`
	TerminationMode    string `env:"TERMINATION_MODE,default=model" validate:"oneof=model reply"`
	TerminationKeyword string `env:"TERMINATION_KEYWORD,default=yes" validate:"required"`
	TerminationMatch   string `env:"TERMINATION_MATCH,default=substring" validate:"oneof=substring word"`
	MaxIterations      int    `env:"MAX_ITERATIONS,default=10" validate:"min=1"`
	HistoryWindow      int    `env:"HISTORY_WINDOW,default=5" validate:"min=1"`
	RequestsPerMinute  int    `env:"REQUESTS_PER_MINUTE,default=0" validate:"min=0"`

	RosterFile   string `env:"ROSTER_FILE"`
	WorkspaceDir string `env:"WORKSPACE_DIR,default=workspace"`
	MetricsAddr  string `env:"METRICS_ADDR"`
	LogLevel     string `env:"LOG_LEVEL,default=warn" validate:"oneof=debug info warn error"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func LoadConfig() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return cfg, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// KeywordPolicy is the termination keyword policy the config describes.
func (c Config) KeywordPolicy() termination.KeywordPolicy {
	return termination.KeywordPolicy{
		Keyword:   c.TerminationKeyword,
		WholeWord: c.TerminationMatch == MatchWord,
	}
}

// ClientConfig selects credentials and model for the configured host.
func (c Config) ClientConfig() client.Config {
	cfg := client.Config{
		Host:              client.Host(c.APIHost),
		RequestsPerMinute: c.RequestsPerMinute,
	}

	switch cfg.Host {
	case client.HostGitHub:
		cfg.APIKey = c.GitHubToken
		cfg.BaseURL = client.GitHubModelsURL
		cfg.Model = c.GitHubModel
	case client.HostAzure:
		cfg.APIKey = c.AzureAPIKey
		cfg.AzureEndpoint = c.AzureEndpoint
		cfg.AzureAPIVersion = c.AzureVersion
		cfg.Model = c.AzureChatModel
	case client.HostOpenAI:
		cfg.APIKey = c.OpenAIAPIKey
		cfg.Model = c.OpenAIModel
	case client.HostOllama:
		cfg.BaseURL = c.OllamaEndpoint
		cfg.Model = c.OllamaModel
	}
	return cfg
}
