package client

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"marketing-groupchat/metrics"
)

// Host selects which OpenAI-compatible service serves completions.
type Host string

const (
	HostGitHub Host = "github"
	HostAzure  Host = "azure"
	HostOpenAI Host = "openai"
	HostOllama Host = "ollama"
)

const (
	GitHubModelsURL      = "https://models.inference.ai.azure.com"
	DefaultOllamaURL     = "http://localhost:11434/v1"
	DefaultModel         = "gpt-4o"
	DefaultTimeout       = 180 * time.Second
	ollamaPlaceholderKey = "ollama"
)

// Config is everything NewAPIClient needs. It is filled in by the caller;
// the client never reads the environment itself.
type Config struct {
	Host    Host
	APIKey  string
	BaseURL string
	Model   string

	AzureEndpoint   string
	AzureAPIVersion string

	// RequestsPerMinute paces outbound requests when positive.
	RequestsPerMinute int
	Timeout           time.Duration

	Logger       *log.Logger
	Metrics      *metrics.Recorder
	TokenCounter Counter
	Usage        *UsageTracker
}

func (c *Config) setDefaults() error {
	if c.Host == "" {
		c.Host = HostGitHub
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if c.TokenCounter == nil {
		c.TokenCounter = NewTiktokenCounter(c.Model)
	}
	if c.Usage == nil {
		c.Usage = NewUsageTracker()
	}

	switch c.Host {
	case HostGitHub:
		if c.BaseURL == "" {
			c.BaseURL = GitHubModelsURL
		}
		if c.APIKey == "" {
			return fmt.Errorf("host %s requires an API token", c.Host)
		}
	case HostOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("host %s requires an API key", c.Host)
		}
	case HostOllama:
		if c.BaseURL == "" {
			c.BaseURL = DefaultOllamaURL
		}
		if c.APIKey == "" {
			c.APIKey = ollamaPlaceholderKey
		}
	case HostAzure:
		if c.AzureEndpoint == "" || c.AzureAPIVersion == "" {
			return fmt.Errorf("host %s requires an endpoint and API version", c.Host)
		}
	default:
		return fmt.Errorf("unknown host %q", c.Host)
	}
	return nil
}
