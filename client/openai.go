package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"marketing-groupchat/metrics"
	"marketing-groupchat/ratelimiter"
)

var modelPricing = map[string]struct {
	InputCostPer1K  float64
	OutputCostPer1K float64
}{
	"gpt-4o":        {0.0025, 0.01},
	"gpt-4o-mini":   {0.00015, 0.0006},
	"gpt-4-turbo":   {0.01, 0.03},
	"gpt-4":         {0.03, 0.06},
	"gpt-3.5-turbo": {0.0015, 0.002},
	"gpt-5":         {0.005, 0.015},
	"gpt-5-mini":    {0.0003, 0.0012},
	"gpt-5-nano":    {0.0001, 0.0004},
}

// APIClient is a ModelClient backed by the openai-go SDK. Failed requests
// are returned as they are; the SDK's own retries are disabled.
type APIClient struct {
	client  openai.Client
	host    Host
	model   string
	timeout time.Duration

	logger  *log.Logger
	metrics *metrics.Recorder
	counter Counter
	usage   *UsageTracker
	limiter *ratelimiter.TokenBucket
}

func NewAPIClient(cfg Config) (*APIClient, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	opts, err := requestOptions(cfg)
	if err != nil {
		return nil, err
	}

	c := &APIClient{
		client:  openai.NewClient(opts...),
		host:    cfg.Host,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		counter: cfg.TokenCounter,
		usage:   cfg.Usage,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = ratelimiter.NewPerMinute(cfg.RequestsPerMinute)
	}
	return c, nil
}

func requestOptions(cfg Config) ([]option.RequestOption, error) {
	opts := []option.RequestOption{option.WithMaxRetries(0)}

	if cfg.Host == HostAzure {
		opts = append(opts, azure.WithEndpoint(cfg.AzureEndpoint, cfg.AzureAPIVersion))
		if cfg.APIKey != "" {
			return append(opts, azure.WithAPIKey(cfg.APIKey)), nil
		}
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure credential: %w", err)
		}
		return append(opts, azure.WithTokenCredential(cred)), nil
	}

	opts = append(opts, option.WithAPIKey(cfg.APIKey))
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return opts, nil
}

// Complete sends the instructions and history as one chat completion request
// and returns the first choice's content.
func (c *APIClient) Complete(ctx context.Context, req Request) (string, error) {
	startTime := time.Now()

	params := openai.ChatCompletionNewParams{
		Messages: buildMessages(req),
		Model:    openai.ChatModel(c.model),
	}
	if req.Schema != nil {
		params.ResponseFormat = responseFormat(req.Schema)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", c.fail(req.Caller, fmt.Errorf("waiting for request slot: %w", err))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(callCtx, params)
	duration := time.Since(startTime)
	c.metrics.RecordModelRequest(req.Caller, err, duration)

	if err != nil {
		c.logger.Error("Chat completion request failed",
			"error", err,
			"host", c.host,
			"model", c.model,
			"caller", req.Caller,
			"duration", duration,
		)
		return "", c.fail(req.Caller, err)
	}

	if len(resp.Choices) == 0 {
		return "", c.fail(req.Caller, ErrEmptyResponse)
	}
	content := resp.Choices[0].Message.Content

	inputTokens := int(resp.Usage.PromptTokens)
	if inputTokens == 0 {
		inputTokens = countPromptTokens(c.counter, requestTexts(req)...)
	}
	outputTokens := int(resp.Usage.CompletionTokens)
	if outputTokens == 0 {
		outputTokens = c.counter.Count(content)
	}
	expectedCost := calculateCost(c.model, inputTokens, outputTokens)
	c.usage.Record(req.Caller, inputTokens, outputTokens, expectedCost)

	c.logger.Info("Chat completion request completed",
		"model", c.model,
		"caller", req.Caller,
		"input_tokens", inputTokens,
		"output_tokens", outputTokens,
		"expected_cost_usd", expectedCost,
		"duration", duration,
		"request_id", resp.ID,
	)

	return content, nil
}

func (c *APIClient) fail(caller string, err error) error {
	return &InvocationError{Host: c.host, Model: c.model, Caller: caller, Err: err}
}

// buildMessages puts the instructions first, then the history. User input
// keeps the user role; participant replies are sent as named assistant turns.
func buildMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	if strings.TrimSpace(req.Instructions) != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}

	for _, m := range req.History {
		if m.FromUser() {
			messages = append(messages, openai.UserMessage(m.Content))
			continue
		}
		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfAssistant: &openai.ChatCompletionAssistantMessageParam{
				Content: openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(m.Content),
				},
				Name: openai.String(m.Author),
			},
		})
	}
	return messages
}

func responseFormat(schema *Schema) openai.ChatCompletionNewParamsResponseFormatUnion {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:   schema.Name,
		Schema: schema.Definition,
		Strict: openai.Bool(true),
	}
	if schema.Description != "" {
		schemaParam.Description = openai.String(schema.Description)
	}

	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: schemaParam,
		},
	}
}

func requestTexts(req Request) []string {
	texts := make([]string, 0, len(req.History)+1)
	texts = append(texts, req.Instructions)
	for _, m := range req.History {
		texts = append(texts, m.Content)
	}
	return texts
}

func calculateCost(model string, inputTokens, outputTokens int) float64 {
	pricing, exists := modelPricing[model]
	if !exists {
		pricing = modelPricing[DefaultModel]
	}

	inputCost := float64(inputTokens) / 1000.0 * pricing.InputCostPer1K
	outputCost := float64(outputTokens) / 1000.0 * pricing.OutputCostPer1K

	return inputCost + outputCost
}

// Usage returns the tracker accumulating this client's token usage.
func (c *APIClient) Usage() *UsageTracker {
	return c.usage
}

func (c *APIClient) Model() string {
	return c.model
}

func (c *APIClient) Close() {
	if c.limiter != nil {
		c.limiter.Stop()
	}
}
