package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/invopop/jsonschema"
	"github.com/samber/lo"

	"marketing-groupchat/agent"
	"marketing-groupchat/client"
	"marketing-groupchat/metrics"
)

// Caller attributes selection requests in usage and metrics.
const Caller = "selection"

// ModelOracle asks the model who speaks next, describing the cyclic order
// as rules. Answers that cannot be used fall back instead of failing.
type ModelOracle struct {
	client   client.ModelClient
	registry *agent.Registry
	cyclic   *Cyclic
	schema   *client.Schema
	logger   *log.Logger
	metrics  *metrics.Recorder
}

type Option func(*ModelOracle)

func WithLogger(logger *log.Logger) Option {
	return func(o *ModelOracle) {
		o.logger = logger
	}
}

func WithMetrics(recorder *metrics.Recorder) Option {
	return func(o *ModelOracle) {
		o.metrics = recorder
	}
}

// WithStructuredOutput toggles the JSON schema response format. Hosts that
// do not support strict schemas still work with plain one-word answers.
func WithStructuredOutput(enabled bool) Option {
	return func(o *ModelOracle) {
		if !enabled {
			o.schema = nil
		}
	}
}

func NewModelOracle(mc client.ModelClient, registry *agent.Registry, start string, opts ...Option) (*ModelOracle, error) {
	cyclic, err := NewCyclic(registry, start)
	if err != nil {
		return nil, err
	}

	o := &ModelOracle{
		client:   mc,
		registry: registry,
		cyclic:   cyclic,
		schema:   selectionSchema(registry),
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func selectionSchema(registry *agent.Registry) *client.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(selection{})
	if prop, ok := schema.Properties.Get("participant"); ok {
		prop.Enum = lo.ToAnySlice(registry.Names())
	}

	return &client.Schema{
		Name:        "next_participant",
		Description: "The participant who takes the next turn",
		Definition:  schema,
	}
}

func (o *ModelOracle) Next(ctx context.Context, last *agent.Message) (string, error) {
	if last == nil {
		return o.cyclic.Start(), nil
	}

	answer, err := o.client.Complete(ctx, client.Request{
		Caller: Caller,
		History: []agent.Message{{
			Author:  agent.UserAuthor,
			Content: o.prompt(*last),
		}},
		Schema: o.schema,
	})
	if err != nil {
		return "", fmt.Errorf("selecting next participant: %w", err)
	}

	name, err := Parse(answer, o.registry)
	if err == nil && !strings.EqualFold(name, last.Author) {
		o.logger.Debug("Selected next participant", "participant", name)
		return name, nil
	}

	fallback := o.cyclic.Fallback(last)
	o.logger.Warn("Unusable routing answer, falling back",
		"answer", answer,
		"last_author", last.Author,
		"fallback", fallback,
	)
	o.metrics.RecordRoutingFallback()
	return fallback, nil
}

func (o *ModelOracle) prompt(last agent.Message) string {
	names := o.registry.Names()

	var b strings.Builder
	b.WriteString("Examine the provided RESPONSE and choose the next participant.\n")
	b.WriteString("State only the name of the chosen participant without explanation.\n")
	b.WriteString("Never choose the participant named in the RESPONSE.\n\n")
	b.WriteString("Choose only from these participants:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "- %s\n", name)
	}

	b.WriteString("\nRules:\n")
	fmt.Fprintf(&b, "- If RESPONSE is user input, it is %s's turn.\n", o.cyclic.Start())
	for i, name := range names {
		fmt.Fprintf(&b, "- If RESPONSE is by %s, it is %s's turn.\n", name, o.registry.At(i+1).Name)
	}

	author := last.Author
	if last.FromUser() {
		author = "user input"
	}
	fmt.Fprintf(&b, "\nRESPONSE:\n%s: %s\n", author, last.Content)
	return b.String()
}
