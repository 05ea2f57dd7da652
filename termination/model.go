package termination

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"marketing-groupchat/agent"
	"marketing-groupchat/client"
)

// Caller attributes termination requests in usage and metrics.
const Caller = "termination"

// ModelOracle asks the model whether the reply is satisfactory and applies
// the keyword policy to its answer.
type ModelOracle struct {
	client client.ModelClient
	policy KeywordPolicy
	logger *log.Logger
}

func NewModelOracle(mc client.ModelClient, policy KeywordPolicy, logger *log.Logger) *ModelOracle {
	if logger == nil {
		logger = log.Default()
	}
	return &ModelOracle{
		client: mc,
		policy: policy,
		logger: logger,
	}
}

func (o *ModelOracle) Satisfied(ctx context.Context, last agent.Message) (bool, error) {
	answer, err := o.client.Complete(ctx, client.Request{
		Caller: Caller,
		History: []agent.Message{{
			Author:  agent.UserAuthor,
			Content: o.prompt(last),
		}},
	})
	if err != nil {
		return false, fmt.Errorf("checking termination: %w", err)
	}

	satisfied := o.policy.Match(answer)
	o.logger.Debug("Termination verdict", "author", last.Author, "answer", answer, "satisfied", satisfied)
	return satisfied, nil
}

func (o *ModelOracle) prompt(last agent.Message) string {
	return fmt.Sprintf(`Examine the RESPONSE and determine whether the content has been deemed satisfactory.
If the content is satisfactory, respond with a single word without explanation: %s.
If specific suggestions are being provided, it is not satisfactory.
If no correction is suggested, it is satisfactory.

RESPONSE:
%s: %s
`, o.policy.keyword(), last.Author, last.Content)
}
