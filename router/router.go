// Package router decides which participant takes the next turn.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"marketing-groupchat/agent"
)

var ErrRosterTooSmall = errors.New("routing needs at least two participants")

// Oracle picks the next speaker. A nil last message means the conversation
// has just been started by the user.
type Oracle interface {
	Next(ctx context.Context, last *agent.Message) (string, error)
}

// Cyclic routes through the registry in registration order: user input goes
// to the start participant and every participant hands over to its successor,
// wrapping after the last one.
type Cyclic struct {
	registry *agent.Registry
	start    int
}

func NewCyclic(registry *agent.Registry, start string) (*Cyclic, error) {
	if registry.Len() < 2 {
		return nil, ErrRosterTooSmall
	}
	i := registry.Index(start)
	if i < 0 {
		return nil, fmt.Errorf("start participant: %w: %q", agent.ErrParticipantNotFound, start)
	}
	return &Cyclic{registry: registry, start: i}, nil
}

func (c *Cyclic) Next(_ context.Context, last *agent.Message) (string, error) {
	if last == nil || last.FromUser() {
		return c.Start(), nil
	}
	i := c.registry.Index(last.Author)
	if i < 0 {
		return c.Fallback(last), nil
	}
	return c.registry.At(i + 1).Name, nil
}

// Start returns the participant that answers user input.
func (c *Cyclic) Start() string {
	return c.registry.At(c.start).Name
}

// Fallback is used when a routing answer cannot be trusted. It returns the
// start participant unless the start participant wrote last, in which case
// its successor speaks so nobody replies to themselves.
func (c *Cyclic) Fallback(last *agent.Message) string {
	if last != nil && strings.EqualFold(last.Author, c.Start()) {
		return c.registry.At(c.start + 1).Name
	}
	return c.Start()
}
