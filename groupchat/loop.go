// Package groupchat runs the turn-taking conversation between participants.
package groupchat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"marketing-groupchat/agent"
	"marketing-groupchat/client"
	"marketing-groupchat/metrics"
	"marketing-groupchat/router"
	"marketing-groupchat/termination"
)

const DefaultMaxIterations = 10

var (
	ErrEmptyInput = errors.New("empty input")
	ErrShutdown   = errors.New("conversation loop has shut down")
)

// Control words understood by Handle.
const (
	CommandExit  = "exit"
	CommandReset = "reset"
)

type OutcomeKind int

const (
	OutcomeIgnored OutcomeKind = iota
	OutcomeShutdown
	OutcomeReset
	OutcomeCompleted
	OutcomeErrored
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeShutdown:
		return "shutdown"
	case OutcomeReset:
		return "reset"
	case OutcomeCompleted:
		return "completed"
	case OutcomeErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Reason explains why an invocation completed.
type Reason string

const (
	ReasonSatisfied     Reason = "satisfied"
	ReasonMaxIterations Reason = "max_iterations"
	// ReasonTurnLimit ends invocations whose routing never reaches the
	// terminal participant. It is the one way into Completed that skips
	// CheckingTermination, and it leaves the completion flag unset.
	ReasonTurnLimit Reason = "turn_limit"
)

// Outcome is what one line of user input led to.
type Outcome struct {
	Kind   OutcomeKind
	Reason Reason
	Turns  int
	Cycles int
	Err    error
}

type Options struct {
	// Start answers every user message. Defaults to the first participant.
	Start string
	// Terminal is the participant whose replies are checked for completion.
	// Defaults to the last participant.
	Terminal string
	// MaxIterations caps the termination checks per user message.
	MaxIterations int
	// HistoryWindow is how many recent messages each participant sees.
	HistoryWindow int

	Logger       *log.Logger
	Metrics      *metrics.Recorder
	OnTransition func(from, to State)
}

// Loop drives the conversation state machine. Handle calls are serialized,
// so there is at most one model call in flight per loop.
type Loop struct {
	registry    *agent.Registry
	client      client.ModelClient
	router      router.Oracle
	termination termination.Oracle
	opts        Options

	conv  *Conversation
	state atomic.Int32
	mu    sync.Mutex
}

func New(registry *agent.Registry, mc client.ModelClient, r router.Oracle, t termination.Oracle, opts Options) (*Loop, error) {
	if opts.Start == "" {
		opts.Start = registry.At(0).Name
	}
	if opts.Terminal == "" {
		opts.Terminal = registry.At(registry.Len() - 1).Name
	}
	start, err := registry.Get(opts.Start)
	if err != nil {
		return nil, fmt.Errorf("start participant: %w", err)
	}
	terminal, err := registry.Get(opts.Terminal)
	if err != nil {
		return nil, fmt.Errorf("terminal participant: %w", err)
	}
	opts.Start, opts.Terminal = start.Name, terminal.Name

	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Loop{
		registry:    registry,
		client:      mc,
		router:      r,
		termination: t,
		opts:        opts,
		conv:        NewConversation(),
	}, nil
}

// Start moves an idle loop to AwaitingUserInput.
func (l *Loop) Start() {
	if l.State() == Idle {
		l.transition(AwaitingUserInput)
	}
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

// History returns a copy of the conversation so far.
func (l *Loop) History() []agent.Message {
	return l.conv.Messages()
}

func (l *Loop) ConversationID() string {
	return l.conv.ID()
}

func (l *Loop) Registry() *agent.Registry {
	return l.registry
}

// Handle processes one line of user input. Participant replies are passed to
// emit as soon as they are recorded. Failures never stop the loop; they are
// reported in the outcome and the loop waits for the next line.
func (l *Loop) Handle(ctx context.Context, line string, emit func(agent.Message)) Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.State() == Shutdown {
		return Outcome{Kind: OutcomeErrored, Err: ErrShutdown}
	}
	l.Start()

	input := strings.TrimSpace(line)
	switch {
	case input == "":
		return Outcome{Kind: OutcomeIgnored, Err: ErrEmptyInput}
	case strings.EqualFold(input, CommandExit):
		l.transition(Shutdown)
		return Outcome{Kind: OutcomeShutdown}
	case strings.EqualFold(input, CommandReset):
		l.conv.Reset()
		l.opts.Logger.Info("Conversation reset", "conversation_id", l.conv.ID())
		return Outcome{Kind: OutcomeReset}
	}

	if emit == nil {
		emit = func(agent.Message) {}
	}

	l.conv.Append(agent.UserAuthor, input)
	return l.invoke(ctx, emit)
}

func (l *Loop) invoke(ctx context.Context, emit func(agent.Message)) Outcome {
	l.conv.beginInvocation()
	maxTurns := l.opts.MaxIterations * l.registry.Len()

	var last *agent.Message
	turns := 0
	for {
		if err := ctx.Err(); err != nil {
			return l.fail(err, turns)
		}
		if turns >= maxTurns {
			return l.complete(ReasonTurnLimit, turns)
		}

		l.transition(RoutingTurn)
		name, err := l.router.Next(ctx, last)
		if err != nil {
			return l.fail(err, turns)
		}
		participant := l.guard(name, last)

		l.transition(GeneratingReply)
		reply, err := l.client.Complete(ctx, client.Request{
			Caller:       participant.Name,
			Instructions: participant.Instructions,
			History:      Window(l.conv.Messages(), l.opts.HistoryWindow),
		})
		if err != nil {
			return l.fail(err, turns)
		}

		msg := l.conv.Append(participant.Name, reply)
		turns++
		l.opts.Metrics.RecordTurn(participant.Name)
		l.opts.Logger.Debug("Participant replied", "participant", participant.Name, "ordinal", msg.Ordinal)
		emit(msg)
		last = &msg

		if participant.Name != l.opts.Terminal {
			continue
		}

		l.transition(CheckingTermination)
		cycles := l.conv.completeCycle()
		satisfied, err := l.termination.Satisfied(ctx, msg)
		if err != nil {
			return l.fail(err, turns)
		}
		l.opts.Metrics.RecordTerminationCheck(satisfied)

		if satisfied {
			return l.complete(ReasonSatisfied, turns)
		}
		if cycles >= l.opts.MaxIterations {
			return l.complete(ReasonMaxIterations, turns)
		}
	}
}

// guard resolves the routed name against the registry. An unknown name, or
// one naming the author of the last reply, is replaced by the start
// participant, or by its successor when the start participant spoke last.
func (l *Loop) guard(name string, last *agent.Message) agent.Participant {
	p, err := l.registry.Get(name)
	if err == nil && (last == nil || !strings.EqualFold(p.Name, last.Author)) {
		return p
	}

	fallback := l.registry.At(l.registry.Index(l.opts.Start))
	if last != nil && strings.EqualFold(fallback.Name, last.Author) {
		fallback = l.registry.At(l.registry.Index(l.opts.Start) + 1)
	}
	l.opts.Logger.Warn("Routed to an unusable participant, falling back", "routed", name, "fallback", fallback.Name)
	l.opts.Metrics.RecordRoutingFallback()
	return fallback
}

func (l *Loop) complete(reason Reason, turns int) Outcome {
	if reason != ReasonTurnLimit {
		l.conv.SetComplete(true)
	}
	l.transition(Completed)
	cycles := l.conv.Cycles()

	l.opts.Metrics.RecordInvocation(string(reason))
	l.opts.Logger.Info("Chat invocation completed", "reason", reason, "turns", turns, "cycles", cycles)

	l.conv.SetComplete(false)
	l.transition(AwaitingUserInput)
	return Outcome{Kind: OutcomeCompleted, Reason: reason, Turns: turns, Cycles: cycles}
}

func (l *Loop) fail(err error, turns int) Outcome {
	l.transition(Errored)
	cycles := l.conv.Cycles()

	l.opts.Metrics.RecordInvocation("error")
	l.opts.Logger.Error("Chat invocation failed", "error", err, "turns", turns, "cycles", cycles)

	l.transition(AwaitingUserInput)
	return Outcome{Kind: OutcomeErrored, Turns: turns, Cycles: cycles, Err: err}
}

func (l *Loop) transition(to State) {
	from := State(l.state.Swap(int32(to)))
	if l.opts.OnTransition != nil {
		l.opts.OnTransition(from, to)
	}
}
