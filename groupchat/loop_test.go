package groupchat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"marketing-groupchat/agent"
	"marketing-groupchat/client"
	"marketing-groupchat/client/mocks"
	"marketing-groupchat/router"
	"marketing-groupchat/termination"
)

// scriptedModel answers participants with "<name> reply <n>" and routing
// requests from a script.
type scriptedModel struct {
	mu         sync.Mutex
	requests   []client.Request
	selections []string
	failFor    string
}

func (m *scriptedModel) Complete(_ context.Context, req client.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if req.Caller == m.failFor {
		return "", errors.New("model unavailable")
	}
	if req.Caller == router.Caller {
		if len(m.selections) == 0 {
			return "", errors.New("selection script exhausted")
		}
		next := m.selections[0]
		m.selections = m.selections[1:]
		return next, nil
	}
	return fmt.Sprintf("%s reply %d", req.Caller, len(m.requests)), nil
}

func (m *scriptedModel) participantRequests() []client.Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []client.Request
	for _, r := range m.requests {
		if r.Caller != router.Caller {
			out = append(out, r)
		}
	}
	return out
}

type fixedRouter string

func (f fixedRouter) Next(context.Context, *agent.Message) (string, error) {
	return string(f), nil
}

type recordingTermination struct {
	verdicts []bool
	checked  []agent.Message
}

func (r *recordingTermination) Satisfied(_ context.Context, last agent.Message) (bool, error) {
	r.checked = append(r.checked, last)
	if len(r.verdicts) == 0 {
		return false, nil
	}
	v := r.verdicts[0]
	r.verdicts = r.verdicts[1:]
	return v, nil
}

func newTestRegistry(t *testing.T) *agent.Registry {
	t.Helper()
	roster, err := agent.DefaultRoster()
	require.NoError(t, err)
	registry, err := roster.Registry()
	require.NoError(t, err)
	return registry
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func newTestLoop(t *testing.T, mc client.ModelClient, r router.Oracle, term termination.Oracle, opts Options) *Loop {
	t.Helper()
	registry := newTestRegistry(t)
	if r == nil {
		cyclic, err := router.NewCyclic(registry, "SEO")
		require.NoError(t, err)
		r = cyclic
	}
	opts.Logger = quietLogger()
	loop, err := New(registry, mc, r, term, opts)
	require.NoError(t, err)
	loop.Start()
	return loop
}

func collect(out *[]agent.Message) func(agent.Message) {
	return func(m agent.Message) {
		*out = append(*out, m)
	}
}

func authors(msgs []agent.Message) []string {
	names := make([]string, len(msgs))
	for i, m := range msgs {
		names[i] = m.Author
	}
	return names
}

func TestLoop_HikingBoots(t *testing.T) {
	model := &scriptedModel{}
	term := &recordingTermination{verdicts: []bool{true}}

	var transitions []string
	loop := newTestLoop(t, model, nil, term, Options{
		OnTransition: func(from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})

	var emitted []agent.Message
	outcome := loop.Handle(context.Background(), "Write about hiking boots", collect(&emitted))

	require.NoError(t, outcome.Err)
	require.Equal(t, OutcomeCompleted, outcome.Kind)
	require.Equal(t, ReasonSatisfied, outcome.Reason)
	require.Equal(t, 4, outcome.Turns)
	require.Equal(t, 1, outcome.Cycles)

	require.Equal(t, []string{"SEO", "SEM", "CSR", "SDR"}, authors(emitted))
	require.Len(t, term.checked, 1)
	require.Equal(t, "SDR", term.checked[0].Author)

	history := loop.History()
	require.Equal(t, []string{agent.UserAuthor, "SEO", "SEM", "CSR", "SDR"}, authors(history))
	for i, m := range history {
		require.Equal(t, i+1, m.Ordinal)
	}

	require.Equal(t, AwaitingUserInput, loop.State())
	require.Equal(t, []string{
		"Idle>AwaitingUserInput",
		"AwaitingUserInput>RoutingTurn",
		"RoutingTurn>GeneratingReply",
		"GeneratingReply>RoutingTurn",
		"RoutingTurn>GeneratingReply",
		"GeneratingReply>RoutingTurn",
		"RoutingTurn>GeneratingReply",
		"GeneratingReply>RoutingTurn",
		"RoutingTurn>GeneratingReply",
		"GeneratingReply>CheckingTermination",
		"CheckingTermination>Completed",
		"Completed>AwaitingUserInput",
	}, transitions)
}

func TestLoop_ParticipantsSeeInstructionsAndWindow(t *testing.T) {
	model := &scriptedModel{}
	loop := newTestLoop(t, model, nil, &recordingTermination{verdicts: []bool{false, true}}, Options{})

	loop.Handle(context.Background(), "Write about hiking boots", nil)

	requests := model.participantRequests()
	require.Len(t, requests, 8)

	seo, err := loop.Registry().Get("SEO")
	require.NoError(t, err)
	require.Equal(t, seo.Instructions, requests[0].Instructions)
	require.Len(t, requests[0].History, 1)

	for _, req := range requests {
		require.LessOrEqual(t, len(req.History), DefaultHistoryWindow)
	}
	// The fifth turn still sees the user message; by the sixth it has
	// dropped out of the window.
	last := requests[4].History
	require.Len(t, last, DefaultHistoryWindow)
	require.Equal(t, "user", last[0].Author)
	require.Equal(t, "SDR", last[4].Author)

	sixth := requests[5].History
	require.Equal(t, "SEO", sixth[0].Author)
	require.Equal(t, "SEO", sixth[4].Author)
}

func TestLoop_StopsAtMaxIterations(t *testing.T) {
	model := &scriptedModel{}
	term := &recordingTermination{}
	loop := newTestLoop(t, model, nil, term, Options{})

	var emitted []agent.Message
	outcome := loop.Handle(context.Background(), "Write about hiking boots", collect(&emitted))

	require.Equal(t, OutcomeCompleted, outcome.Kind)
	require.Equal(t, ReasonMaxIterations, outcome.Reason)
	require.Equal(t, DefaultMaxIterations, outcome.Cycles)
	require.Equal(t, DefaultMaxIterations*4, outcome.Turns)
	require.Len(t, emitted, DefaultMaxIterations*4)

	require.Len(t, term.checked, DefaultMaxIterations)
	for _, m := range term.checked {
		require.Equal(t, "SDR", m.Author)
	}
	require.Equal(t, AwaitingUserInput, loop.State())
}

func TestLoop_TerminationCheckedOncePerCycle(t *testing.T) {
	model := &scriptedModel{}
	term := &recordingTermination{verdicts: []bool{false, false, true}}
	loop := newTestLoop(t, model, nil, term, Options{})

	var emitted []agent.Message
	outcome := loop.Handle(context.Background(), "Write about hiking boots", collect(&emitted))

	require.Equal(t, ReasonSatisfied, outcome.Reason)
	require.Equal(t, 3, outcome.Cycles)
	require.Len(t, emitted, 12)
	require.Len(t, term.checked, 3)
	for i, m := range term.checked {
		require.Equal(t, emitted[4*i+3].ID, m.ID)
	}
}

func TestLoop_UnparseableRoutingFallsBack(t *testing.T) {
	model := &scriptedModel{selections: []string{"I would pick someone", "CSR", "SDR"}}
	registry := newTestRegistry(t)
	oracle, err := router.NewModelOracle(model, registry, "SEO", router.WithLogger(quietLogger()))
	require.NoError(t, err)

	loop, err := New(registry, model, oracle, &recordingTermination{verdicts: []bool{true}}, Options{Logger: quietLogger()})
	require.NoError(t, err)

	var emitted []agent.Message
	outcome := loop.Handle(context.Background(), "Write about hiking boots", collect(&emitted))

	require.NoError(t, outcome.Err)
	require.Equal(t, ReasonSatisfied, outcome.Reason)
	require.Equal(t, []string{"SEO", "SEM", "CSR", "SDR"}, authors(emitted))
}

func TestLoop_GuardsAgainstRepeatedSpeaker(t *testing.T) {
	model := &scriptedModel{}
	loop := newTestLoop(t, model, fixedRouter("SEO"), &recordingTermination{}, Options{MaxIterations: 2})

	var emitted []agent.Message
	outcome := loop.Handle(context.Background(), "Write about hiking boots", collect(&emitted))

	require.Equal(t, OutcomeCompleted, outcome.Kind)
	require.Equal(t, ReasonTurnLimit, outcome.Reason)
	require.Equal(t, 8, outcome.Turns)
	require.Zero(t, outcome.Cycles)
	for i := 1; i < len(emitted); i++ {
		require.NotEqual(t, emitted[i-1].Author, emitted[i].Author)
	}
}

func TestLoop_CompletionFlagOnlyAfterTerminationCheck(t *testing.T) {
	tests := []struct {
		name         string
		router       router.Oracle
		verdicts     []bool
		wantReason   Reason
		wantComplete bool
	}{
		{name: "satisfied", verdicts: []bool{true}, wantReason: ReasonSatisfied, wantComplete: true},
		{name: "cycle cap", wantReason: ReasonMaxIterations, wantComplete: true},
		{name: "turn limit", router: fixedRouter("SEO"), wantReason: ReasonTurnLimit, wantComplete: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var loop *Loop
			var completeOnEntry []bool
			loop = newTestLoop(t, &scriptedModel{}, tt.router, &recordingTermination{verdicts: tt.verdicts}, Options{
				MaxIterations: 2,
				OnTransition: func(_, to State) {
					if to == Completed {
						completeOnEntry = append(completeOnEntry, loop.conv.Complete())
					}
				},
			})

			outcome := loop.Handle(context.Background(), "Write about hiking boots", nil)

			require.Equal(t, tt.wantReason, outcome.Reason)
			require.Equal(t, []bool{tt.wantComplete}, completeOnEntry)
			require.False(t, loop.conv.Complete())
		})
	}
}

func TestLoop_UnknownRoutedNameFallsBackToStart(t *testing.T) {
	model := &scriptedModel{}
	loop := newTestLoop(t, model, fixedRouter("CFO"), &recordingTermination{}, Options{MaxIterations: 1})

	var emitted []agent.Message
	loop.Handle(context.Background(), "hello", collect(&emitted))

	require.Equal(t, []string{"SEO", "SEM", "SEO", "SEM"}, authors(emitted))
}

func TestLoop_ModelFailureIsNotFatal(t *testing.T) {
	model := &scriptedModel{failFor: "SEM"}
	loop := newTestLoop(t, model, nil, &recordingTermination{verdicts: []bool{true}}, Options{})

	var emitted []agent.Message
	outcome := loop.Handle(context.Background(), "Write about hiking boots", collect(&emitted))

	require.Equal(t, OutcomeErrored, outcome.Kind)
	require.EqualError(t, outcome.Err, "model unavailable")
	require.Equal(t, 1, outcome.Turns)
	require.Equal(t, AwaitingUserInput, loop.State())
	require.Equal(t, []string{agent.UserAuthor, "SEO"}, authors(loop.History()))

	model.failFor = ""
	outcome = loop.Handle(context.Background(), "try again", nil)
	require.Equal(t, OutcomeCompleted, outcome.Kind)
	require.Len(t, loop.History(), 7)
}

func TestLoop_TerminationFailureIsNotFatal(t *testing.T) {
	boom := errors.New("termination down")
	term := termination.Func(func(context.Context, agent.Message) (bool, error) {
		return false, boom
	})
	loop := newTestLoop(t, &scriptedModel{}, nil, term, Options{})

	outcome := loop.Handle(context.Background(), "hello", nil)
	require.Equal(t, OutcomeErrored, outcome.Kind)
	require.ErrorIs(t, outcome.Err, boom)
	require.Equal(t, AwaitingUserInput, loop.State())
}

func TestLoop_CancelledContext(t *testing.T) {
	loop := newTestLoop(t, &scriptedModel{}, nil, &recordingTermination{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := loop.Handle(ctx, "hello", nil)
	require.Equal(t, OutcomeErrored, outcome.Kind)
	require.ErrorIs(t, outcome.Err, context.Canceled)
}

func TestLoop_ControlInput(t *testing.T) {
	ctrl := gomock.NewController(t)
	mc := mocks.NewMockModelClient(ctrl)
	mc.EXPECT().Complete(gomock.Any(), gomock.Any()).Times(0)

	loop := newTestLoop(t, mc, nil, &recordingTermination{}, Options{})

	outcome := loop.Handle(context.Background(), "   ", nil)
	require.Equal(t, OutcomeIgnored, outcome.Kind)
	require.ErrorIs(t, outcome.Err, ErrEmptyInput)
	require.Equal(t, AwaitingUserInput, loop.State())
	require.Empty(t, loop.History())

	outcome = loop.Handle(context.Background(), "EXIT", nil)
	require.Equal(t, OutcomeShutdown, outcome.Kind)
	require.Equal(t, Shutdown, loop.State())

	outcome = loop.Handle(context.Background(), "hello", nil)
	require.ErrorIs(t, outcome.Err, ErrShutdown)
}

func TestLoop_ResetKeepsRegistry(t *testing.T) {
	loop := newTestLoop(t, &scriptedModel{}, nil, &recordingTermination{verdicts: []bool{true}}, Options{})
	names := loop.Registry().Names()

	loop.Handle(context.Background(), "Write about hiking boots", nil)
	require.NotEmpty(t, loop.History())
	id := loop.ConversationID()

	outcome := loop.Handle(context.Background(), "reset", nil)
	require.Equal(t, OutcomeReset, outcome.Kind)
	require.Empty(t, loop.History())
	require.NotEqual(t, id, loop.ConversationID())
	require.Equal(t, names, loop.Registry().Names())
	require.Equal(t, AwaitingUserInput, loop.State())
}

func TestLoop_CompletedKeepsHistoryForNextMessage(t *testing.T) {
	term := &recordingTermination{verdicts: []bool{true, true}}
	loop := newTestLoop(t, &scriptedModel{}, nil, term, Options{})

	first := loop.Handle(context.Background(), "Write about hiking boots", nil)
	second := loop.Handle(context.Background(), "Now make it shorter", nil)

	require.Equal(t, 1, first.Cycles)
	require.Equal(t, 1, second.Cycles)
	require.Len(t, loop.History(), 10)
	require.Equal(t, "Now make it shorter", loop.History()[5].Content)
	require.False(t, loop.conv.Complete())
}

func TestNew_RejectsUnknownStartOrTerminal(t *testing.T) {
	registry := newTestRegistry(t)

	_, err := New(registry, &scriptedModel{}, fixedRouter("SEO"), &recordingTermination{}, Options{Start: "CFO"})
	require.ErrorIs(t, err, agent.ErrParticipantNotFound)

	_, err = New(registry, &scriptedModel{}, fixedRouter("SEO"), &recordingTermination{}, Options{Terminal: "CFO"})
	require.ErrorIs(t, err, agent.ErrParticipantNotFound)
}
