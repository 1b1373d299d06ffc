package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnswerDotAI/ai-jup/core"
	"github.com/AnswerDotAI/ai-jup/exec"
	"github.com/AnswerDotAI/ai-jup/model"
	"github.com/AnswerDotAI/ai-jup/session"
	"github.com/AnswerDotAI/ai-jup/tool"
)

func collect(t *testing.T, ch <-chan core.StreamEvent) []core.StreamEvent {
	t.Helper()
	var events []core.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func terminal(events []core.StreamEvent) core.StreamEvent {
	if len(events) == 0 {
		return core.StreamEvent{}
	}
	return events[len(events)-1]
}

func newBackend(t *testing.T) *exec.InProcessBackend {
	t.Helper()
	b := exec.NewInProcessBackend()
	b.Register("head", func(ctx context.Context, args map[string]any) (string, error) {
		return "first rows", nil
	})
	b.Register("fail", func(ctx context.Context, args map[string]any) (string, error) {
		return "", errors.New("division by zero")
	})
	return b
}

func newLoop(m model.Model, b exec.Backend, optFns ...func(o *Options)) *Loop {
	d := tool.NewDispatcher(b, exec.NewLockRegistry())
	return New(m, d, optFns...)
}

func promptReq(prompt string, maxSteps int) core.PromptRequest {
	return core.PromptRequest{
		Prompt:   prompt,
		MaxSteps: maxSteps,
		Context: core.ContextBundle{
			Variables: map[string]string{"x": "42"},
			Functions: map[string]core.FunctionInfo{
				"head": {Signature: "head(n: int = 5)"},
				"fail": {Signature: "fail()"},
			},
		},
	}
}

func TestLoop_TextOnlyRun(t *testing.T) {
	m := model.NewMockModel().AddTurn(
		model.Delta{Type: model.DeltaText, Text: "hello "},
		model.Delta{Type: model.DeltaText, Text: "world"},
	)
	loop := newLoop(m, newBackend(t))

	events := collect(t, loop.Run(context.Background(), promptReq("hi", 4)))
	require.Len(t, events, 3)
	assert.Equal(t, "hello ", events[0].Text)
	assert.Equal(t, "world", events[1].Text)
	assert.Equal(t, core.EventDone, events[2].Type)
	assert.Empty(t, events[2].DoneReason)
}

func TestLoop_VariableSubstitution(t *testing.T) {
	m := model.NewMockModel().AddTurn(model.Delta{Type: model.DeltaText, Text: "ok"})
	loop := newLoop(m, newBackend(t))

	collect(t, loop.Run(context.Background(), promptReq("what is $x plus $unknown", 0)))

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	last := reqs[0].Contents[len(reqs[0].Contents)-1]
	assert.Equal(t, "what is 42 plus $unknown", last.Text())
}

func TestLoop_ToolRoundTrip(t *testing.T) {
	m := model.NewMockModel().
		AddTurn(
			model.Delta{Type: model.DeltaText, Text: "let me check"},
			model.Delta{Type: model.DeltaToolCallStart, CallID: "c1", Name: "head"},
			model.Delta{Type: model.DeltaToolInput, CallID: "c1", Fragment: `{"n":`},
			model.Delta{Type: model.DeltaToolInput, CallID: "c1", Fragment: `3}`},
			model.Delta{Type: model.DeltaToolCallDone, CallID: "c1"},
		).
		AddTurn(model.Delta{Type: model.DeltaText, Text: "the first rows are ..."})
	loop := newLoop(m, newBackend(t))

	events := collect(t, loop.Run(context.Background(), promptReq("show the data", 4)))

	var types []core.EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []core.EventType{
		core.EventText,
		core.EventToolCall,
		core.EventToolInput, core.EventToolInput,
		core.EventToolResult,
		core.EventText,
		core.EventDone,
	}, types)

	res := events[4].Result
	assert.Equal(t, "c1", res.ID)
	assert.Equal(t, "first rows", res.Result)

	// The follow-up model request carries the assistant call and tool result.
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	followUp := reqs[1].Contents
	assistant := followUp[len(followUp)-2]
	assert.Equal(t, core.RoleAssistant, assistant.Role)
	toolTurn := followUp[len(followUp)-1]
	assert.Equal(t, core.RoleTool, toolTurn.Role)
}

func TestLoop_MaxStepsZeroNeverExecutes(t *testing.T) {
	backend := exec.NewInProcessBackend()
	executed := false
	backend.Register("head", func(ctx context.Context, args map[string]any) (string, error) {
		executed = true
		return "rows", nil
	})
	m := model.NewMockModel().AddTurn(
		model.Delta{Type: model.DeltaToolCallStart, CallID: "c1", Name: "head"},
		model.Delta{Type: model.DeltaToolCallDone, CallID: "c1"},
	)
	loop := newLoop(m, backend)

	events := collect(t, loop.Run(context.Background(), promptReq("what is $x", 0)))

	last := terminal(events)
	assert.Equal(t, core.EventDone, last.Type)
	assert.Equal(t, core.DoneReasonMaxSteps, last.DoneReason)
	assert.False(t, executed, "tool must not run with a zero step bound")
	assert.Len(t, m.Requests(), 1)
}

func TestLoop_StepBoundHonored(t *testing.T) {
	// Model requests a tool every turn; one execution round allowed.
	m := model.NewMockModel()
	for i := 0; i < 5; i++ {
		id := core.NewID()
		m.AddTurn(
			model.Delta{Type: model.DeltaToolCallStart, CallID: id, Name: "head"},
			model.Delta{Type: model.DeltaToolCallDone, CallID: id},
		)
	}
	loop := newLoop(m, newBackend(t))

	events := collect(t, loop.Run(context.Background(), promptReq("loop forever", 1)))

	last := terminal(events)
	assert.Equal(t, core.EventDone, last.Type)
	assert.Equal(t, core.DoneReasonMaxSteps, last.DoneReason)

	var results int
	for _, ev := range events {
		if ev.Type == core.EventToolResult {
			results++
		}
	}
	assert.Equal(t, 1, results, "exactly one execution round within the bound")
	assert.Len(t, m.Requests(), 2)
}

func TestLoop_ToolFailureIsInBand(t *testing.T) {
	m := model.NewMockModel().
		AddTurn(
			model.Delta{Type: model.DeltaToolCallStart, CallID: "c1", Name: "fail"},
			model.Delta{Type: model.DeltaToolCallDone, CallID: "c1"},
		).
		AddTurn(model.Delta{Type: model.DeltaText, Text: "that failed, sorry"})
	loop := newLoop(m, newBackend(t))

	events := collect(t, loop.Run(context.Background(), promptReq("break it", 4)))

	var result *core.ToolResult
	for _, ev := range events {
		if ev.Type == core.EventToolResult {
			result = ev.Result
		}
	}
	require.NotNil(t, result)
	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, "division by zero")

	last := terminal(events)
	assert.Equal(t, core.EventDone, last.Type, "loop must continue after a tool failure")
}

func TestLoop_UnknownToolIsInBand(t *testing.T) {
	m := model.NewMockModel().
		AddTurn(
			model.Delta{Type: model.DeltaToolCallStart, CallID: "c1", Name: "not_defined"},
			model.Delta{Type: model.DeltaToolCallDone, CallID: "c1"},
		).
		AddTurn(model.Delta{Type: model.DeltaText, Text: "no such function"})
	loop := newLoop(m, newBackend(t))

	events := collect(t, loop.Run(context.Background(), promptReq("call something odd", 4)))

	var failed bool
	for _, ev := range events {
		if ev.Type == core.EventToolResult && ev.Result.Failed() {
			failed = true
		}
	}
	assert.True(t, failed)
	assert.Equal(t, core.EventDone, terminal(events).Type)
}

func TestLoop_TransportFailureIsFatal(t *testing.T) {
	m := model.NewMockModel().FailWith(errors.New("connection reset"))
	loop := newLoop(m, newBackend(t))

	events := collect(t, loop.Run(context.Background(), promptReq("hi", 4)))

	require.Len(t, events, 1)
	assert.Equal(t, core.EventError, events[0].Type)
	assert.Equal(t, core.CodeUpstreamTransport, events[0].Err.Code)
}

func TestLoop_NoDispatcherBackendUnavailable(t *testing.T) {
	m := model.NewMockModel().AddTurn(
		model.Delta{Type: model.DeltaToolCallStart, CallID: "c1", Name: "head"},
		model.Delta{Type: model.DeltaToolCallDone, CallID: "c1"},
	)
	loop := New(m, nil)

	events := collect(t, loop.Run(context.Background(), promptReq("use a tool", 4)))

	last := terminal(events)
	assert.Equal(t, core.EventError, last.Type)
	assert.Equal(t, core.CodeBackendUnavailable, last.Err.Code)
}

func TestLoop_FatalDispatchFailureIsInBandError(t *testing.T) {
	m := model.NewMockModel().AddTurn(
		model.Delta{Type: model.DeltaToolCallStart, CallID: "c1", Name: "head"},
		model.Delta{Type: model.DeltaToolCallDone, CallID: "c1"},
	)
	loop := newLoop(m, nil)

	events := collect(t, loop.Run(context.Background(), promptReq("use a tool", 4)))

	last := terminal(events)
	require.Equal(t, core.EventError, last.Type)
	assert.Equal(t, core.CodeBackendUnavailable, last.Err.Code)
	for _, ev := range events {
		assert.NotEqual(t, core.EventToolResult, ev.Type)
	}
}

func TestLoop_NoOrphanResults(t *testing.T) {
	m := model.NewMockModel().
		AddTurn(
			model.Delta{Type: model.DeltaToolCallStart, CallID: "c1", Name: "head"},
			model.Delta{Type: model.DeltaToolCallDone, CallID: "c1"},
		).
		AddTurn(model.Delta{Type: model.DeltaText, Text: "done"})
	loop := newLoop(m, newBackend(t))

	events := collect(t, loop.Run(context.Background(), promptReq("go", 4)))

	announced := map[string]bool{}
	for _, ev := range events {
		switch ev.Type {
		case core.EventToolCall:
			announced[ev.Call.ID] = true
		case core.EventToolResult:
			assert.True(t, announced[ev.Result.ID], "result %s was never announced", ev.Result.ID)
		}
	}
}

func TestLoop_DisconnectStopsUpstream(t *testing.T) {
	// A model that streams forever until its context is cancelled.
	produced := make(chan struct{}, 1)
	stopped := make(chan struct{})
	m := &blockingModel{produced: produced, stopped: stopped}
	loop := newLoop(m, newBackend(t))

	ctx, cancel := context.WithCancel(context.Background())
	ch := loop.Run(ctx, promptReq("stream forever", 4))

	<-produced
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("upstream consumption did not stop after disconnect")
	}

	for range ch {
	}
}

// blockingModel emits text deltas until cancelled, closing stopped on exit.
type blockingModel struct {
	produced chan struct{}
	stopped  chan struct{}
}

func (m *blockingModel) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	return model.NewStream(ctx, func(ctx context.Context, deltas chan<- model.Delta) error {
		defer close(m.stopped)
		for {
			select {
			case deltas <- model.Delta{Type: model.DeltaText, Text: "x"}:
				select {
				case m.produced <- struct{}{}:
				default:
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}), nil
}

func (m *blockingModel) Name() string { return "blocking" }

func TestLoop_TranscriptPersisted(t *testing.T) {
	store := session.NewInMemoryStore()
	m := model.NewMockModel().
		AddTurn(
			model.Delta{Type: model.DeltaToolCallStart, CallID: "c1", Name: "head"},
			model.Delta{Type: model.DeltaToolInput, CallID: "c1", Fragment: `{"n":1}`},
			model.Delta{Type: model.DeltaToolCallDone, CallID: "c1"},
		).
		AddTurn(model.Delta{Type: model.DeltaText, Text: "answer"})
	loop := newLoop(m, newBackend(t), WithStore(store))

	req := promptReq("show data", 4)
	req.SessionID = "sess-1"
	collect(t, loop.Run(context.Background(), req))

	hist, err := store.History(context.Background(), "sess-1")
	require.NoError(t, err)
	// user, assistant(call), tool(result), assistant(answer)
	require.Len(t, hist, 4)
	assert.Equal(t, core.RoleUser, hist[0].Role)
	assert.Equal(t, core.RoleAssistant, hist[1].Role)
	assert.Equal(t, core.RoleTool, hist[2].Role)
	assert.Equal(t, "answer", hist[3].Text())
}

func TestLoop_HistoryReplayed(t *testing.T) {
	store := session.NewInMemoryStore()
	require.NoError(t, store.Append(context.Background(), "sess-1",
		core.UserText("earlier question"),
		core.AssistantText("earlier answer"),
	))

	m := model.NewMockModel().AddTurn(model.Delta{Type: model.DeltaText, Text: "ok"})
	loop := newLoop(m, newBackend(t), WithStore(store))

	req := promptReq("follow-up", 4)
	req.SessionID = "sess-1"
	collect(t, loop.Run(context.Background(), req))

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	require.GreaterOrEqual(t, len(reqs[0].Contents), 3)
	assert.Equal(t, "earlier question", reqs[0].Contents[0].Text())
	assert.Equal(t, "earlier answer", reqs[0].Contents[1].Text())
}

func TestLoop_TurnTimeout(t *testing.T) {
	hang := &hangingModel{}
	loop := newLoop(hang, newBackend(t), WithTurnTimeout(30*time.Millisecond))

	done := make(chan []core.StreamEvent, 1)
	go func() {
		done <- collect(t, loop.Run(context.Background(), promptReq("hi", 4)))
	}()

	select {
	case events := <-done:
		last := terminal(events)
		assert.Equal(t, core.EventError, last.Type)
		assert.Equal(t, core.CodeUpstreamTransport, last.Err.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("loop hung past the turn timeout")
	}
}

// hangingModel never produces a delta until its context dies.
type hangingModel struct{}

func (m *hangingModel) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	return model.NewStream(ctx, func(ctx context.Context, deltas chan<- model.Delta) error {
		<-ctx.Done()
		return ctx.Err()
	}), nil
}

func (m *hangingModel) Name() string { return "hanging" }

func TestSubstituteVars(t *testing.T) {
	vars := map[string]string{"df": "DataFrame(3x4)", "x_1": "7"}
	tests := []struct {
		in   string
		want string
	}{
		{"describe $df", "describe DataFrame(3x4)"},
		{"$x_1 + $x_1", "7 + 7"},
		{"$missing stays", "$missing stays"},
		{"price is $5", "price is $5"},
		{"no refs", "no refs"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, SubstituteVars(tc.in, vars), "input %q", tc.in)
	}
}
