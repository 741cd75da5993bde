package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ngoclaw/gemini-go/pkg/gemini"
	"github.com/ngoclaw/gemini-go/pkg/gemini/geminitest"
)

// stubGenerator replays scripted replies and records a copy of every request.
type stubGenerator struct {
	mu       sync.Mutex
	replies  []stubReply
	requests []*gemini.GenerateContentRequest
}

type stubReply struct {
	resp *gemini.GenerateContentResponse
	err  error
}

func newStub(replies ...stubReply) *stubGenerator {
	return &stubGenerator{replies: replies}
}

func reply(resp *gemini.GenerateContentResponse) stubReply { return stubReply{resp: resp} }

func (s *stubGenerator) GenerateContent(_ context.Context, _ string, req *gemini.GenerateContentRequest) (*gemini.GenerateContentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req.Clone())
	if len(s.requests) > len(s.replies) {
		return nil, fmt.Errorf("stub: unexpected call %d", len(s.requests))
	}
	r := s.replies[len(s.requests)-1]
	return r.resp, r.err
}

func (s *stubGenerator) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func callResponse(name, args string) *gemini.GenerateContentResponse {
	return geminitest.PartsResponse(gemini.NewFunctionCallPart(name, json.RawMessage(args)))
}

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func userRequest(text string) *gemini.GenerateContentRequest {
	return &gemini.GenerateContentRequest{Contents: []gemini.Content{gemini.NewUserText(text)}, Tools: gemini.Tools{}}
}

func TestOrchestrator_TextReplyEndsAfterOneCall(t *testing.T) {
	stub := newStub(reply(geminitest.TextResponse("4")))
	called := false
	handlers := gemini.Handlers{"f": gemini.HandlerFunc(func(context.Context, json.RawMessage) (json.RawMessage, error) {
		called = true
		return json.RawMessage(`1`), nil
	})}

	resp, err := gemini.NewOrchestrator(stub, handlers, gemini.WithOrchestratorLogger(testLogger())).
		Run(context.Background(), "gemini-pro", userRequest("2+2?"))
	require.NoError(t, err)
	assert.Equal(t, "4", resp.Text())
	assert.Equal(t, 1, stub.calls())
	assert.False(t, called)
}

func TestOrchestrator_NonCallPartsEndTheLoop(t *testing.T) {
	tests := []struct {
		name string
		resp *gemini.GenerateContentResponse
	}{
		{"no candidates", &gemini.GenerateContentResponse{PromptFeedback: &gemini.PromptFeedback{BlockReason: "SAFETY"}}},
		{"candidate without parts", &gemini.GenerateContentResponse{Candidates: []gemini.Candidate{{FinishReason: gemini.FinishReasonSafety}}}},
		{"executable code first", geminitest.PartsResponse(gemini.NewExecutableCodePart(gemini.LanguagePython, "print(1)"))},
		{"inline data first", geminitest.PartsResponse(gemini.NewInlineDataPart("image/png", []byte{1}))},
		{"call in second position", geminitest.PartsResponse(gemini.NewTextPart("sure"), gemini.NewFunctionCallPart("f", nil))},
		{"call in second candidate", &gemini.GenerateContentResponse{Candidates: []gemini.Candidate{
			{Content: gemini.NewContent(gemini.RoleModel, gemini.NewTextPart("a"))},
			{Content: gemini.NewContent(gemini.RoleModel, gemini.NewFunctionCallPart("f", nil))},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStub(reply(tt.resp))
			resp, err := gemini.NewOrchestrator(stub, gemini.Handlers{}).Run(context.Background(), "m", userRequest("x"))
			require.NoError(t, err)
			assert.Same(t, tt.resp, resp)
			assert.Equal(t, 1, stub.calls())
		})
	}
}

func TestOrchestrator_OneRoundTrip(t *testing.T) {
	stub := newStub(
		reply(callResponse("f", `{"x":1}`)),
		reply(geminitest.TextResponse("done")),
	)
	handlers := gemini.Handlers{"f": gemini.HandlerFunc(func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		assert.JSONEq(t, `{"x":1}`, string(args))
		return json.RawMessage(`{"ok":true}`), nil
	})}

	req := userRequest("run f")
	resp, err := gemini.NewOrchestrator(stub, handlers).Run(context.Background(), "gemini-pro", req)
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text())
	require.Equal(t, 2, stub.calls())

	second := stub.requests[1]
	require.Len(t, second.Contents, 3)
	assert.Equal(t, req.Contents[0], second.Contents[0])

	echo := second.Contents[1]
	assert.Equal(t, gemini.RoleUser, echo.Role)
	require.Len(t, echo.Parts, 1)
	assert.Equal(t, gemini.FunctionCall{Name: "f", Args: json.RawMessage(`{"x":1}`)}, echo.Parts[0].Data)

	result := second.Contents[2]
	assert.Equal(t, gemini.RoleTool, result.Role)
	require.Len(t, result.Parts, 1)
	fr, ok := result.Parts[0].Data.(gemini.FunctionResponse)
	require.True(t, ok)
	assert.Equal(t, "f", fr.Name)
	assert.JSONEq(t, `{"ok":true}`, string(fr.Response.Content))

	assert.Len(t, req.Contents, 1, "caller's request must not grow")
}

func TestOrchestrator_UnknownFunctionIsFatal(t *testing.T) {
	stub := newStub(reply(callResponse("missing", `{}`)), reply(geminitest.TextResponse("unreachable")))

	resp, err := gemini.NewOrchestrator(stub, gemini.Handlers{}).Run(context.Background(), "m", userRequest("x"))
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, gemini.IsFunctionExecution(err))
	assert.ErrorIs(t, err, gemini.ErrUnknownFunction)

	e, _ := gemini.AsError(err)
	assert.Equal(t, "missing", e.Function)
	assert.Contains(t, err.Error(), "unknown function: missing")
	assert.Equal(t, 1, stub.calls())
}

func TestOrchestrator_NilHandlersTreatsEveryCallAsUnknown(t *testing.T) {
	stub := newStub(reply(callResponse("f", `{}`)))
	_, err := gemini.NewOrchestrator(stub, nil).Run(context.Background(), "m", userRequest("x"))
	assert.ErrorIs(t, err, gemini.ErrUnknownFunction)
}

func TestOrchestrator_HandlerFailureIsFatalAndNonMutating(t *testing.T) {
	stub := newStub(
		reply(callResponse("ok", `{}`)),
		reply(callResponse("fails", `{}`)),
		reply(geminitest.TextResponse("unreachable")),
	)
	handlers := gemini.Handlers{
		"ok": gemini.HandlerFunc(func(context.Context, json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`"fine"`), nil
		}),
		"fails": gemini.HandlerFunc(func(context.Context, json.RawMessage) (json.RawMessage, error) {
			return nil, errors.New("disk full")
		}),
	}

	req := userRequest("x")
	_, err := gemini.NewOrchestrator(stub, handlers).Run(context.Background(), "m", req)
	require.Error(t, err)
	assert.True(t, gemini.IsFunctionExecution(err))

	e, ok := gemini.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "disk full", e.Message)
	assert.Equal(t, "fails", e.Function)
	assert.Equal(t, 2, stub.calls())
	assert.Len(t, req.Contents, 1)
}

func TestOrchestrator_HandlerInvalidJSON(t *testing.T) {
	stub := newStub(reply(callResponse("f", `{}`)))
	handlers := gemini.Handlers{"f": gemini.HandlerFunc(func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{not json`), nil
	})}

	_, err := gemini.NewOrchestrator(stub, handlers).Run(context.Background(), "m", userRequest("x"))
	assert.True(t, gemini.IsFunctionExecution(err))
	assert.Equal(t, 1, stub.calls())
}

func TestOrchestrator_HandlerPanicBecomesFunctionExecutionError(t *testing.T) {
	stub := newStub(reply(callResponse("f", `{}`)))
	handlers := gemini.Handlers{"f": gemini.HandlerFunc(func(context.Context, json.RawMessage) (json.RawMessage, error) {
		panic("nil map write")
	})}

	_, err := gemini.NewOrchestrator(stub, handlers).Run(context.Background(), "m", userRequest("x"))
	require.Error(t, err)
	assert.True(t, gemini.IsFunctionExecution(err))
	assert.Contains(t, err.Error(), "nil map write")
}

func TestOrchestrator_HandlerMutationDoesNotLeakIntoHistory(t *testing.T) {
	stub := newStub(
		reply(callResponse("f", `{"n":1}`)),
		reply(geminitest.TextResponse("done")),
	)
	handlers := gemini.Handlers{"f": gemini.HandlerFunc(func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		for i := range args {
			args[i] = ' '
		}
		return json.RawMessage(`null`), nil
	})}

	_, err := gemini.NewOrchestrator(stub, handlers).Run(context.Background(), "m", userRequest("x"))
	require.NoError(t, err)

	echo := stub.requests[1].Contents[1].Parts[0].Data.(gemini.FunctionCall)
	assert.JSONEq(t, `{"n":1}`, string(echo.Args))
}

func TestOrchestrator_NilRequestFailsWithoutCallingModel(t *testing.T) {
	gen := newStub()
	resp, err := gemini.NewOrchestrator(gen, gemini.Handlers{}).Run(context.Background(), "gemini-pro", nil)

	assert.Nil(t, resp)
	assert.True(t, gemini.IsTransport(err))
	assert.ErrorIs(t, err, gemini.ErrNilRequest)
	assert.Equal(t, 0, gen.calls())
}

func TestOrchestrator_GeneratorErrorPropagatesUnchanged(t *testing.T) {
	apiErr := &gemini.Error{Kind: gemini.KindAPI, Message: "status 500: boom", StatusCode: 500}
	stub := newStub(reply(callResponse("f", `{}`)), stubReply{err: apiErr})
	handlers := gemini.Handlers{"f": gemini.HandlerFunc(func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`1`), nil
	})}

	_, err := gemini.NewOrchestrator(stub, handlers).Run(context.Background(), "m", userRequest("x"))
	assert.Same(t, apiErr, err)
}

func TestOrchestrator_MaxRounds(t *testing.T) {
	loop := make([]stubReply, 5)
	for i := range loop {
		loop[i] = reply(callResponse("again", `{}`))
	}
	stub := newStub(loop...)
	handlers := gemini.Handlers{"again": gemini.HandlerFunc(func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})}

	_, err := gemini.NewOrchestrator(stub, handlers, gemini.WithMaxRounds(2)).Run(context.Background(), "m", userRequest("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, gemini.ErrMaxRoundsExceeded)
	assert.True(t, gemini.IsFunctionExecution(err))
	assert.Equal(t, 3, stub.calls())
}

func TestOrchestrator_UnboundedByDefault(t *testing.T) {
	const rounds = 50
	replies := make([]stubReply, 0, rounds+1)
	for i := 0; i < rounds; i++ {
		replies = append(replies, reply(callResponse("inc", fmt.Sprintf(`{"i":%d}`, i))))
	}
	replies = append(replies, reply(geminitest.TextResponse("finished")))
	stub := newStub(replies...)

	type incArgs struct {
		I int `json:"i"`
	}
	handlers := gemini.Handlers{"inc": gemini.TypedHandler(func(_ context.Context, a incArgs) (int, error) {
		return a.I + 1, nil
	})}

	resp, err := gemini.NewOrchestrator(stub, handlers).Run(context.Background(), "m", userRequest("count"))
	require.NoError(t, err)
	assert.Equal(t, "finished", resp.Text())
	assert.Equal(t, rounds+1, stub.calls())
	assert.Len(t, stub.requests[rounds].Contents, 1+2*rounds)
}

// recordingHook captures the order of lifecycle events.
type recordingHook struct {
	gemini.NoOpHook
	mu     sync.Mutex
	events []string
	final  gemini.RunSnapshot
}

func (h *recordingHook) add(ev string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHook) BeforeGenerate(_ context.Context, _ string, _ *gemini.GenerateContentRequest, round int) {
	h.add(fmt.Sprintf("generate:%d", round))
}

func (h *recordingHook) BeforeFunctionCall(_ context.Context, call gemini.FunctionCall) {
	h.add("call:" + call.Name)
}

func (h *recordingHook) AfterFunctionCall(_ context.Context, call gemini.FunctionCall, _ json.RawMessage, err error, _ time.Duration) {
	h.add(fmt.Sprintf("result:%s:%t", call.Name, err == nil))
}

func (h *recordingHook) OnStateChange(from, to gemini.RunState, _ gemini.RunSnapshot) {
	h.add(string(from) + "->" + string(to))
}

func (h *recordingHook) OnComplete(_ context.Context, _ *gemini.GenerateContentResponse, snap gemini.RunSnapshot) {
	h.final = snap
	h.add("complete")
}

func (h *recordingHook) OnError(_ context.Context, _ error, snap gemini.RunSnapshot) {
	h.final = snap
	h.add("error")
}

func TestOrchestrator_HooksAndStates(t *testing.T) {
	stub := newStub(reply(callResponse("f", `{}`)), reply(geminitest.TextResponse("done")))
	handlers := gemini.Handlers{"f": gemini.HandlerFunc(func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`1`), nil
	})}
	hook := &recordingHook{}

	_, err := gemini.NewOrchestrator(stub, handlers, gemini.WithHooks(hook)).Run(context.Background(), "gemini-pro", userRequest("x"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"generate:0",
		"awaiting_model->inspecting",
		"inspecting->invoking",
		"call:f",
		"result:f:true",
		"invoking->awaiting_model",
		"generate:1",
		"awaiting_model->inspecting",
		"inspecting->done",
		"complete",
	}, hook.events)
	assert.Equal(t, gemini.StateDone, hook.final.State)
	assert.Equal(t, 1, hook.final.Round)
	assert.Equal(t, 2, hook.final.ModelCalls)
	assert.Equal(t, 1, hook.final.FunctionCalls)
	assert.Equal(t, 10, hook.final.TokensUsed)
	assert.Equal(t, "f", hook.final.LastFunction)
	assert.NotEmpty(t, hook.final.ExchangeID)
}

func TestOrchestrator_HooksOnFailure(t *testing.T) {
	stub := newStub(reply(callResponse("nope", `{}`)))
	hook := &recordingHook{}

	_, err := gemini.NewOrchestrator(stub, gemini.Handlers{}, gemini.WithHooks(hook)).Run(context.Background(), "m", userRequest("x"))
	require.Error(t, err)
	assert.Equal(t, []string{
		"generate:0",
		"awaiting_model->inspecting",
		"inspecting->failed",
		"error",
	}, hook.events)
	assert.Equal(t, gemini.StateFailed, hook.final.State)
}

func TestOrchestrator_ConcurrentExchangesShareHandlers(t *testing.T) {
	client, srv := newTestClient(t)

	const exchanges = 8
	for i := 0; i < exchanges; i++ {
		srv.QueueGenerate(geminitest.FunctionCallReply("square", json.RawMessage(`{"n":3}`)))
	}
	for i := 0; i < exchanges; i++ {
		srv.QueueGenerate(geminitest.TextReply("9"))
	}

	var mu sync.Mutex
	invocations := 0
	handlers := gemini.Handlers{"square": gemini.TypedHandler(func(_ context.Context, a struct{ N int }) (int, error) {
		mu.Lock()
		invocations++
		mu.Unlock()
		return a.N * a.N, nil
	})}
	orch := gemini.NewOrchestrator(client, handlers)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < exchanges; i++ {
		g.Go(func() error {
			_, err := orch.Run(ctx, "gemini-pro", userRequest("square 3"))
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, exchanges, invocations)
	assert.Len(t, srv.RequestsFor("generateContent"), 2*exchanges)
}

func TestClient_GenerateContentWithFunctionCalling(t *testing.T) {
	client, srv := newTestClient(t)
	srv.QueueGenerate(
		geminitest.FunctionCallReply("get_time", json.RawMessage(`{"zone":"UTC"}`)),
		geminitest.TextReply("It is noon."),
	)

	reg := gemini.NewRegistry()
	require.NoError(t, reg.Register(gemini.FunctionDeclaration{Name: "get_time", Description: "current time"},
		gemini.TypedHandler(func(_ context.Context, a struct {
			Zone string `json:"zone"`
		}) (map[string]string, error) {
			return map[string]string{"zone": a.Zone, "time": "12:00"}, nil
		})))

	req := userRequest("what time is it?")
	req.Tools = gemini.Tools{reg.Tool()}

	resp, err := client.GenerateContentWithFunctionCalling(context.Background(), "gemini-pro", req, reg)
	require.NoError(t, err)
	assert.Equal(t, "It is noon.", resp.Text())

	calls := srv.RequestsFor("generateContent")
	require.Len(t, calls, 2)
	second, err := calls[1].GenerateRequest()
	require.NoError(t, err)
	require.Len(t, second.Contents, 3)
	assert.Equal(t, gemini.RoleTool, second.Contents[2].Role)

	fr := second.Contents[2].Parts[0].Data.(gemini.FunctionResponse)
	assert.JSONEq(t, `{"zone":"UTC","time":"12:00"}`, string(fr.Response.Content))

	tools, ok := second.Tools[0].(gemini.FunctionDeclarationsTool)
	require.True(t, ok)
	assert.Equal(t, "get_time", tools.FunctionDeclarations[0].Name)
}

func TestOrchestrator_ConcreteScenario(t *testing.T) {
	client, srv := newTestClient(t)
	srv.QueueGenerate(geminitest.Reply{Body: `{"candidates":[{"content":{"role":"model","parts":[{"text":"4"}]}}]}`})

	var req gemini.GenerateContentRequest
	require.NoError(t, json.Unmarshal([]byte(`{"contents":[{"role":"user","parts":[{"text":"2+2?"}]}],"tools":[]}`), &req))

	resp, err := client.GenerateContentWithFunctionCalling(context.Background(), "gemini-pro", &req, gemini.Handlers{})
	require.NoError(t, err)
	assert.Equal(t, "4", resp.Text())
	assert.Len(t, srv.RequestsFor("generateContent"), 1)
}
