package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ngoclaw/gemini-go/pkg/safego"
)

// ContentGenerator performs one non-streaming model call. *Client
// implements it; tests substitute stubs.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, req *GenerateContentRequest) (*GenerateContentResponse, error)
}

var _ ContentGenerator = (*Client)(nil)

// Orchestrator drives the function-calling loop: call the model, and while
// the reply asks for a function, run it locally, append the call and its
// result to the conversation and call the model again.
//
// Only the first part of the first candidate is inspected. A function call
// anywhere else in a reply is returned to the caller untouched.
type Orchestrator struct {
	gen       ContentGenerator
	handlers  HandlerLookup
	maxRounds int
	hooks     *HookChain
	logger    *zap.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithMaxRounds caps the number of function invocations per run.
// Zero, the default, means no cap.
func WithMaxRounds(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxRounds = n
		}
	}
}

// WithHooks appends lifecycle hooks.
func WithHooks(hooks ...Hook) OrchestratorOption {
	return func(o *Orchestrator) {
		for _, h := range hooks {
			if h != nil {
				o.hooks.Add(h)
			}
		}
	}
}

func WithOrchestratorLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an orchestrator. handlers may be nil, in which
// case every function call fails as unknown.
func NewOrchestrator(gen ContentGenerator, handlers HandlerLookup, opts ...OrchestratorOption) *Orchestrator {
	if handlers == nil {
		handlers = Handlers{}
	}
	o := &Orchestrator{
		gen:      gen,
		handlers: handlers,
		hooks:    NewHookChain(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one exchange and returns the first response whose leading
// part is not a function call.
//
// req is not modified; the conversation grows on a private copy. Any error
// ends the run: model errors are returned as is, an unknown function name or
// a failing handler produce a FunctionExecution error. Nothing is retried.
func (o *Orchestrator) Run(ctx context.Context, model string, req *GenerateContentRequest) (*GenerateContentResponse, error) {
	exchangeID := uuid.NewString()
	logger := o.logger.With(zap.String("exchange_id", exchangeID), zap.String("model", model))

	sm := NewStateMachine(exchangeID, model, o.maxRounds, logger)
	sm.OnTransition(o.hooks.OnStateChange)

	fail := func(err error) (*GenerateContentResponse, error) {
		if terr := sm.Transition(StateFailed); terr != nil {
			err = errors.Join(err, terr)
		}
		snap := sm.Snapshot()
		logger.Warn("Function-calling exchange failed",
			zap.Int("round", snap.Round),
			zap.Int("model_calls", snap.ModelCalls),
			zap.Error(err),
		)
		o.hooks.OnError(ctx, err, snap)
		return nil, err
	}

	if req == nil {
		return fail(newTransportError("start exchange", ErrNilRequest))
	}
	work := req.Clone()
	for {
		round := sm.Snapshot().Round

		o.hooks.BeforeGenerate(ctx, model, work, round)
		start := time.Now()
		resp, err := o.gen.GenerateContent(ctx, model, work)
		if err != nil {
			return fail(err)
		}
		sm.RecordModelCall(resp)
		o.hooks.AfterGenerate(ctx, resp, round, time.Since(start))

		if err := sm.Transition(StateInspecting); err != nil {
			return fail(err)
		}

		part, ok := resp.FirstPart()
		call, isCall := part.Data.(FunctionCall)
		if !ok || !isCall {
			if err := sm.Transition(StateDone); err != nil {
				return fail(err)
			}
			snap := sm.Snapshot()
			logger.Debug("Function-calling exchange complete",
				zap.Int("rounds", snap.Round),
				zap.Int("tokens", snap.TokensUsed),
			)
			o.hooks.OnComplete(ctx, resp, snap)
			return resp, nil
		}

		if o.maxRounds > 0 && round >= o.maxRounds {
			return fail(newMaxRoundsError(round))
		}
		handler, found := o.handlers.Handler(call.Name)
		if !found {
			return fail(newUnknownFunctionError(call.Name))
		}

		if err := sm.Transition(StateInvoking); err != nil {
			return fail(err)
		}
		result, err := o.invoke(ctx, handler, call, sm)
		if err != nil {
			return fail(err)
		}
		logger.Debug("Function call completed",
			zap.String("function", call.Name),
			zap.Int("round", round),
			zap.Int("result_bytes", len(result)),
		)

		// The echo uses the call exactly as the model sent it.
		work.Contents = append(work.Contents,
			NewContent(RoleUser, Part{Data: call}),
			NewContent(RoleTool, NewFunctionResponsePart(call.Name, result)),
		)

		if err := sm.Transition(StateAwaitingModel); err != nil {
			return fail(err)
		}
	}
}

// invoke runs the handler on a private copy of the arguments.
func (o *Orchestrator) invoke(ctx context.Context, handler Handler, call FunctionCall, sm *StateMachine) (json.RawMessage, error) {
	sm.RecordFunctionCall(call.Name)
	o.hooks.BeforeFunctionCall(ctx, call)

	var args json.RawMessage
	if call.Args != nil {
		args = append(json.RawMessage(nil), call.Args...)
	}

	start := time.Now()
	var result json.RawMessage
	err := safego.Call(o.logger, "function "+call.Name, func() error {
		var err error
		result, err = handler.Call(ctx, args)
		return err
	})
	if err == nil {
		switch {
		case len(result) == 0:
			result = json.RawMessage("null")
		case !json.Valid(result):
			err = errors.New("handler returned invalid JSON")
		}
	}
	o.hooks.AfterFunctionCall(ctx, call, result, err, time.Since(start))

	if err != nil {
		return nil, newHandlerError(call.Name, err)
	}
	return result, nil
}
