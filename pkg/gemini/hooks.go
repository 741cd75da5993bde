package gemini

import (
	"context"
	"encoding/json"
	"time"
)

// Hook observes an orchestrator run. Embed NoOpHook to implement only the
// methods you need. Hooks run synchronously on the exchange goroutine.
type Hook interface {
	// BeforeGenerate is called before each model call. round starts at 0.
	BeforeGenerate(ctx context.Context, model string, req *GenerateContentRequest, round int)

	// AfterGenerate is called after each successful model call.
	AfterGenerate(ctx context.Context, resp *GenerateContentResponse, round int, elapsed time.Duration)

	// BeforeFunctionCall is called before a handler runs.
	BeforeFunctionCall(ctx context.Context, call FunctionCall)

	// AfterFunctionCall is called after a handler returns. err is the
	// handler's error, if any.
	AfterFunctionCall(ctx context.Context, call FunctionCall, result json.RawMessage, err error, elapsed time.Duration)

	// OnError is called once when the run fails.
	OnError(ctx context.Context, err error, snap RunSnapshot)

	// OnComplete is called once when the run returns a response.
	OnComplete(ctx context.Context, resp *GenerateContentResponse, snap RunSnapshot)

	// OnStateChange is called on each state machine transition.
	OnStateChange(from, to RunState, snap RunSnapshot)
}

// NoOpHook implements every Hook method as a no-op.
type NoOpHook struct{}

func (NoOpHook) BeforeGenerate(context.Context, string, *GenerateContentRequest, int)      {}
func (NoOpHook) AfterGenerate(context.Context, *GenerateContentResponse, int, time.Duration) {}
func (NoOpHook) BeforeFunctionCall(context.Context, FunctionCall)                           {}
func (NoOpHook) AfterFunctionCall(context.Context, FunctionCall, json.RawMessage, error, time.Duration) {
}
func (NoOpHook) OnError(context.Context, error, RunSnapshot)                        {}
func (NoOpHook) OnComplete(context.Context, *GenerateContentResponse, RunSnapshot) {}
func (NoOpHook) OnStateChange(RunState, RunState, RunSnapshot)                      {}

// HookChain calls each hook in order.
type HookChain struct {
	hooks []Hook
}

func NewHookChain(hooks ...Hook) *HookChain {
	return &HookChain{hooks: hooks}
}

func (c *HookChain) Add(h Hook) {
	c.hooks = append(c.hooks, h)
}

func (c *HookChain) Len() int { return len(c.hooks) }

func (c *HookChain) BeforeGenerate(ctx context.Context, model string, req *GenerateContentRequest, round int) {
	for _, h := range c.hooks {
		h.BeforeGenerate(ctx, model, req, round)
	}
}

func (c *HookChain) AfterGenerate(ctx context.Context, resp *GenerateContentResponse, round int, elapsed time.Duration) {
	for _, h := range c.hooks {
		h.AfterGenerate(ctx, resp, round, elapsed)
	}
}

func (c *HookChain) BeforeFunctionCall(ctx context.Context, call FunctionCall) {
	for _, h := range c.hooks {
		h.BeforeFunctionCall(ctx, call)
	}
}

func (c *HookChain) AfterFunctionCall(ctx context.Context, call FunctionCall, result json.RawMessage, err error, elapsed time.Duration) {
	for _, h := range c.hooks {
		h.AfterFunctionCall(ctx, call, result, err, elapsed)
	}
}

func (c *HookChain) OnError(ctx context.Context, err error, snap RunSnapshot) {
	for _, h := range c.hooks {
		h.OnError(ctx, err, snap)
	}
}

func (c *HookChain) OnComplete(ctx context.Context, resp *GenerateContentResponse, snap RunSnapshot) {
	for _, h := range c.hooks {
		h.OnComplete(ctx, resp, snap)
	}
}

func (c *HookChain) OnStateChange(from, to RunState, snap RunSnapshot) {
	for _, h := range c.hooks {
		h.OnStateChange(from, to, snap)
	}
}

var _ Hook = (*HookChain)(nil)
