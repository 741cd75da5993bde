package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ngoclaw/gemini-go/pkg/gemini"
)

type namedHook struct {
	gemini.NoOpHook
	name string
	log  *[]string
}

func (h namedHook) BeforeFunctionCall(_ context.Context, call gemini.FunctionCall) {
	*h.log = append(*h.log, h.name+":before:"+call.Name)
}

func (h namedHook) OnError(_ context.Context, err error, _ gemini.RunSnapshot) {
	*h.log = append(*h.log, h.name+":error:"+err.Error())
}

func TestHookChain_CallsInOrder(t *testing.T) {
	var log []string
	chain := gemini.NewHookChain(namedHook{name: "a", log: &log})
	chain.Add(namedHook{name: "b", log: &log})
	assert.Equal(t, 2, chain.Len())

	ctx := context.Background()
	chain.BeforeFunctionCall(ctx, gemini.FunctionCall{Name: "f"})
	chain.OnError(ctx, errors.New("x"), gemini.RunSnapshot{})

	// Methods the hooks do not override fall through to NoOpHook.
	chain.BeforeGenerate(ctx, "m", &gemini.GenerateContentRequest{}, 0)
	chain.AfterGenerate(ctx, nil, 0, time.Millisecond)
	chain.AfterFunctionCall(ctx, gemini.FunctionCall{}, json.RawMessage(`1`), nil, 0)
	chain.OnComplete(ctx, nil, gemini.RunSnapshot{})
	chain.OnStateChange(gemini.StateAwaitingModel, gemini.StateInspecting, gemini.RunSnapshot{})

	assert.Equal(t, []string{"a:before:f", "b:before:f", "a:error:x", "b:error:x"}, log)
}

func TestHookChain_Empty(t *testing.T) {
	chain := gemini.NewHookChain()
	assert.Equal(t, 0, chain.Len())
	chain.OnComplete(context.Background(), nil, gemini.RunSnapshot{})
}
