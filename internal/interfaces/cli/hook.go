package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ngoclaw/gemini-go/pkg/gemini"
)

// PrintHook writes one line per function call to w as the exchange runs.
type PrintHook struct {
	gemini.NoOpHook

	mu       sync.Mutex
	w        io.Writer
	renderer *Renderer
}

var _ gemini.Hook = (*PrintHook)(nil)

func NewPrintHook(w io.Writer, renderer *Renderer) *PrintHook {
	return &PrintHook{w: w, renderer: renderer}
}

func (h *PrintHook) BeforeFunctionCall(_ context.Context, call gemini.FunctionCall) {
	h.println(h.renderer.RenderFunctionCall(call))
}

func (h *PrintHook) AfterFunctionCall(_ context.Context, call gemini.FunctionCall, _ json.RawMessage, err error, elapsed time.Duration) {
	h.println(h.renderer.RenderFunctionResult(call.Name, err, elapsed))
}

func (h *PrintHook) println(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintln(h.w, line)
}
