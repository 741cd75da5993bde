package gemini

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RunState is a state of one function-calling exchange.
type RunState string

const (
	StateAwaitingModel RunState = "awaiting_model" // about to call the model
	StateInspecting    RunState = "inspecting"     // have a response, deciding
	StateInvoking      RunState = "invoking"       // running a local handler
	StateDone          RunState = "done"           // returned a response
	StateFailed        RunState = "failed"         // returned an error
)

// validTransitions: key = from, value = allowed targets.
var validTransitions = map[RunState]map[RunState]bool{
	StateAwaitingModel: {
		StateInspecting: true,
		StateFailed:     true,
	},
	StateInspecting: {
		StateDone:     true,
		StateInvoking: true,
		StateFailed:   true,
	},
	StateInvoking: {
		StateAwaitingModel: true,
		StateFailed:        true,
	},
	StateDone:   {},
	StateFailed: {},
}

// RunSnapshot captures an exchange at one point in time.
type RunSnapshot struct {
	ExchangeID    string        `json:"exchange_id"`
	State         RunState      `json:"state"`
	Round         int           `json:"round"`
	MaxRounds     int           `json:"max_rounds"` // 0 = unlimited
	ModelCalls    int           `json:"model_calls"`
	FunctionCalls int           `json:"function_calls"`
	TokensUsed    int           `json:"tokens_used"`
	LastFunction  string        `json:"last_function,omitempty"`
	Model         string        `json:"model,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
}

// StateMachine tracks one exchange. Safe for concurrent reads.
type StateMachine struct {
	mu            sync.RWMutex
	exchangeID    string
	state         RunState
	round         int
	maxRounds     int
	modelCalls    int
	functionCalls int
	tokensUsed    int
	lastFunction  string
	model         string
	startTime     time.Time
	logger        *zap.Logger

	listeners []func(from, to RunState, snap RunSnapshot)
}

// NewStateMachine starts in AwaitingModel.
func NewStateMachine(exchangeID, model string, maxRounds int, logger *zap.Logger) *StateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateMachine{
		exchangeID: exchangeID,
		state:      StateAwaitingModel,
		maxRounds:  maxRounds,
		model:      model,
		startTime:  time.Now(),
		logger:     logger,
	}
}

func (sm *StateMachine) State() RunState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

func (sm *StateMachine) Snapshot() RunSnapshot {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.snapshotLocked()
}

func (sm *StateMachine) snapshotLocked() RunSnapshot {
	return RunSnapshot{
		ExchangeID:    sm.exchangeID,
		State:         sm.state,
		Round:         sm.round,
		MaxRounds:     sm.maxRounds,
		ModelCalls:    sm.modelCalls,
		FunctionCalls: sm.functionCalls,
		TokensUsed:    sm.tokensUsed,
		LastFunction:  sm.lastFunction,
		Model:         sm.model,
		Elapsed:       time.Since(sm.startTime),
	}
}

// Transition moves to a new state, or returns an error if the move is not
// in the transition table.
func (sm *StateMachine) Transition(to RunState) error {
	sm.mu.Lock()
	from := sm.state

	if !validTransitions[from][to] {
		sm.mu.Unlock()
		err := fmt.Errorf("invalid state transition: %s -> %s", from, to)
		sm.logger.Error("State machine violation", zap.Error(err))
		return err
	}

	sm.state = to
	if from == StateInvoking && to == StateAwaitingModel {
		sm.round++
	}
	snap := sm.snapshotLocked()
	listeners := make([]func(from, to RunState, snap RunSnapshot), len(sm.listeners))
	copy(listeners, sm.listeners)
	sm.mu.Unlock()

	sm.logger.Debug("State transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("round", snap.Round),
	)

	// Listeners run outside the lock.
	for _, fn := range listeners {
		fn(from, to, snap)
	}
	return nil
}

// OnTransition registers a listener called after every state change.
func (sm *StateMachine) OnTransition(fn func(from, to RunState, snap RunSnapshot)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, fn)
}

// RecordModelCall counts a model response and its token usage.
func (sm *StateMachine) RecordModelCall(resp *GenerateContentResponse) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.modelCalls++
	if resp != nil {
		sm.tokensUsed += resp.UsageMetadata.Total()
	}
}

// RecordFunctionCall counts a handler invocation.
func (sm *StateMachine) RecordFunctionCall(name string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.functionCalls++
	sm.lastFunction = name
}

func (sm *StateMachine) IsTerminal() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state == StateDone || sm.state == StateFailed
}
