// Package safego runs code with panic recovery.
package safego

import (
	"fmt"

	"go.uber.org/zap"
)

// PanicError is returned by Call when fn panics.
type PanicError struct {
	Name  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Name, e.Value)
}

// Go runs fn on a new goroutine. A panic is logged with its stack and the
// goroutine exits without taking the process down.
func Go(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Goroutine panicked",
					zap.String("goroutine", name),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
			}
		}()
		fn()
	}()
}

// Call runs fn on the current goroutine and turns a panic into a
// *PanicError.
func Call(logger *zap.Logger, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Call panicked",
				zap.String("call", name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			err = &PanicError{Name: name, Value: r}
		}
	}()
	return fn()
}
