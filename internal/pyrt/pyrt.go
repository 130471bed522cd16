// Package pyrt describes the secondary language runtime that Python tests
// run against, and provides an in-process implementation of it.
package pyrt

import (
	"context"
	"fmt"
)

// UserCodePath is where the learner's code is written before every test.
const UserCodePath = "/user_code.py"

// Runtime is a loaded interpreter. Loading one is expensive, so a single
// Runtime serves many tests and each test gets its own Scope.
type Runtime interface {
	// NewScope returns a fresh, empty set of globals.
	NewScope(ctx context.Context) (Scope, error)
	// WriteFile stores data in the runtime's private filesystem.
	WriteFile(ctx context.Context, name, data string) error
	// ReadFile reads back a file written with WriteFile.
	ReadFile(ctx context.Context, name string) (string, error)
	Close() error
}

// Scope is one set of globals.
type Scope interface {
	// Set binds a plain Go value (string, bool, number or a slice of them).
	Set(ctx context.Context, name string, value any) error
	// SetInput replaces input() with a function replaying inputs in order.
	// Once they run out, input() raises StopIteration.
	SetInput(ctx context.Context, inputs []string) error
	// Run executes src against the scope. When src ends with an expression,
	// its value is returned as plain Go data.
	Run(ctx context.Context, src string) (any, error)
	Close() error
}

// Loader produces a Runtime.
type Loader func(ctx context.Context) (Runtime, error)

// Error is an exception raised by code running in a Scope.
type Error struct {
	// Type is the exception class, for example NameError.
	Type      string
	Message   string
	Traceback string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}
