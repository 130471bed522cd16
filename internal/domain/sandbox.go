package domain

import (
	"context"
	"fmt"
	"time"
)

// Kind selects the evaluator variant a runner hosts.
type Kind string

const (
	// KindFrame evaluates tests against a hosted HTML document.
	KindFrame Kind = "frame"
	// KindWorker evaluates plain JavaScript on a background thread.
	KindWorker Kind = "worker"
	// KindPython evaluates Python learner code with JavaScript test harnesses.
	KindPython Kind = "python"
)

// ParseKind validates a user-supplied runner type.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindFrame, KindWorker, KindPython:
		return k, nil
	}
	return "", fmt.Errorf("unknown runner type %q", s)
}

// Code carries the learner's original source as the tests see it.
type Code struct {
	Contents         string `json:"contents" msgpack:"contents"`
	EditableContents string `json:"editableContents,omitempty" msgpack:"editableContents,omitempty"`
}

// Hooks are snippets run around the learner source.
type Hooks struct {
	BeforeAll string `json:"beforeAll,omitempty" msgpack:"beforeAll,omitempty"`
}

// InitOptions configures one lifetime of an evaluator.
// A second init discards everything built from the previous options.
type InitOptions struct {
	Code       Code   `json:"code" msgpack:"code"`
	Source     string `json:"source" msgpack:"source"`
	Hooks      Hooks  `json:"hooks,omitempty" msgpack:"hooks,omitempty"`
	LoadEnzyme bool   `json:"loadEnzyme,omitempty" msgpack:"loadEnzyme,omitempty"`
}

// CreateRequest is what a caller hands the sandbox controller.
type CreateRequest struct {
	Type Kind `json:"type"`
	// AssetPath overrides where evaluator scripts are loaded from.
	AssetPath string `json:"assetPath,omitempty"`
	InitOptions
}

// Failure describes why a test did not pass.
type Failure struct {
	Message  string `json:"message" msgpack:"message"`
	Stack    string `json:"stack,omitempty" msgpack:"stack,omitempty"`
	Expected any    `json:"expected,omitempty" msgpack:"expected,omitempty"`
	Actual   any    `json:"actual,omitempty" msgpack:"actual,omitempty"`
	// Type is the error class raised by the secondary runtime, e.g. NameError.
	Type string `json:"type,omitempty" msgpack:"type,omitempty"`
}

// Verdict is the outcome of exactly one test.
type Verdict struct {
	Pass bool     `json:"pass,omitempty" msgpack:"pass,omitempty"`
	Fail *Failure `json:"fail,omitempty" msgpack:"fail,omitempty"`
}

// Passed returns the passing verdict.
func Passed() Verdict { return Verdict{Pass: true} }

// Failed builds a failing verdict with only a message.
func Failed(message string) Verdict {
	return Verdict{Fail: &Failure{Message: message}}
}

// Outcome is a short label for logs and metrics.
func (v Verdict) Outcome() string {
	if v.Pass {
		return "pass"
	}
	return "fail"
}

// Evaluator is the sandbox-side half of the protocol. It can be driven
// directly or through the message loop.
type Evaluator interface {
	// Init rebuilds the execution scope from scratch.
	Init(ctx context.Context, opts InitOptions) error

	// RunTest executes one test against the current scope. It never fails;
	// every outcome is reported as a Verdict.
	RunTest(ctx context.Context, test string) Verdict
}

// TestRunner is the host-side owner of one isolated context.
type TestRunner interface {
	Init(ctx context.Context, opts InitOptions) error
	// RunTest sends one test and waits for its verdict. A zero timeout
	// selects the runner default.
	RunTest(ctx context.Context, test string, timeout time.Duration) (Verdict, error)
	Dispose()
}

// Sandbox hands out runners, keeping at most one of them alive.
type Sandbox interface {
	CreateRunner(ctx context.Context, req CreateRequest) (TestRunner, error)
	Close()
}
