package evaluator

import (
	"context"
	"log/slog"

	"github.com/dontdude/testbox/internal/isolate"
	"github.com/dontdude/testbox/internal/pyrt"
)

// Script names the evaluator programs are loaded by.
const (
	FrameScript  = "frame-test-evaluator.js"
	WorkerScript = "worker-test-evaluator.js"
	PythonScript = "python-test-evaluator.js"
)

// Deps are shared by every evaluator a host loads.
type Deps struct {
	Logger *slog.Logger
	// Assets serves the component inspection bundles. Optional.
	Assets AssetLoader
	// Python loads the secondary runtime. Defaults to Starlark.
	Python pyrt.Loader
}

// Programs returns the evaluator programs keyed by script name. Each load
// gets its own evaluator, so nothing leaks between contexts.
func Programs(deps Deps) map[string]isolate.Program {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	python := deps.Python
	if python == nil {
		python = pyrt.StarlarkLoader(logger)
	}

	return map[string]isolate.Program{
		FrameScript: func(ctx context.Context, port *isolate.Port) {
			Serve(ctx, port, NewFrame(deps.Assets, logger), logger)
		},
		WorkerScript: func(ctx context.Context, port *isolate.Port) {
			Serve(ctx, port, NewJavaScript(logger), logger)
		},
		PythonScript: func(ctx context.Context, port *isolate.Port) {
			Serve(ctx, port, NewPython(python, logger), logger)
		},
	}
}
