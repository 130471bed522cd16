package evaluator

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/dop251/goja"
)

// Scope is everything a test can see besides the learner's own globals.
type Scope struct {
	// Code is the learner's original source, bound read-only as code.
	Code string
	// EditableContents is the editable region, bound read-only as editableContents.
	EditableContents string
	// Extra holds evaluator specific bindings, installed last.
	Extra map[string]any
}

// executor is the single way text becomes code inside a scope.
type executor struct {
	vm   *goja.Runtime
	eval goja.Callable
}

// install builds the scope into a fresh runtime.
func (s Scope) install(vm *goja.Runtime, logger *slog.Logger) (*executor, error) {
	vm.Set("__log", consoleBridge(logger))
	if _, err := vm.RunProgram(preludeProgram); err != nil {
		return nil, fmt.Errorf("failed to install assertions: %w", err)
	}

	if err := vm.Set("__helpers", curriculumHelpers(vm)); err != nil {
		return nil, fmt.Errorf("failed to install helpers: %w", err)
	}
	if _, err := vm.RunString("Object.freeze(__helpers)"); err != nil {
		return nil, fmt.Errorf("failed to freeze helpers: %w", err)
	}

	global := vm.GlobalObject()
	for name, value := range map[string]string{
		"code":             s.Code,
		"editableContents": s.EditableContents,
	} {
		if err := global.DefineDataProperty(name, vm.ToValue(value), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}

	for name, value := range s.Extra {
		if err := vm.Set(name, value); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}

	eval, ok := goja.AssertFunction(vm.Get("eval"))
	if !ok {
		return nil, fmt.Errorf("runtime has no eval")
	}
	return &executor{vm: vm, eval: eval}, nil
}

// script runs code at global level, so its declarations stay visible to
// later code. Used for learner source, hooks and inline scripts.
func (e *executor) script(name, src string) (goja.Value, error) {
	return e.vm.RunScript(name, src)
}

// program runs precompiled learner source.
func (e *executor) program(p *goja.Program) (goja.Value, error) {
	return e.vm.RunProgram(p)
}

// expr evaluates test code through an indirect eval. Declarations made by
// the test stay local to it and never collide with the learner's.
func (e *executor) expr(src string) (goja.Value, error) {
	return e.eval(goja.Undefined(), e.vm.ToValue(src))
}

func consoleBridge(logger *slog.Logger) func(level, msg string) {
	return func(level, msg string) {
		switch level {
		case "error":
			logger.Warn("console.error", "output", msg)
		case "warn":
			logger.Info("console.warn", "output", msg)
		default:
			logger.Debug("console."+level, "output", msg)
		}
	}
}

var (
	whiteSpace   = regexp.MustCompile(`\s`)
	jsComments   = regexp.MustCompile(`(?s)/\*.*?\*/|//[^\n]*`)
	htmlComments = regexp.MustCompile(`(?s)<!--.*?-->`)
	cssComments  = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

func curriculumHelpers(vm *goja.Runtime) *goja.Object {
	h := vm.NewObject()
	_ = h.Set("removeWhiteSpace", func(s string) string {
		return whiteSpace.ReplaceAllString(s, "")
	})
	_ = h.Set("removeJSComments", func(s string) string {
		return jsComments.ReplaceAllString(s, "")
	})
	_ = h.Set("removeHtmlComments", func(s string) string {
		return htmlComments.ReplaceAllString(s, "")
	})
	_ = h.Set("removeCssComments", func(s string) string {
		return cssComments.ReplaceAllString(s, "")
	})
	return h
}
