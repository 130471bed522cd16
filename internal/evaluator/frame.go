package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/dontdude/testbox/internal/domain"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"
)

var errNoAssets = errors.New("no asset loader configured")

// Frame evaluates tests against a hosted HTML document. Unlike JavaScript,
// one runtime lives for the whole init: the page's scripts run once and
// every test sees the state they left behind.
type Frame struct {
	logger *slog.Logger
	assets AssetLoader

	mu    sync.Mutex
	loop  *jsLoop
	exec  *executor
	ready chan struct{}
}

var _ domain.Evaluator = (*Frame)(nil)

// NewFrame returns a document evaluator. assets may be nil when Enzyme is
// never requested.
func NewFrame(assets AssetLoader, logger *slog.Logger) *Frame {
	if logger == nil {
		logger = slog.Default()
	}
	return &Frame{assets: assets, logger: logger.With("evaluator", domain.KindFrame)}
}

// Init replaces any previous document with opts.Source and runs it.
func (e *Frame) Init(ctx context.Context, opts domain.InitOptions) error {
	ready := make(chan struct{})
	e.mu.Lock()
	old := e.loop
	e.loop, e.exec, e.ready = nil, nil, ready
	e.mu.Unlock()
	if old != nil {
		old.stop()
	}
	defer close(ready)

	if opts.LoadEnzyme && e.assets == nil {
		return errNoAssets
	}

	// 1. Parse the document and fetch inspection bundles side by side.
	g, gctx := errgroup.WithContext(ctx)
	var doc *goquery.Document
	g.Go(func() error {
		var err error
		if doc, err = parseDocument(opts.Source); err != nil {
			return fmt.Errorf("failed to parse document: %w", err)
		}
		return nil
	})
	var bundle *enzymeBundle
	if opts.LoadEnzyme {
		bundle = &enzymeBundle{}
		bundle.fetch(gctx, g, e.assets)
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// 2. Build the scope and run the page inside a fresh loop.
	loop := newLoop()
	var exec *executor
	err := loop.do(ctx, func(vm *goja.Runtime) error {
		var err error
		exec, err = e.build(vm, doc, opts, bundle)
		return err
	})
	if err != nil {
		loop.stop()
		return err
	}

	e.mu.Lock()
	if e.ready != ready {
		// A newer Init took over while this one was running.
		e.mu.Unlock()
		loop.stop()
		return context.Canceled
	}
	e.loop, e.exec = loop, exec
	e.mu.Unlock()
	return nil
}

func (e *Frame) build(vm *goja.Runtime, doc *goquery.Document, opts domain.InitOptions, bundle *enzymeBundle) (*executor, error) {
	dom := newDocument(vm, doc, e.logger)
	storage := newMemoryStorage()

	scope := Scope{
		Code:             opts.Code.Contents,
		EditableContents: opts.Code.EditableContents,
		Extra: map[string]any{
			"localStorage":                storage.object(vm),
			"__checkForBrowserExtensions": true,
		},
	}
	exec, err := scope.install(vm, e.logger)
	if err != nil {
		return nil, err
	}

	dom.install()
	if _, err := vm.RunProgram(domPreludeProgram); err != nil {
		return nil, fmt.Errorf("failed to install $: %w", err)
	}
	if err := vm.Set("__testEditable", testEditable(vm, dom, opts.Code.EditableContents)); err != nil {
		return nil, fmt.Errorf("failed to bind __testEditable: %w", err)
	}

	if bundle != nil {
		if err := bundle.install(exec); err != nil {
			return nil, err
		}
	}

	if hook := opts.Hooks.BeforeAll; hook != "" {
		if _, err := exec.script("before-all.js", hook); err != nil {
			return nil, fmt.Errorf("beforeAll hook failed: %w", err)
		}
	}

	for i, src := range dom.scripts() {
		if _, err := exec.script(fmt.Sprintf("inline-script-%d.js", i), src); err != nil {
			e.logger.Warn("Inline script threw", "index", i, "error", err)
		}
	}
	dom.loaded()
	return exec, nil
}

// RunTest evaluates test once the document is ready. A test that evaluates
// to a function is called, and a promise from either step is awaited.
func (e *Frame) RunTest(ctx context.Context, test string) domain.Verdict {
	e.mu.Lock()
	ready := e.ready
	e.mu.Unlock()
	if ready == nil {
		return domain.Failed(errNotInitialized.Error())
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return domain.Failed("test interrupted: " + ctx.Err().Error())
	}

	e.mu.Lock()
	loop, exec := e.loop, e.exec
	e.mu.Unlock()
	if exec == nil {
		return domain.Failed(errNotInitialized.Error())
	}

	thrown, err := loop.settle(ctx, func(vm *goja.Runtime) (goja.Value, error) {
		v, err := exec.expr(test)
		if err != nil {
			return nil, err
		}
		if fn, ok := goja.AssertFunction(v); ok {
			return fn(goja.Undefined())
		}
		return v, nil
	})
	if err != nil {
		return domain.Failed("test interrupted: " + err.Error())
	}
	return Normalize(thrown, e.logger)
}

// Interrupt aborts whatever the document is running.
func (e *Frame) Interrupt(reason any) {
	e.mu.Lock()
	loop := e.loop
	e.mu.Unlock()
	if loop != nil {
		loop.interrupt(reason)
	}
}

// Close stops the document's loop.
func (e *Frame) Close() {
	e.mu.Lock()
	loop := e.loop
	e.loop, e.exec = nil, nil
	e.mu.Unlock()
	if loop != nil {
		loop.stop()
	}
}

// testEditable mounts the editable region alone as #editable-only for the
// duration of cb.
func testEditable(vm *goja.Runtime, dom *document, editable string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		cb, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("__testEditable expects a function"))
		}

		div := &html.Node{
			Type:     html.ElementNode,
			Data:     "div",
			DataAtom: atom.Div,
			Attr:     []html.Attribute{{Key: "id", Val: "editable-only"}},
		}
		dom.setInnerHTML(div, editable)
		parent := dom.body
		if parent == nil {
			parent = dom.root()
		}
		parent.AppendChild(div)
		defer detach(div)

		out, err := cb(goja.Undefined())
		if err != nil {
			var ex *goja.Exception
			if errors.As(err, &ex) {
				panic(ex.Value())
			}
			panic(vm.NewGoError(err))
		}
		return out
	}
}
