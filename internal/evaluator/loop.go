package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
)

var errLoopStopped = errors.New("javascript loop stopped")

// jsLoop owns one goja runtime and the event loop that drives its timers
// and promise jobs. Everything touching the runtime goes through do.
type jsLoop struct {
	loop    *eventloop.EventLoop
	vm      *goja.Runtime
	stopped chan struct{}
	once    sync.Once
}

func newLoop() *jsLoop {
	l := &jsLoop{
		loop:    eventloop.NewEventLoop(eventloop.EnableConsole(false)),
		stopped: make(chan struct{}),
	}
	l.loop.Start()

	ready := make(chan struct{})
	l.loop.RunOnLoop(func(vm *goja.Runtime) {
		l.vm = vm
		close(ready)
	})
	<-ready
	return l
}

// do runs fn on the loop goroutine and waits for it to return. A panic in
// fn is reported as an error instead of taking the loop down. An interrupt
// left over from an abandoned call is cleared first.
func (l *jsLoop) do(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	done := make(chan error, 1)
	l.loop.RunOnLoop(func(vm *goja.Runtime) {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("javascript loop panic: %v", r)
			}
		}()
		select {
		case <-l.stopped:
			done <- errLoopStopped
			return
		default:
		}
		vm.ClearInterrupt()
		done <- fn(vm)
	})

	select {
	case err := <-done:
		return err
	case <-l.stopped:
		return errLoopStopped
	case <-ctx.Done():
		l.vm.Interrupt(ctx.Err())
		return ctx.Err()
	}
}

// settle runs produce on the loop. When it yields a promise, settle waits for
// the promise to resolve or reject. The returned Thrown is nil on success.
func (l *jsLoop) settle(ctx context.Context, produce func(vm *goja.Runtime) (goja.Value, error)) (*Thrown, error) {
	res := make(chan *Thrown, 1)

	err := l.do(ctx, func(vm *goja.Runtime) error {
		v, err := produce(vm)
		if err != nil {
			res <- thrownFromError(vm, err)
			return nil
		}

		p, ok := promiseOf(v)
		if !ok {
			res <- nil
			return nil
		}

		switch p.State() {
		case goja.PromiseStateFulfilled:
			res <- nil
		case goja.PromiseStateRejected:
			res <- thrownFromValue(vm, p.Result(), nil)
		default:
			obj := v.ToObject(vm)
			then, _ := goja.AssertFunction(obj.Get("then"))
			onFulfilled := vm.ToValue(func(goja.FunctionCall) goja.Value {
				res <- nil
				return goja.Undefined()
			})
			onRejected := vm.ToValue(func(call goja.FunctionCall) goja.Value {
				res <- thrownFromValue(vm, call.Argument(0), nil)
				return goja.Undefined()
			})
			if _, err := then(obj, onFulfilled, onRejected); err != nil {
				res <- thrownFromError(vm, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	select {
	case t := <-res:
		return t, nil
	case <-l.stopped:
		return nil, errLoopStopped
	case <-ctx.Done():
		l.vm.Interrupt(ctx.Err())
		return nil, ctx.Err()
	}
}

// interrupt aborts whatever JavaScript is running right now.
func (l *jsLoop) interrupt(reason any) {
	l.vm.Interrupt(reason)
}

// stop interrupts the runtime and shuts the loop down without waiting for
// pending timers.
func (l *jsLoop) stop() {
	l.once.Do(func() {
		close(l.stopped)
		l.vm.Interrupt("sandbox disposed")
		l.loop.StopNoWait()
	})
}

func promiseOf(v goja.Value) (*goja.Promise, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	p, ok := v.Export().(*goja.Promise)
	return p, ok
}
