package isolate

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/dontdude/testbox/internal/protocol"
)

// Context is the host's handle on one isolated execution environment.
type Context struct {
	id   string
	tag  Tag
	host *Host

	inbox  chan Message
	ctx    context.Context
	cancel context.CancelFunc
	loaded chan struct{}

	once sync.Once
}

// ID identifies the context as a message source.
func (c *Context) ID() string { return c.id }

// Tag returns the isolation primitive this context stands for.
func (c *Context) Tag() Tag { return c.tag }

// Done is closed once the context is disposed.
func (c *Context) Done() <-chan struct{} { return c.ctx.Done() }

// Post sends an envelope from the host into the context.
func (c *Context) Post(t protocol.Type, v any) error {
	data, err := protocol.Encode(t, v)
	if err != nil {
		return err
	}
	return c.push(Message{Source: c.host.id, Data: data})
}

// Dispose destroys the context and cancels the program running in it.
// Calling it more than once has no further effect.
func (c *Context) Dispose() {
	c.once.Do(func() {
		c.cancel()
		c.host.forget(c.id)
		c.host.logger.Debug("Isolated context disposed", "contextID", c.id, "tag", c.tag)
	})
}

func (c *Context) push(msg Message) error {
	select {
	case <-c.ctx.Done():
		return ErrDisposed
	default:
	}

	select {
	case c.inbox <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrDisposed
	}
}

func (c *Context) run(program Program, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Evaluator program crashed", "contextID", c.id, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	close(c.loaded)
	program(c.ctx, &Port{c: c})
}

// Port is the program's side of a context.
type Port struct {
	c *Context
}

// Self is the id other parties see as this context's source.
func (p *Port) Self() string { return p.c.id }

// Parent is the id of the host that created this context.
func (p *Port) Parent() string { return p.c.host.id }

// Messages delivers everything posted into the context.
func (p *Port) Messages() <-chan Message { return p.c.inbox }

// Done is closed when the context is disposed.
func (p *Port) Done() <-chan struct{} { return p.c.ctx.Done() }

// Close disposes the context from inside. The host sees Done close and no
// further messages.
func (p *Port) Close() { p.c.Dispose() }

// Post sends an envelope to the host. Encoding errors are returned
// unchanged so callers can react to non-transportable values.
func (p *Port) Post(t protocol.Type, v any) error {
	data, err := protocol.Encode(t, v)
	if err != nil {
		return err
	}
	select {
	case <-p.c.ctx.Done():
		return ErrDisposed
	default:
	}
	p.c.host.deliver(Message{Source: p.c.id, Data: data})
	return nil
}

// PostTo sends an envelope to a sibling context. Any context may do this,
// which is why receivers check the source.
func (p *Port) PostTo(target string, t protocol.Type, v any) error {
	other, ok := p.c.host.Lookup(target)
	if !ok {
		return fmt.Errorf("post to %s: %w", target, ErrDisposed)
	}
	data, err := protocol.Encode(t, v)
	if err != nil {
		return err
	}
	return other.push(Message{Source: p.c.id, Data: data})
}
