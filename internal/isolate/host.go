// Package isolate provides isolated execution contexts: goroutine-owned
// programs that share nothing with their host and talk to it only through
// encoded messages.
package isolate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"github.com/google/uuid"
)

// Tag describes which isolation primitive a context stands for.
type Tag string

const (
	TagDocument  Tag = "embedded-document"
	TagThread    Tag = "background-thread"
	TagSecondary Tag = "secondary-runtime"
)

var (
	// ErrDisposed is returned when posting to or loading a destroyed context.
	ErrDisposed = errors.New("isolated context disposed")
	// ErrUnknownProgram is returned by Load for an unregistered locator.
	ErrUnknownProgram = errors.New("unknown evaluator program")
)

// Message is an encoded envelope together with the identity of whoever
// posted it. Source is stamped by the transport and cannot be chosen by the
// sender.
type Message struct {
	Source string
	Data   []byte
}

// Program is the code loaded into a context. It runs until ctx is done.
type Program func(ctx context.Context, port *Port)

// Host plays the part of the embedding page: it creates contexts, loads
// programs into them and receives everything they post back.
type Host struct {
	id       string
	logger   *slog.Logger
	programs map[string]Program

	mu       sync.RWMutex
	contexts map[string]*Context
	subs     map[int]*subscriber
	nextSub  int
}

type subscriber struct {
	ch   chan Message
	done chan struct{}
}

// NewHost returns a host with the given program registry, keyed by script
// name (e.g. "worker-test-evaluator.js").
func NewHost(programs map[string]Program, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	reg := make(map[string]Program, len(programs))
	for name, p := range programs {
		reg[name] = p
	}
	return &Host{
		id:       uuid.New().String(),
		logger:   logger,
		programs: reg,
		contexts: make(map[string]*Context),
		subs:     make(map[int]*subscriber),
	}
}

// ID identifies the host as a message source.
func (h *Host) ID() string { return h.id }

// Register adds or replaces a program.
func (h *Host) Register(name string, p Program) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.programs[name] = p
}

// Create allocates an empty context. Nothing runs in it until Load.
func (h *Host) Create(tag Tag) *Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Context{
		id:     uuid.New().String(),
		tag:    tag,
		host:   h,
		inbox:  make(chan Message, 16),
		ctx:    ctx,
		cancel: cancel,
		loaded: make(chan struct{}),
	}

	h.mu.Lock()
	h.contexts[c.id] = c
	h.mu.Unlock()

	h.logger.Debug("Isolated context created", "contextID", c.id, "tag", tag)
	return c
}

// Load starts the program named by locator inside c and waits for the
// context to signal that it finished loading. Only the last path segment of
// the locator selects the program, so asset prefixes are free to change.
func (h *Host) Load(ctx context.Context, c *Context, locator string) error {
	name := path.Base(locator)

	h.mu.RLock()
	program, ok := h.programs[name]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, locator)
	}

	select {
	case <-c.ctx.Done():
		return ErrDisposed
	default:
	}

	go c.run(program, h.logger)

	select {
	case <-c.loaded:
		return nil
	case <-c.ctx.Done():
		return ErrDisposed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns every message posted to the host from now on. The
// returned cancel func must be called to release the subscription.
func (h *Host) Subscribe() (<-chan Message, func()) {
	sub := &subscriber{
		ch:   make(chan Message, 16),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.done)
		})
	}
}

// Live returns how many contexts have been created and not disposed.
func (h *Host) Live() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.contexts)
}

// Lookup finds a live context by id.
func (h *Host) Lookup(id string) (*Context, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.contexts[id]
	return c, ok
}

func (h *Host) deliver(msg Message) {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.ch <- msg:
		case <-s.done:
		}
	}
}

func (h *Host) forget(id string) {
	h.mu.Lock()
	delete(h.contexts, id)
	h.mu.Unlock()
}
