package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dontdude/testbox/internal/domain"
	"github.com/dontdude/testbox/internal/isolate"
)

// Controller hands out runners over one host. Only one lane is live at a
// time: creating a runner disposes the previous one whatever its type.
type Controller struct {
	host   *isolate.Host
	base   Config
	logger *slog.Logger

	// opMu is held across CreateRunner so concurrent callers cannot both
	// leave a live context behind.
	opMu sync.Mutex

	mu      sync.Mutex
	runners map[string]*Runner
	active  *Runner
}

var _ domain.Sandbox = (*Controller)(nil)

// NewController returns a controller whose runners start from base. The
// Kind and AssetPath of base are overridden per request.
func NewController(host *isolate.Host, base Config) *Controller {
	logger := base.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base.Logger = logger
	return &Controller{
		host:    host,
		base:    base,
		logger:  logger,
		runners: make(map[string]*Runner),
	}
}

// CreateRunner disposes the active runner, then initializes and returns a
// runner of the requested type.
func (c *Controller) CreateRunner(ctx context.Context, req domain.CreateRequest) (domain.TestRunner, error) {
	kind, err := domain.ParseKind(string(req.Type))
	if err != nil {
		return nil, err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.active != nil {
		c.active.Dispose()
		c.active = nil
	}

	cfg := c.base
	cfg.Kind = kind
	if req.AssetPath != "" {
		cfg.AssetPath = req.AssetPath
	}
	key := string(kind) + "|" + ScriptURL(cfg.AssetPath, "")

	r, ok := c.runners[key]
	if !ok {
		r, err = New(c.host, cfg)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		c.runners[key] = r
	}
	c.active = r
	c.mu.Unlock()

	c.logger.Info("Creating runner", "type", kind, "script", r.script)
	if err := r.Init(ctx, req.InitOptions); err != nil {
		return nil, fmt.Errorf("failed to init %s runner: %w", kind, err)
	}
	return r, nil
}

// Active returns the live runner, if any.
func (c *Controller) Active() (*Runner, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.active != nil
}

// Close disposes every runner the controller created.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.runners {
		r.Dispose()
	}
	c.active = nil
}
