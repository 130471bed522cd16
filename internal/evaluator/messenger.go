package evaluator

import (
	"context"
	"log/slog"

	"github.com/dontdude/testbox/internal/domain"
	"github.com/dontdude/testbox/internal/isolate"
	"github.com/dontdude/testbox/internal/protocol"
)

// Serve runs the sandbox side of the protocol for ev until the context is
// disposed. Only messages from the host that created the context are
// acted upon; siblings can reach the inbox too and are ignored.
func Serve(ctx context.Context, port *isolate.Port, ev domain.Evaluator, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("contextID", port.Self())
	if c, ok := ev.(interface{ Close() }); ok {
		defer c.Close()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-port.Messages():
			if msg.Source != port.Parent() {
				logger.Warn("Ignoring message from unexpected source", "source", msg.Source)
				continue
			}
			env, err := protocol.Decode(msg.Data)
			if err != nil {
				logger.Debug("Dropping undecodable message", "error", err)
				continue
			}
			handle(ctx, port, ev, env, logger)
		}
	}
}

func handle(ctx context.Context, port *isolate.Port, ev domain.Evaluator, env protocol.Envelope, logger *slog.Logger) {
	switch env.Type {
	case protocol.TypeInit:
		var opts domain.InitOptions
		if err := env.Bind(&opts); err != nil {
			logger.Error("Malformed init options", "error", err)
			port.Close()
			return
		}
		// No ready on failure. Closing the context lets the runner reject
		// at once instead of waiting out its init timeout.
		if err := ev.Init(ctx, opts); err != nil {
			logger.Error("Evaluator init failed", "error", err)
			port.Close()
			return
		}
		if err := port.Post(protocol.TypeReady, map[string]any{}); err != nil {
			logger.Warn("Failed to post ready", "error", err)
		}

	case protocol.TypeTest:
		var test string
		var verdict domain.Verdict
		if err := env.Bind(&test); err != nil {
			logger.Error("Malformed test", "error", err)
			verdict = domain.Failed("malformed test: " + err.Error())
		} else {
			verdict = ev.RunTest(ctx, test)
		}
		if err := sendResult(port, verdict); err != nil {
			logger.Warn("Failed to post result", "error", err)
		}

	default:
		logger.Debug("Ignoring message", "type", env.Type)
	}
}
