package evaluator

import (
	"log/slog"

	"github.com/dontdude/testbox/internal/domain"
)

// Normalize turns the outcome of one test into a verdict. A nil Thrown is a
// pass.
//
// Expected and actual are copied only when truthy, so an assertion about
// 0, "", false or null reports neither field. Callers rely on this shape.
//
// Anything that is not an assertion failure is also logged, since it usually
// points at a broken test or learner code rather than a wrong answer.
func Normalize(t *Thrown, logger *slog.Logger) domain.Verdict {
	if t == nil {
		return domain.Passed()
	}

	if !t.Assertion {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("Test raised a non-assertion error", "message", t.Message, "type", t.Type, "stack", t.Stack)
	}

	f := &domain.Failure{
		Message: t.Message,
		Stack:   t.Stack,
		Type:    t.Type,
	}
	if truthy(t.Expected) {
		f.Expected = t.Expected
	}
	if truthy(t.Actual) {
		f.Actual = t.Actual
	}
	return domain.Verdict{Fail: f}
}
