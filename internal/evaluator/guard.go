package evaluator

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dontdude/testbox/internal/domain"
	"github.com/dontdude/testbox/internal/protocol"
	"github.com/dop251/goja"
)

type poster interface {
	Post(t protocol.Type, v any) error
}

// sendResult posts a verdict to the host. If expected or actual cannot be
// cloned, both are replaced by their string forms and the verdict is posted
// again. Message and stack are left alone.
func sendResult(p poster, v domain.Verdict) error {
	err := p.Post(protocol.TypeResult, v)
	if err == nil || v.Fail == nil || !errors.Is(err, protocol.ErrNotTransportable) {
		return err
	}

	f := *v.Fail
	f.Expected = stringify(f.Expected)
	f.Actual = stringify(f.Actual)
	return p.Post(protocol.TypeResult, domain.Verdict{Fail: &f})
}

// stringify renders a symbol by its description and anything else as JSON.
// A missing value stays missing.
func stringify(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case *goja.Symbol:
		return x.String()
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("[%T]", v)
	}
	return string(b)
}
