package evaluator

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"

	"github.com/dontdude/testbox/internal/pyrt"
	"github.com/dop251/goja"
)

// Thrown is whatever a test raised, copied out of the runtime so it can be
// inspected without the runtime's goroutine.
type Thrown struct {
	Message  string
	Stack    string
	Expected any
	Actual   any
	// Type is the secondary runtime error class, when there is one.
	Type string
	// Assertion is set for structured comparison failures.
	Assertion bool
}

// opaque stands in for values that have no portable form, such as
// functions and back references. It deliberately fails the transport check
// so the guard falls back to its string form.
type opaque struct {
	repr string
}

func (o opaque) String() string { return o.repr }

func (o opaque) MarshalJSON() ([]byte, error) { return json.Marshal(o.repr) }

func thrownFromError(vm *goja.Runtime, err error) *Thrown {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return thrownFromValue(vm, ex.Value(), ex)
	}

	var pe *pyrt.Error
	if errors.As(err, &pe) {
		return &Thrown{Message: pe.Message, Stack: pe.Traceback, Type: pe.Type}
	}

	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		return &Thrown{Message: ie.String(), Stack: ie.Error()}
	}
	return &Thrown{Message: err.Error()}
}

// thrownFromValue reads message, stack, expected and actual off a thrown
// value. ex, when known, provides a stack for values that carry none.
func thrownFromValue(vm *goja.Runtime, v goja.Value, ex *goja.Exception) *Thrown {
	t := &Thrown{}
	if ex != nil {
		t.Stack = ex.String()
	}

	if v == nil {
		t.Message = "undefined"
		return t
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		t.Message = v.String()
		return t
	}

	if msg := obj.Get("message"); defined(msg) {
		t.Message = msg.String()
	} else {
		t.Message = v.String()
	}
	if stack := obj.Get("stack"); defined(stack) && stack.String() != "" {
		t.Stack = stack.String()
	}
	if name := obj.Get("name"); defined(name) && name.String() == "AssertionError" {
		t.Assertion = true
	}
	if typ := obj.Get("type"); defined(typ) {
		t.Type = typ.String()
	}
	if expected := obj.Get("expected"); expected != nil {
		t.Expected = exportValue(vm, expected, nil)
	}
	if actual := obj.Get("actual"); actual != nil {
		t.Actual = exportValue(vm, actual, nil)
	}
	return t
}

func defined(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}

// exportValue converts a runtime value into plain Go data. Functions and
// cycles become opaque placeholders, symbols are kept as is.
func exportValue(vm *goja.Runtime, v goja.Value, seen map[*goja.Object]bool) any {
	if !defined(v) {
		return nil
	}
	if sym, ok := v.(*goja.Symbol); ok {
		return sym
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return v.Export()
	}

	if _, isFn := goja.AssertFunction(obj); isFn {
		name := obj.Get("name")
		if defined(name) && name.String() != "" {
			return opaque{repr: "[Function: " + name.String() + "]"}
		}
		return opaque{repr: "[Function]"}
	}

	if seen == nil {
		seen = make(map[*goja.Object]bool)
	}
	if seen[obj] {
		return opaque{repr: "[Circular]"}
	}
	seen[obj] = true
	defer delete(seen, obj)

	switch obj.ClassName() {
	case "Array":
		n := int(obj.Get("length").ToInteger())
		out := make([]any, n)
		for i := range out {
			out[i] = exportValue(vm, obj.Get(strconv.Itoa(i)), seen)
		}
		return out
	case "Date", "RegExp", "Error":
		return v.String()
	}

	out := make(map[string]any)
	for _, k := range obj.Keys() {
		out[k] = exportValue(vm, obj.Get(k), seen)
	}
	return out
}

// truthy mirrors JavaScript truthiness for exported values.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int64:
		return x != 0
	case int:
		return x != 0
	case float64:
		return x != 0 && !math.IsNaN(x)
	}
	return true
}
