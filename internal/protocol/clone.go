package protocol

import (
	"fmt"
	"reflect"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

type ref struct {
	ptr uintptr
	typ reflect.Type
}

// Transportable walks v the way a structured clone would and reports the
// first value that cannot be copied.
func Transportable(v any) error {
	return walk(reflect.ValueOf(v), "value", make(map[ref]bool))
}

func walk(v reflect.Value, path string, stack map[ref]bool) error {
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil

	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return walk(v.Elem(), path, stack)

	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return enter(v, path, stack, func() error {
			return walk(v.Elem(), path, stack)
		})

	case reflect.Slice:
		if v.IsNil() || v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		return enter(v, path, stack, func() error {
			return walkElems(v, path, stack)
		})

	case reflect.Array:
		return walkElems(v, path, stack)

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		return enter(v, path, stack, func() error {
			iter := v.MapRange()
			for iter.Next() {
				key := fmt.Sprint(iter.Key().Interface())
				if err := walk(iter.Key(), path+"."+key, stack); err != nil {
					return err
				}
				if err := walk(iter.Value(), path+"."+key, stack); err != nil {
					return err
				}
			}
			return nil
		})

	case reflect.Struct:
		if v.Type() == timeType {
			return nil
		}
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				return fmt.Errorf("%w: opaque %s at %s", ErrNotTransportable, t, path)
			}
			if err := walk(v.Field(i), path+"."+f.Name, stack); err != nil {
				return err
			}
		}
		return nil
	}

	return fmt.Errorf("%w: %s at %s", ErrNotTransportable, v.Kind(), path)
}

func walkElems(v reflect.Value, path string, stack map[ref]bool) error {
	for i := 0; i < v.Len(); i++ {
		if err := walk(v.Index(i), fmt.Sprintf("%s[%d]", path, i), stack); err != nil {
			return err
		}
	}
	return nil
}

// enter marks v as being on the current path while fn runs, so a reference
// back to it is reported as a cycle. Shared but acyclic references are fine.
func enter(v reflect.Value, path string, stack map[ref]bool, fn func() error) error {
	r := ref{ptr: v.Pointer(), typ: v.Type()}
	if r.ptr == 0 {
		return fn()
	}
	if stack[r] {
		return fmt.Errorf("%w: cycle at %s", ErrNotTransportable, path)
	}
	stack[r] = true
	defer delete(stack, r)
	return fn()
}
