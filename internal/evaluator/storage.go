package evaluator

import (
	"github.com/dop251/goja"
)

// memoryStorage backs the localStorage a hosted document gets. Real storage
// is out of reach from an isolated context, so pages see an in-memory
// stand-in that lives as long as the document.
type memoryStorage struct {
	keys   []string
	values map[string]string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{values: make(map[string]string)}
}

func (s *memoryStorage) getItem(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *memoryStorage) setItem(key, value string) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

func (s *memoryStorage) removeItem(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

func (s *memoryStorage) clear() {
	s.keys = nil
	s.values = make(map[string]string)
}

func (s *memoryStorage) key(i int) (string, bool) {
	if i < 0 || i >= len(s.keys) {
		return "", false
	}
	return s.keys[i], true
}

// object exposes the storage with the Web Storage method set.
func (s *memoryStorage) object(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("getItem", func(key string) goja.Value {
		if v, ok := s.getItem(key); ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})
	_ = obj.Set("setItem", func(call goja.FunctionCall) goja.Value {
		s.setItem(call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	_ = obj.Set("removeItem", func(key string) { s.removeItem(key) })
	_ = obj.Set("clear", func() { s.clear() })
	_ = obj.Set("key", func(i int) goja.Value {
		if k, ok := s.key(i); ok {
			return vm.ToValue(k)
		}
		return goja.Null()
	})
	length := vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(len(s.keys)) })
	_ = obj.DefineAccessorProperty("length", length, nil, goja.FLAG_FALSE, goja.FLAG_FALSE)
	return obj
}
