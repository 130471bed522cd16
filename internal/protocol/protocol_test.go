package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	Pass bool           `msgpack:"pass,omitempty"`
	Fail map[string]any `msgpack:"fail,omitempty"`
}

func TestEncodeDecodeEnvelope(t *testing.T) {
	data, err := Encode(TypeResult, verdict{Fail: map[string]any{
		"message":  "expected 1 to equal 2",
		"expected": 2,
		"actual":   []any{"a", 1.5},
	}})
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeResult, env.Type)

	var out verdict
	require.NoError(t, env.Bind(&out))
	assert.False(t, out.Pass)
	assert.Equal(t, "expected 1 to equal 2", out.Fail["message"])
	assert.Equal(t, int64(2), out.Fail["expected"])
	assert.Equal(t, []any{"a", 1.5}, out.Fail["actual"])
}

func TestBindEmptyValue(t *testing.T) {
	data, err := Encode(TypeReady, nil)
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)

	var out map[string]any
	assert.NoError(t, env.Bind(&out))
	assert.Nil(t, out)
}

func TestKnownTypes(t *testing.T) {
	for _, typ := range []Type{TypeInit, TypeTest, TypeReady, TypeResult} {
		assert.True(t, typ.Known(), typ)
	}
	assert.False(t, Type("resize").Known())
	assert.False(t, Type("").Known())
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte{0xc1})
	assert.Error(t, err)
}

type handle struct {
	name string
}

func TestTransportableRejects(t *testing.T) {
	cyclic := map[string]any{"name": "root"}
	cyclic["self"] = cyclic

	list := []any{1}
	list[0] = list

	tests := []struct {
		name  string
		value any
	}{
		{"function", map[string]any{"fn": func() {}}},
		{"channel", make(chan int)},
		{"opaque handle", map[string]any{"sym": &handle{name: "s"}}},
		{"complex", complex(1, 2)},
		{"cyclic map", cyclic},
		{"cyclic slice", list},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Transportable(tt.value)
			assert.ErrorIs(t, err, ErrNotTransportable)

			_, err = Encode(TypeResult, tt.value)
			assert.ErrorIs(t, err, ErrNotTransportable)
		})
	}
}

func TestTransportableAcceptsSharedReferences(t *testing.T) {
	shared := map[string]any{"n": 1}
	value := map[string]any{"a": shared, "b": shared, "raw": []byte("x")}

	assert.NoError(t, Transportable(value))
}
