// Package protocol defines the envelope exchanged between a runner and the
// evaluator living inside its isolated context.
package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Type names a message kind. The set is closed; anything else is ignored by
// both sides.
type Type string

const (
	TypeInit   Type = "init"
	TypeTest   Type = "test"
	TypeReady  Type = "ready"
	TypeResult Type = "result"
)

// Known reports whether t is part of the protocol.
func (t Type) Known() bool {
	switch t {
	case TypeInit, TypeTest, TypeReady, TypeResult:
		return true
	}
	return false
}

// ErrNotTransportable is returned when a value cannot cross the isolation
// boundary: functions, channels, opaque handles or cyclic graphs.
var ErrNotTransportable = errors.New("value is not transportable")

// Envelope is the wire shape {type, value}. Value stays encoded until the
// receiver knows what to bind it to.
type Envelope struct {
	Type  Type               `msgpack:"type"`
	Value msgpack.RawMessage `msgpack:"value"`
}

// Encode checks that v can be cloned across the boundary and packs it into
// an envelope.
func Encode(t Type, v any) ([]byte, error) {
	if err := Transportable(v); err != nil {
		return nil, err
	}

	raw, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s value: %w", t, err)
	}

	data, err := msgpack.Marshal(Envelope{Type: t, Value: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", t, err)
	}
	return data, nil
}

// Decode unpacks the envelope only. Call Bind to read the value.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return env, nil
}

// Bind decodes the envelope value into out. Numbers inside interface values
// come back as int64, uint64 or float64 regardless of their packed width.
func (e Envelope) Bind(out any) error {
	if len(e.Value) == 0 {
		return nil
	}
	dec := msgpack.NewDecoder(bytes.NewReader(e.Value))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s value: %w", e.Type, err)
	}
	return nil
}
