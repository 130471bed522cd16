package isolate

import (
	"context"
	"testing"
	"time"

	"github.com/dontdude/testbox/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echo replies to every test message with the same string as a result.
func echo(ctx context.Context, port *Port) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-port.Messages():
			env, err := protocol.Decode(msg.Data)
			if err != nil {
				continue
			}
			var s string
			_ = env.Bind(&s)
			_ = port.Post(protocol.TypeResult, msg.Source+":"+s)
		}
	}
}

func recv(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestHostRoundTrip(t *testing.T) {
	h := NewHost(map[string]Program{"echo.js": echo}, nil)
	msgs, cancel := h.Subscribe()
	defer cancel()

	c := h.Create(TagThread)
	require.NoError(t, h.Load(context.Background(), c, "/dist/echo.js"))
	require.NoError(t, c.Post(protocol.TypeTest, "hi"))

	msg := recv(t, msgs)
	assert.Equal(t, c.ID(), msg.Source)

	env, err := protocol.Decode(msg.Data)
	require.NoError(t, err)
	var s string
	require.NoError(t, env.Bind(&s))
	assert.Equal(t, h.ID()+":hi", s)
}

func TestLoadUnknownProgram(t *testing.T) {
	h := NewHost(nil, nil)
	c := h.Create(TagDocument)
	err := h.Load(context.Background(), c, "/dist/missing.js")
	assert.ErrorIs(t, err, ErrUnknownProgram)
}

func TestDisposeIsIdempotent(t *testing.T) {
	h := NewHost(map[string]Program{"echo.js": echo}, nil)
	c := h.Create(TagThread)
	require.NoError(t, h.Load(context.Background(), c, "echo.js"))
	assert.Equal(t, 1, h.Live())

	c.Dispose()
	c.Dispose()

	assert.Equal(t, 0, h.Live())
	assert.ErrorIs(t, c.Post(protocol.TypeTest, "late"), ErrDisposed)
	assert.ErrorIs(t, h.Load(context.Background(), c, "echo.js"), ErrDisposed)
}

func TestSiblingMessagesCarryTheirOwnSource(t *testing.T) {
	h := NewHost(map[string]Program{"echo.js": echo}, nil)
	msgs, cancel := h.Subscribe()
	defer cancel()

	target := h.Create(TagThread)
	require.NoError(t, h.Load(context.Background(), target, "echo.js"))

	var attackerPort *Port
	ready := make(chan struct{})
	h.Register("attacker.js", func(ctx context.Context, port *Port) {
		attackerPort = port
		close(ready)
		<-ctx.Done()
	})
	attacker := h.Create(TagDocument)
	require.NoError(t, h.Load(context.Background(), attacker, "attacker.js"))
	<-ready

	require.NoError(t, attackerPort.PostTo(target.ID(), protocol.TypeTest, "forged"))

	msg := recv(t, msgs)
	assert.Equal(t, target.ID(), msg.Source)
	env, err := protocol.Decode(msg.Data)
	require.NoError(t, err)
	var s string
	require.NoError(t, env.Bind(&s))
	assert.Equal(t, attacker.ID()+":forged", s)
}

func TestPanickingProgramIsContained(t *testing.T) {
	h := NewHost(map[string]Program{"boom.js": func(ctx context.Context, port *Port) {
		panic("boom")
	}}, nil)
	c := h.Create(TagThread)
	assert.NoError(t, h.Load(context.Background(), c, "boom.js"))
}
