package wstransport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/mandelbrot/internal/transport"
)

func TestMessageFrames(t *testing.T) {
	msgs := []transport.Message{
		transport.WorkItem(7),
		transport.RowResult(3, []int32{0, 5, 200}),
		transport.Termination(),
	}
	for _, msg := range msgs {
		raw, err := encodeMessage(msg)
		require.NoError(t, err, msg.String())

		f, err := decodeFrame(raw)
		require.NoError(t, err)
		got, err := decodeMessage(f)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	}
}

func TestFrameWireFormat(t *testing.T) {
	raw, err := encodeMessage(transport.WorkItem(2))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"work","data":{"row":2}}`, string(raw))

	raw, err = encodeMessage(transport.Termination())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"terminate"}`, string(raw))
}

func TestMalformedFrames(t *testing.T) {
	_, err := decodeFrame([]byte("not json"))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = decodeMessage(frame{Type: frameResult})
	assert.ErrorIs(t, err, ErrMalformedFrame, "result without data")

	_, err = decodeMessage(frame{Type: frameRegister, Data: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrMalformedFrame, "handshake frame in protocol position")

	_, err = encodeMessage(transport.Message{Kind: "bogus"})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestToWebSocketURL(t *testing.T) {
	tests := map[string]string{
		"localhost:7070":         "ws://localhost:7070",
		"http://10.0.0.1:7070/":  "ws://10.0.0.1:7070",
		"https://master.example": "wss://master.example",
		"ws://a:1":               "ws://a:1",
		"wss://a:1":              "wss://a:1",
	}
	for in, want := range tests {
		assert.Equal(t, want, toWebSocketURL(in), in)
	}
}
