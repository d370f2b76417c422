package wstransport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"yqhp/mandelbrot/internal/kernel"
	"yqhp/mandelbrot/internal/transport"
)

// ErrMalformedFrame is reported for frames that cannot be decoded or that
// are not valid at their point in the conversation.
var ErrMalformedFrame = errors.New("malformed frame")

// frameType names the kinds of frames exchanged over a worker connection.
type frameType string

const (
	// worker -> master
	frameRegister frameType = "register"
	frameResult   frameType = "result"

	// master -> worker
	frameRegisterAck frameType = "register_ack"
	frameWork        frameType = "work"
	frameTerminate   frameType = "terminate"
)

// frame is the envelope of every websocket message.
type frame struct {
	Type frameType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type registerRequest struct {
	WorkerID string `json:"worker_id,omitempty"`
}

type registerAck struct {
	Accepted bool          `json:"accepted"`
	WorkerID string        `json:"worker_id,omitempty"`
	Error    string        `json:"error,omitempty"`
	Params   kernel.Params `json:"params"`
}

type rowPayload struct {
	Row    int     `json:"row"`
	Pixels []int32 `json:"pixels,omitempty"`
}

func encodeFrame(t frameType, payload any) ([]byte, error) {
	f := frame{Type: t}
	if payload != nil {
		data, err := sonic.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", t, err)
		}
		f.Data = data
	}
	return sonic.Marshal(&f)
}

func decodeFrame(raw []byte) (frame, error) {
	var f frame
	if err := sonic.Unmarshal(raw, &f); err != nil {
		return frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return f, nil
}

func decodePayload(f frame, v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: %s frame without data", ErrMalformedFrame, f.Type)
	}
	if err := sonic.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedFrame, f.Type, err)
	}
	return nil
}

// encodeMessage maps a protocol message onto its frame.
func encodeMessage(msg transport.Message) ([]byte, error) {
	switch msg.Kind {
	case transport.KindWork:
		return encodeFrame(frameWork, rowPayload{Row: msg.Row})
	case transport.KindResult:
		return encodeFrame(frameResult, rowPayload{Row: msg.Row, Pixels: msg.Pixels})
	case transport.KindTerminate:
		return encodeFrame(frameTerminate, nil)
	default:
		return nil, fmt.Errorf("%w: cannot send %s", ErrMalformedFrame, msg)
	}
}

// decodeMessage turns a protocol frame back into a message. Handshake frames
// are rejected.
func decodeMessage(f frame) (transport.Message, error) {
	switch f.Type {
	case frameWork:
		var p rowPayload
		if err := decodePayload(f, &p); err != nil {
			return transport.Message{}, err
		}
		return transport.WorkItem(p.Row), nil
	case frameResult:
		var p rowPayload
		if err := decodePayload(f, &p); err != nil {
			return transport.Message{}, err
		}
		return transport.RowResult(p.Row, p.Pixels), nil
	case frameTerminate:
		return transport.Termination(), nil
	default:
		return transport.Message{}, fmt.Errorf("%w: unexpected %q frame", ErrMalformedFrame, f.Type)
	}
}
