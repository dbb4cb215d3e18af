package socket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrEncodeFailure = errors.New("failed to encode message")
	ErrDecodeFailure = errors.New("failed to decode message")
)

// Codec turns a Message into a wire frame and back.
type Codec interface {
	Name() string
	// Binary reports whether frames must travel as binary rather than text.
	Binary() bool
	Encode(msg Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

// JSONCodec is the default, human-readable codec.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Binary() bool { return false }

func (JSONCodec) Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, errors.Join(ErrDecodeFailure, err)
	}
	if msg.Event == "" {
		return Message{}, ErrInvalidMessage
	}
	return msg, nil
}

// MsgPackCodec is a compact binary codec. Decoded maps come back as
// map[string]interface{}; integers keep their msgpack width instead of
// becoming float64 as with JSONCodec.
type MsgPackCodec struct{}

func (MsgPackCodec) Name() string { return "msgpack" }

func (MsgPackCodec) Binary() bool { return true }

func (MsgPackCodec) Encode(msg Message) ([]byte, error) {
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}
	return data, nil
}

func (MsgPackCodec) Decode(data []byte) (Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return Message{}, errors.Join(ErrDecodeFailure, err)
	}
	if msg.Event == "" {
		return Message{}, ErrInvalidMessage
	}
	return msg, nil
}

// CodecByName resolves "json" or "msgpack". An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgPackCodec{}, nil
	default:
		return nil, fmt.Errorf("socket: unknown codec %q", name)
	}
}

var (
	_ Codec = JSONCodec{}
	_ Codec = MsgPackCodec{}
)
