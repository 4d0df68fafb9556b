// Package protocol defines the closed set of wire messages and the single
// codec that moves them in and out of tagged JSON envelopes.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrUnknownTag = errors.New("unknown message tag")
	ErrMalformed  = errors.New("malformed message")
	ErrInvalid    = errors.New("invalid message")
)

// Envelope is the wire frame around every message. Seq is set on requests
// that expect a reply; the reply carries the same number in ReplyTo. A reply
// with an empty Tag means the peer had nothing to say.
type Envelope struct {
	Tag     Tag             `json:"tag,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
	ReplyTo int64           `json:"replyTo,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Encode wraps a message in an envelope.
func Encode(msg Message) (Envelope, error) {
	if msg == nil {
		return Envelope{}, nil
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s: %w", msg.Tag(), err)
	}
	return Envelope{Tag: msg.Tag(), Body: body}, nil
}

// Decode turns an envelope back into a typed message and validates it.
// An envelope without a tag decodes to nil.
func Decode(env Envelope) (Message, error) {
	if env.Tag == "" {
		return nil, nil
	}
	ctor, ok := constructors[env.Tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, env.Tag)
	}
	msg := ctor()
	if len(env.Body) > 0 {
		if err := json.Unmarshal(env.Body, msg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Tag, err)
		}
	}
	if err := Validate(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Validate checks a message's field constraints.
func Validate(msg Message) error {
	if _, ok := msg.(*Multiple); ok {
		return nil
	}
	if err := validate.Struct(msg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, msg.Tag(), err)
	}
	return nil
}

// Marshal encodes a message into a complete envelope document.
func Marshal(msg Message, seq, replyTo int64) ([]byte, error) {
	env, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	env.Seq = seq
	env.ReplyTo = replyTo
	return json.Marshal(env)
}

// Unmarshal parses an envelope document without decoding its body.
func Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env, nil
}

// Multiple batches several messages into one round trip. Children are
// handled in order and their replies collapsed into one reply.
type Multiple struct {
	Messages []Message
}

type multipleWire struct {
	Messages []Envelope `json:"messages"`
}

func (m *Multiple) MarshalJSON() ([]byte, error) {
	wire := multipleWire{Messages: make([]Envelope, 0, len(m.Messages))}
	for _, child := range m.Messages {
		env, err := Encode(child)
		if err != nil {
			return nil, err
		}
		wire.Messages = append(wire.Messages, env)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON keeps children whose tags this build does not know out of
// the batch instead of failing it.
func (m *Multiple) UnmarshalJSON(data []byte) error {
	var wire multipleWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.Messages = m.Messages[:0]
	for _, env := range wire.Messages {
		child, err := Decode(env)
		if errors.Is(err, ErrUnknownTag) {
			continue
		}
		if err != nil {
			return err
		}
		if child != nil {
			m.Messages = append(m.Messages, child)
		}
	}
	return nil
}

// Collapse folds the replies of a batch: nothing, the single reply, or a
// Multiple holding all of them.
func Collapse(replies []Message) Message {
	var kept []Message
	for _, r := range replies {
		if r != nil {
			kept = append(kept, r)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return &Multiple{Messages: kept}
	}
}
