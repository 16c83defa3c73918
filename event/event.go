/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package event defines the messages exchanged between drawing clients and
// the relay, and their JSON wire encoding.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the type tag carried by every frame.
type Kind string

const (
	KindJoin    Kind = "join"
	KindDraw    Kind = "draw"
	KindClear   Kind = "clear"
	KindGuess   Kind = "guess"
	KindHistory Kind = "history"
)

var (
	// ErrMalformed is returned for frames that are not valid JSON or are
	// missing required payload fields.
	ErrMalformed = errors.New("malformed frame")

	// ErrUnknownType is returned for frames with an unrecognized type tag.
	ErrUnknownType = errors.New("unknown frame type")
)

// Message is anything that can travel over the wire.
type Message interface {
	Kind() Kind
}

// Event is a Message that is persisted in history and broadcast: a Stroke,
// a Clear or a Guess.
type Event interface {
	Message
	event()
}

// Stroke is one line segment. Color and Size are passed through untouched.
type Stroke struct {
	X0    float64 `json:"x0"`
	Y0    float64 `json:"y0"`
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	Color string  `json:"color"`
	Size  float64 `json:"size"`
}

// Clear wipes the canvas.
type Clear struct{}

// Guess is a chat or guess entry. Timestamp is milliseconds since the epoch
// and is only used by clients for display.
type Guess struct {
	Text      string `json:"text"`
	By        string `json:"by"`
	Timestamp int64  `json:"timestamp"`
}

// Join asks the relay for a history replay.
type Join struct{}

// History is the replay batch sent in response to a Join.
type History []Event

func (Stroke) Kind() Kind  { return KindDraw }
func (Clear) Kind() Kind   { return KindClear }
func (Guess) Kind() Kind   { return KindGuess }
func (Join) Kind() Kind    { return KindJoin }
func (History) Kind() Kind { return KindHistory }

func (Stroke) event() {}
func (Clear) event()  {}
func (Guess) event()  {}

type frame struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type strokePayload struct {
	X0    *float64 `json:"x0"`
	Y0    *float64 `json:"y0"`
	X1    *float64 `json:"x1"`
	Y1    *float64 `json:"y1"`
	Color *string  `json:"color"`
	Size  *float64 `json:"size"`
}

type guessPayload struct {
	Text      *string `json:"text"`
	By        *string `json:"by"`
	Timestamp *int64  `json:"timestamp"`
}

// Decode parses a single frame. History frames are decoded too, so clients
// can share the codec; the relay drops anything that is not a Join or an Event.
func Decode(data []byte) (Message, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch f.Type {
	case KindJoin:
		return Join{}, nil
	case KindClear:
		return Clear{}, nil
	case KindDraw:
		return decodeStroke(f.Payload)
	case KindGuess:
		return decodeGuess(f.Payload)
	case KindHistory:
		return decodeHistory(f.Payload)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeStroke(raw json.RawMessage) (Stroke, error) {
	if isNull(raw) {
		return Stroke{}, fmt.Errorf("%w: draw without payload", ErrMalformed)
	}

	var p strokePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Stroke{}, fmt.Errorf("%w: draw: %v", ErrMalformed, err)
	}
	if p.X0 == nil || p.Y0 == nil || p.X1 == nil || p.Y1 == nil || p.Color == nil || p.Size == nil {
		return Stroke{}, fmt.Errorf("%w: draw is missing fields", ErrMalformed)
	}

	return Stroke{
		X0:    *p.X0,
		Y0:    *p.Y0,
		X1:    *p.X1,
		Y1:    *p.Y1,
		Color: *p.Color,
		Size:  *p.Size,
	}, nil
}

func decodeGuess(raw json.RawMessage) (Guess, error) {
	if isNull(raw) {
		return Guess{}, fmt.Errorf("%w: guess without payload", ErrMalformed)
	}

	var p guessPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Guess{}, fmt.Errorf("%w: guess: %v", ErrMalformed, err)
	}
	if p.Text == nil || p.By == nil || p.Timestamp == nil {
		return Guess{}, fmt.Errorf("%w: guess is missing fields", ErrMalformed)
	}

	return Guess{
		Text:      *p.Text,
		By:        *p.By,
		Timestamp: *p.Timestamp,
	}, nil
}

func decodeHistory(raw json.RawMessage) (History, error) {
	if isNull(raw) {
		return History{}, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: history: %v", ErrMalformed, err)
	}

	h := make(History, 0, len(entries))
	for i, entry := range entries {
		m, err := Decode(entry)
		if err != nil {
			return nil, fmt.Errorf("history entry %d: %w", i, err)
		}
		e, ok := m.(Event)
		if !ok {
			return nil, fmt.Errorf("%w: history entry %d has type %q", ErrMalformed, i, m.Kind())
		}
		h = append(h, e)
	}

	return h, nil
}

// Encode renders a Message as a single JSON frame.
func Encode(m Message) ([]byte, error) {
	f := frame{Type: m.Kind()}

	switch v := m.(type) {
	case Join, Clear:
	case Stroke, Guess:
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
		}
		f.Payload = payload
	case History:
		entries := make([]json.RawMessage, 0, len(v))
		for _, e := range v {
			data, err := Encode(e)
			if err != nil {
				return nil, err
			}
			entries = append(entries, data)
		}
		payload, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("encode history: %w", err)
		}
		f.Payload = payload
	default:
		return nil, fmt.Errorf("encode: unsupported message %T", m)
	}

	return json.Marshal(f)
}
