// Package envelope normalizes storage event notifications. The delivery
// system wraps the same logical payload in several structurally different
// envelopes depending on how the subscription is wired; Decode reduces all
// of them to one canonical StorageEvent.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnrecognized indicates the request body matched none of the known
// envelope shapes. The event endpoint answers such requests with a client
// error so the delivery system does not redeliver them.
var ErrUnrecognized = errors.New("unrecognized event envelope")

// Shape identifies which envelope variant a body decoded as.
type Shape string

const (
	// ShapeNested is the nested cloud-event envelope: data.message.data
	// carries base64 JSON.
	ShapeNested Shape = "nested"
	// ShapePush is the flat push-subscription envelope: message.data
	// carries base64 JSON.
	ShapePush Shape = "push"
	// ShapeBare is a base64 JSON string directly under data.
	ShapeBare Shape = "bare"
	// ShapeDirect is an already-decoded payload at the top level.
	ShapeDirect Shape = "direct"
)

// StorageEvent is the canonical "object created" notification extracted
// from any envelope shape.
type StorageEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

type message struct {
	Data string `json:"data"`
}

type body struct {
	Message *message        `json:"message"`
	Data    json.RawMessage `json:"data"`
	Bucket  string          `json:"bucket"`
	Name    string          `json:"name"`
}

type nestedData struct {
	Message *message `json:"message"`
}

// Decode attempts each known envelope shape in order and returns the first
// structural match. The order matters: nested cloud-event first, then flat
// push-subscription, then bare base64 payload, then an already-decoded
// top-level object. Anything else is ErrUnrecognized.
func Decode(raw []byte) (StorageEvent, Shape, error) {
	var b body
	if err := json.Unmarshal(raw, &b); err != nil {
		return StorageEvent{}, "", fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}

	// data.message.data
	if len(b.Data) > 0 {
		var nested nestedData
		if err := json.Unmarshal(b.Data, &nested); err == nil && nested.Message != nil && nested.Message.Data != "" {
			ev, err := decodePayload(nested.Message.Data)
			if err != nil {
				return StorageEvent{}, ShapeNested, err
			}
			return ev, ShapeNested, nil
		}
	}

	// message.data
	if b.Message != nil && b.Message.Data != "" {
		ev, err := decodePayload(b.Message.Data)
		if err != nil {
			return StorageEvent{}, ShapePush, err
		}
		return ev, ShapePush, nil
	}

	// bare base64 string under data
	if len(b.Data) > 0 {
		var encoded string
		if err := json.Unmarshal(b.Data, &encoded); err == nil && encoded != "" {
			ev, err := decodePayload(encoded)
			if err != nil {
				return StorageEvent{}, ShapeBare, err
			}
			return ev, ShapeBare, nil
		}
	}

	// already-decoded object at the top level
	if b.Bucket != "" || b.Name != "" {
		var ev StorageEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return StorageEvent{}, ShapeDirect, fmt.Errorf("%w: %v", ErrUnrecognized, err)
		}
		return ev, ShapeDirect, nil
	}

	return StorageEvent{}, "", ErrUnrecognized
}

func decodePayload(encoded string) (StorageEvent, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return StorageEvent{}, fmt.Errorf("%w: bad base64 payload: %v", ErrUnrecognized, err)
	}
	var ev StorageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return StorageEvent{}, fmt.Errorf("%w: bad payload json: %v", ErrUnrecognized, err)
	}
	return ev, nil
}
