package envelope_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/media-ingest/pkg/mediaingest/envelope"
)

var payload = map[string]string{
	"bucket":      "b",
	"name":        "raw/u1/a1/f.mp4",
	"contentType": "video/mp4",
}

func encodedPayload(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(data)
}

// All four documented envelope shapes carrying the same logical payload must
// decode to the same canonical event.
func TestDecodeAllShapes(t *testing.T) {
	enc := encodedPayload(t)

	tests := []struct {
		name  string
		body  map[string]any
		shape envelope.Shape
	}{
		{
			name:  "nested cloud event",
			body:  map[string]any{"data": map[string]any{"message": map[string]any{"data": enc}}},
			shape: envelope.ShapeNested,
		},
		{
			name:  "flat push subscription",
			body:  map[string]any{"message": map[string]any{"data": enc}},
			shape: envelope.ShapePush,
		},
		{
			name:  "bare base64 under data",
			body:  map[string]any{"data": enc},
			shape: envelope.ShapeBare,
		},
		{
			name:  "already decoded",
			body:  map[string]any{"bucket": "b", "name": "raw/u1/a1/f.mp4", "contentType": "video/mp4"},
			shape: envelope.ShapeDirect,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.body)
			require.NoError(t, err)

			ev, shape, err := envelope.Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.shape, shape)
			assert.Equal(t, envelope.StorageEvent{
				Bucket:      "b",
				Name:        "raw/u1/a1/f.mp4",
				ContentType: "video/mp4",
			}, ev)
		})
	}
}

func TestDecodeUnrecognized(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "not json at all"},
		{"empty object", "{}"},
		{"irrelevant fields", `{"hello":"world"}`},
		{"message without data", `{"message":{}}`},
		{"bad base64 in push", `{"message":{"data":"%%%not-base64%%%"}}`},
		{"base64 of non-json", `{"data":"` + base64.StdEncoding.EncodeToString([]byte("plain text")) + `"}`},
		{"json array", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := envelope.Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, envelope.ErrUnrecognized)
		})
	}
}

// The nested shape must win when a body could also parse as another shape.
func TestDecodeOrderNestedFirst(t *testing.T) {
	enc := encodedPayload(t)
	raw, err := json.Marshal(map[string]any{
		"data":    map[string]any{"message": map[string]any{"data": enc}},
		"message": map[string]any{"data": enc},
	})
	require.NoError(t, err)

	_, shape, err := envelope.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, envelope.ShapeNested, shape)
}

func TestDecodeDirectPartialFields(t *testing.T) {
	ev, shape, err := envelope.Decode([]byte(`{"name":"raw/u1/a1/f.mp4"}`))
	require.NoError(t, err)
	assert.Equal(t, envelope.ShapeDirect, shape)
	assert.Equal(t, "raw/u1/a1/f.mp4", ev.Name)
	assert.Empty(t, ev.Bucket)
}
