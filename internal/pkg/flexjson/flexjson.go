// Package flexjson decodes upstream JSON payloads whose shape drifts between
// calls: numbers arriving as strings, objects arriving as single-element
// arrays, and the statistics feed's doc[0].data wrapper envelope. Decoding is
// a fixed pipeline (trivial check, envelope unwrap, array fixup, strict
// decode) and never returns an error to the caller: an irrecoverable shape
// mismatch yields the target's zero value.
package flexjson

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
)

// Meta carries the side-channel fields of the doc[0].data envelope.
type Meta struct {
	QueryURL string `json:"queryUrl"`
	Event    string `json:"event"`
	MaxAge   Int    `json:"_maxage"`
	Dob      Int    `json:"_dob"`
}

// SetMeta lets target types receive the envelope metadata by embedding Meta.
func (m *Meta) SetMeta(v Meta) { *m = v }

// MetaSetter is implemented by target types that want the envelope metadata
// copied onto them after a successful unwrap.
type MetaSetter interface {
	SetMeta(Meta)
}

type envelope struct {
	Doc []struct {
		Meta
		Data json.RawMessage `json:"data"`
	} `json:"doc"`
}

// Trivial reports whether a payload carries no decodable content:
// empty, null, {}, [] and anything else shorter than 5 bytes.
func Trivial(raw []byte) bool {
	return len(bytes.TrimSpace(raw)) < 5
}

// Unwrap extracts the inner payload of a doc[0].data envelope. ok is false
// when raw is not envelope-shaped.
func Unwrap(raw []byte) (inner []byte, meta Meta, ok bool) {
	if !bytes.Contains(raw, []byte(`"doc"`)) {
		return nil, Meta{}, false
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Doc) == 0 {
		return nil, Meta{}, false
	}
	return env.Doc[0].Data, env.Doc[0].Meta, true
}

// Decode runs the tolerant pipeline for one payload. The returned bool is
// false when the result is the zero value (trivial payload or irrecoverable
// shape mismatch). Decode never fails; mismatches are logged and absorbed.
func Decode[T any](raw []byte) (T, bool) {
	var zero T
	if Trivial(raw) {
		return zero, false
	}

	// Envelopes may nest; unwrap until a bare payload remains.
	var meta *Meta
	for {
		inner, m, ok := Unwrap(raw)
		if !ok {
			break
		}
		if meta == nil {
			meta = &m
		}
		if Trivial(inner) {
			return zero, false
		}
		raw = inner
	}

	// An object target occasionally arrives as a one-element array.
	payload := bytes.TrimSpace(raw)
	if len(payload) > 0 && payload[0] == '[' {
		if fixed, ok := firstObjectElement(payload); ok {
			var direct T
			if err := json.Unmarshal(payload, &direct); err == nil {
				return finish(direct, meta), true
			}
			payload = fixed
		}
	}

	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		slog.Debug("flexjson: payload shape mismatch", "error", err, "size", len(payload))
		return zero, false
	}
	return finish(out, meta), true
}

func finish[T any](v T, meta *Meta) T {
	if meta != nil {
		if ms, ok := any(&v).(MetaSetter); ok {
			ms.SetMeta(*meta)
		}
	}
	return v
}

// firstObjectElement returns the first element of a JSON array when that
// element is itself an object.
func firstObjectElement(raw []byte) ([]byte, bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil || len(elems) == 0 {
		return nil, false
	}
	first := bytes.TrimSpace(elems[0])
	if len(first) == 0 || first[0] != '{' {
		return nil, false
	}
	return first, true
}

// structural reports whether a raw value is an object or array, which no
// scalar coercion can absorb.
func structural(s string) bool {
	return len(s) > 0 && (s[0] == '{' || s[0] == '[')
}

// Int decodes from a JSON number, a quoted number, null or an empty string.
// Scalar garbage defaults to zero; objects and arrays are a real shape
// mismatch and fail the decode.
type Int int64

func (n *Int) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if structural(s) {
		return &json.UnmarshalTypeError{Value: "object", Type: reflect.TypeOf(Int(0))}
	}
	*n = 0
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return nil
	}
	// Some feeds serialize integral counters as floats ("3.0").
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*n = Int(f)
	}
	return nil
}

// Float decodes from a JSON number, a quoted number, null or an empty string.
type Float float64

func (f *Float) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if structural(s) {
		return &json.UnmarshalTypeError{Value: "object", Type: reflect.TypeOf(Float(0))}
	}
	*f = 0
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*f = Float(v)
	}
	return nil
}

// String decodes from a JSON string, number or boolean.
type String string

func (s *String) UnmarshalJSON(data []byte) error {
	t := strings.TrimSpace(string(data))
	if structural(t) {
		return &json.UnmarshalTypeError{Value: "object", Type: reflect.TypeOf(String(""))}
	}
	if t == "null" {
		*s = ""
		return nil
	}
	if len(t) >= 2 && t[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = String(v)
		return nil
	}
	*s = String(t)
	return nil
}
