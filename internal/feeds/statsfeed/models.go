package statsfeed

import (
	"bytes"
	"encoding/json"

	"github.com/arbscout/arbscout/internal/pkg/flexjson"
)

// errorPayload is the statistics feed's error shape, e.g.
// {"message":"Entity not found","code":404,"name":"NotFoundError"}.
// It must be told apart from the data shape before field-level decoding.
type errorPayload struct {
	Message string          `json:"message"`
	Code    flexjson.Int    `json:"code"`
	Name    flexjson.String `json:"name"`
}

// IsErrorPayload reports whether a raw payload is the feed's error shape
// rather than a data document.
func IsErrorPayload(raw []byte) bool {
	if flexjson.Trivial(raw) {
		return false
	}
	if bytes.Contains(raw, []byte(`"doc"`)) {
		return false
	}
	var e errorPayload
	if err := json.Unmarshal(raw, &e); err != nil {
		return false
	}
	return e.Name != "" && e.Code != 0
}
