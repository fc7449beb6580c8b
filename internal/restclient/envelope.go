package restclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Envelope is a decoded response body whose payload may sit at the top level
// or under "data".
type Envelope map[string]json.RawMessage

// Field returns the raw value of key, looking in the top-level object first
// and then inside "data".
func (e Envelope) Field(key string) (json.RawMessage, bool) {
	if v, ok := e[key]; ok && !isNull(v) {
		return v, true
	}
	data, ok := e["data"]
	if !ok || isNull(data) {
		return nil, false
	}
	var inner map[string]json.RawMessage
	if err := json.Unmarshal(data, &inner); err != nil {
		return nil, false
	}
	v, ok := inner[key]
	if !ok || isNull(v) {
		return nil, false
	}
	return v, true
}

// Decode unmarshals the first key present into out. It fails with ErrMalformed
// when none of keys is present or the value does not decode.
func (e Envelope) Decode(out any, keys ...string) error {
	for _, key := range keys {
		raw, ok := e.Field(key)
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: field %q: %w", ErrMalformed, key, err)
		}
		return nil
	}
	return fmt.Errorf("%w: missing %v", ErrMalformed, keys)
}

// DecodeList decodes a list response that is either a bare JSON array or an
// object holding the array under one of keys.
func DecodeList(raw json.RawMessage, out any, keys ...string) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, out); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return nil
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := env.Failure(); err != nil {
		return err
	}
	return env.Decode(out, keys...)
}

// String returns a string field or "".
func (e Envelope) String(key string) string {
	raw, ok := e.Field(key)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Success reads the conventional "success" flag. Absent means true.
func (e Envelope) Success() bool {
	raw, ok := e["success"]
	if !ok {
		return true
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return true
	}
	return b
}

// Failure converts a 2xx body carrying "success": false into an APIError.
func (e Envelope) Failure() error {
	if e.Success() {
		return nil
	}
	msg := e.String("message")
	if msg == "" {
		msg = "request was not successful"
	}
	return &APIError{Status: http.StatusOK, Message: msg, Code: "unsuccessful"}
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
