// Package protocol implements the framed JSON command protocol spoken over each client connection.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/thefall/sessionserver/internal/model"
)

// Reserved frame ids
const (
	HeartbeatID    = 0
	ErrorID        = -1
	NotificationID = -2
)

// Delimiter separates JSON objects inside one socket frame
const Delimiter = '#'

// Request is one decoded client command
type Request struct {
	ID      int64           `json:"id"`
	Command string          `json:"command"`
	Kwargs  json.RawMessage `json:"kwargs"`
}

// SplitFrames splits a socket frame into its JSON segments. Delimiters inside
// JSON strings are not treated as separators. Blank segments are dropped.
func SplitFrames(data []byte) [][]byte {
	var (
		segments [][]byte
		start    int
		inString bool
		escaped  bool
	)
	flush := func(end int) {
		if seg := bytes.TrimSpace(data[start:end]); len(seg) > 0 {
			segments = append(segments, seg)
		}
	}

	for i, b := range data {
		switch {
		case escaped:
			escaped = false
		case inString && b == '\\':
			escaped = true
		case b == '"':
			inString = !inString
		case b == Delimiter && !inString:
			flush(i)
			start = i + 1
		}
	}
	flush(len(data))
	return segments
}

// DecodeRequest parses one segment into a Request
func DecodeRequest(segment []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(segment, &req); err != nil {
		return nil, fmt.Errorf("decode frame: %w", model.ErrInvalidRequest)
	}
	if req.ID != HeartbeatID && req.Command == "" {
		return nil, fmt.Errorf("missing command: %w", model.ErrInvalidRequest)
	}
	return &req, nil
}

// internalFrame is sent in place of a message that could not be marshalled
var internalFrame = []byte(`{"id":-1,"error":"internal","code":0,"message":"internal server error"}`)

// Encode marshals an outbound message
func Encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return internalFrame
	}
	return data
}

// decodeKwargs unmarshals a request's kwargs into dst. Missing kwargs decode as an empty object.
func decodeKwargs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode kwargs: %w", model.ErrInvalidRequest)
	}
	return nil
}

// Int accepts a JSON number or a numeric string; clients send codes both ways
type Int int

// UnmarshalJSON implements json.Unmarshaler
func (i *Int) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*i = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not an integer: %s", s)
	}
	*i = Int(n)
	return nil
}
