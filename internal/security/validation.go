package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Limits for JSON payloads produced by the reasoning engine (tool call
// arguments) before they are parsed any further.
const (
	DefaultMaxPayloadSize = 256 << 10
	DefaultMaxJSONDepth   = 32
)

// Payload errors.
var (
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
	ErrJSONTooDeep     = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON     = errors.New("invalid JSON")
)

// CheckPayload rejects data larger than maxSize bytes or nesting deeper
// than maxDepth levels. Non-positive limits select the defaults. Empty
// data is accepted.
func CheckPayload(data []byte, maxSize, maxDepth int) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxPayloadSize
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxJSONDepth
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(data), maxSize)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > maxDepth {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, maxDepth)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}
