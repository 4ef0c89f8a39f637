package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	"circuitsync/internal/domain"
)

// JSONCodec handles JSON documents and reports
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Decode reads a JSON document, rejecting malformed input early
func (c *JSONCodec) Decode(r io.Reader) (domain.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("failed to parse JSON: malformed document")
	}
	return domain.Document(data), nil
}

// Encode writes v as indented JSON
func (c *JSONCodec) Encode(v any, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
