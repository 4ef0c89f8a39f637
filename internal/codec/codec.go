// Package codec converts configuration documents and reports between the
// formats circuitsync reads and writes.
//
// Design documents and captured device state arrive as JSON or YAML and are
// always handed to the pipeline as JSON (domain.Document). Results leave as
// JSON or YAML, keyed by their JSON field names either way.
package codec

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"circuitsync/internal/domain"
)

// Decoder reads a configuration document in one format
type Decoder interface {
	Decode(r io.Reader) (domain.Document, error)
	Format() string
}

// Encoder writes any JSON-serialisable value in one format
type Encoder interface {
	Encode(v any, w io.Writer) error
	Format() string
}

// Codec both reads documents and writes reports
type Codec interface {
	Decoder
	Encoder
}

// ForFormat returns the codec for a format name (json, yaml, yml)
func ForFormat(format string) (Codec, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "json":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// ForPath picks the codec from a file extension
func ForPath(path string) (Codec, error) {
	return ForFormat(filepath.Ext(path))
}
