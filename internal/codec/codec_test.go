package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circuitsync/internal/domain"
)

func TestForPath(t *testing.T) {
	for path, want := range map[string]string{
		"design.json": "json",
		"design.yaml": "yaml",
		"design.YML":  "yaml",
	} {
		c, err := ForPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, c.Format(), path)
	}

	_, err := ForPath("design.xml")
	assert.Error(t, err)
}

func TestYAMLDecode(t *testing.T) {
	t.Run("nested document becomes JSON", func(t *testing.T) {
		doc, err := NewYAMLCodec().Decode(strings.NewReader(`
FRE:
  serviceName: 21.L1XX.006991..TWCC
  cir: 1000
  tags: [a, b]
  1: numeric key
`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"FRE":{"serviceName":"21.L1XX.006991..TWCC","cir":1000,"tags":["a","b"],"1":"numeric key"}}`, string(doc))
	})

	t.Run("empty input is an empty document", func(t *testing.T) {
		doc, err := NewYAMLCodec().Decode(strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, domain.Document("{}"), doc)
	})

	t.Run("malformed input", func(t *testing.T) {
		_, err := NewYAMLCodec().Decode(strings.NewReader("a: [b"))
		assert.Error(t, err)
	})
}

func TestJSONDecode(t *testing.T) {
	doc, err := NewJSONCodec().Decode(strings.NewReader(`{"a":{"b":1}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"b":1}}`, string(doc))

	_, err = NewJSONCodec().Decode(strings.NewReader(`{"a":`))
	assert.Error(t, err)
}

func TestEncodeResult(t *testing.T) {
	result := domain.ReconciliationResult{
		CircuitID: "21.L1XX.006991..TWCC",
		DeviceRef: "AUSTXM01ZW",
		FinalDiff: domain.DiffPair{
			ObservedOnly: domain.AttributeMap{"FRE.serviceName": domain.Absent},
			DesignedOnly: domain.AttributeMap{"FRE.serviceName": "21.L1XX.006991..TWCC"},
		},
	}

	t.Run("yaml uses json field names", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewYAMLCodec().Encode(result, &buf))
		out := buf.String()
		assert.Contains(t, out, "circuit_id: 21.L1XX.006991..TWCC")
		assert.Contains(t, out, "FRE.serviceName: null")
	})

	t.Run("json is indented", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewJSONCodec().Encode(result, &buf))
		assert.Contains(t, buf.String(), "\n  \"circuit_id\"")
	})
}
