package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"b": 1,
		"a": "x",
		"c": true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1,"c":true}`, string(got))
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+10000 encodes as a surrogate pair (0xD800 ...) which sorts before
	// U+E000 in UTF-16 but after it in UTF-8 byte order.
	got, err := MarshalCanonical(map[string]any{
		"\ue000":     1,
		"\U00010000": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\ue000\":1}", string(got))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical("<a&b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a&b>"`, string(got))
}

func TestMarshalCanonical_LineSeparatorsLiteral(t *testing.T) {
	got, err := MarshalCanonical("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))
}

func TestMarshalCanonical_EscapedBackslashKept(t *testing.T) {
	// A literal backslash followed by "u2028" is text, not an escape.
	got, err := MarshalCanonical(`\u2028`)
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(got))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	decomposed := "e\u0301"
	got, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{"nil", nil},
		{"float", 1.5},
		{"nested float", map[string]any{"x": []any{float32(2)}}},
		{"struct", struct{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestMarshalCanonical_Nested(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"list": []any{int64(3), "x", map[string]string{"z": "1", "y": "2"}},
		"tags": []string{"b", "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"list":[3,"x",{"y":"2","z":"1"}],"tags":["b","a"]}`, string(got))
}

func TestMarshalCanonical_Canonicalizer(t *testing.T) {
	d := Dispatch{Node: "n", EntityName: "t", EntityKind: "timer", GroupKind: "mutually_exclusive", Seq: 1, EndSeq: 2, Outcome: OutcomeOK}
	got, err := MarshalCanonical(d)
	require.NoError(t, err)
	assert.Contains(t, string(got), `"entity":"t"`)
	assert.Contains(t, string(got), `"outcome":"ok"`)
}
