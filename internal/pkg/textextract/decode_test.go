package textextract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_PlainText(t *testing.T) {
	text, err := Decode([]byte("hello\n\nworld"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n\nworld", text)
}

func TestDecode_StripsNullBytes(t *testing.T) {
	text, err := Decode([]byte("he\x00llo\x00 there"))
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
}

func TestDecode_Empty(t *testing.T) {
	text, err := Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, text)

	text, err = Decode([]byte{0, 0, 0})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestDecode_JSONIsText(t *testing.T) {
	text, err := Decode([]byte(`{"title": "notes", "body": "plain"}`))
	require.NoError(t, err)
	assert.Contains(t, text, "notes")
}

func TestDecode_RejectsPDF(t *testing.T) {
	_, err := Decode([]byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog >>\nendobj\n"))
	require.Error(t, err)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "application/pdf", decodeErr.MIME)
	assert.Contains(t, err.Error(), "application/pdf")
}

func TestDecode_RejectsPNG(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0x00, 0x00, 0x0d, 'I', 'H', 'D', 'R', 0x01, 0x02}
	_, err := Decode(png)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "image/png", decodeErr.MIME)
}

func TestDecode_TextWithControlBytes(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "vertical tab", input: "col\x0bvalue\n"},
		{name: "start of heading", input: "header\x01\nbody line"},
		{name: "form feed between pages", input: "page one\x0cpage two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.input, text)
		})
	}
}

func TestDecode_RejectsUnknownBinary(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x80, 0x81, 0x02, 0xc3, 0x28, 0x03})

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "application/octet-stream", decodeErr.MIME)
}
