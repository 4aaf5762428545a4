package textextract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// DecodeError reports content that cannot be turned into plain text.
type DecodeError struct {
	MIME string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.MIME != "" {
		return fmt.Sprintf("decode content failed: unsupported content type %s", e.MIME)
	}
	return fmt.Sprintf("decode content failed: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode converts raw bytes into UTF-8 text. Null bytes are removed and invalid UTF-8 sequences
// are replaced with U+FFFD. Content that sniffs as a known non-text format (PDF, images,
// archives) yields a *DecodeError. Content the sniffer cannot place is still accepted when it is
// valid UTF-8, so text with a stray control byte decodes.
func Decode(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	cleaned := bytes.ReplaceAll(data, []byte{0}, nil)
	if len(cleaned) == 0 {
		return "", nil
	}

	if mime := DetectMIME(cleaned); !IsText(mime) && !(isUnknown(mime) && utf8.Valid(cleaned)) {
		return "", &DecodeError{MIME: mime.String()}
	}

	return strings.ToValidUTF8(string(cleaned), "�"), nil
}

// DetectMIME sniffs the content type of data.
func DetectMIME(data []byte) *mimetype.MIME {
	return mimetype.Detect(data)
}

// IsText reports whether mime is text/plain or one of its descendants (json, csv, html, ...).
func IsText(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// isUnknown reports whether the sniffer fell back to the generic binary type.
func isUnknown(mime *mimetype.MIME) bool {
	return mime.Parent() == nil
}
