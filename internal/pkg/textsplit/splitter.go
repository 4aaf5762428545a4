// Package textsplit breaks document text into bounded, overlapping chunks.
package textsplit

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	paragraphSeparator = "\n\n"
)

var paragraphBoundary = regexp.MustCompile(`\n\s*\n`)

// Split cuts text into chunks of at most chunkSize characters. Paragraphs are packed together
// until the next one would overflow; a paragraph that is longer than chunkSize on its own is cut
// with a sliding window that advances by chunkSize-chunkOverlap.
func Split(text string, chunkSize, chunkOverlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}

	chunks := make([]string, 0)
	if text == "" {
		return chunks
	}

	emit := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			chunks = append(chunks, s)
		}
	}

	var current strings.Builder
	currentLen := 0
	flush := func() {
		if currentLen > 0 {
			emit(current.String())
		}
		current.Reset()
		currentLen = 0
	}

	for _, paragraph := range paragraphBoundary.Split(text, -1) {
		if strings.TrimSpace(paragraph) == "" {
			continue
		}
		paragraphLen := utf8.RuneCountInString(paragraph)

		switch {
		case paragraphLen > chunkSize:
			flush()
			for _, window := range slide(paragraph, chunkSize, chunkOverlap) {
				emit(window)
			}
		case currentLen > 0 && currentLen+len(paragraphSeparator)+paragraphLen > chunkSize:
			flush()
			current.WriteString(paragraph)
			currentLen = paragraphLen
		default:
			if currentLen > 0 {
				current.WriteString(paragraphSeparator)
				currentLen += len(paragraphSeparator)
			}
			current.WriteString(paragraph)
			currentLen += paragraphLen
		}
	}
	flush()

	return chunks
}

// slide returns windows of width size over s, each starting size-overlap characters after the
// previous one. The final window ends at the end of s and may be shorter.
func slide(s string, size, overlap int) []string {
	runes := []rune(s)
	step := size - overlap
	windows := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		windows = append(windows, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return windows
}
