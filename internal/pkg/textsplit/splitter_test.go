package textsplit

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_EmptyInput(t *testing.T) {
	chunks := Split("", 100, 20)
	require.NotNil(t, chunks)
	assert.Empty(t, chunks)

	assert.Empty(t, Split("\n\n   \n\n", 100, 20))
}

func TestSplit_SingleShortText(t *testing.T) {
	chunks := Split("A. B. C.", DefaultChunkSize, DefaultChunkOverlap)
	assert.Equal(t, []string{"A. B. C."}, chunks)
}

func TestSplit_PacksParagraphsUntilFull(t *testing.T) {
	text := "first paragraph\n\nsecond one\n\nthird"
	chunks := Split(text, 30, 5)

	// "first paragraph" (15) + "\n\n" + "second one" (10) = 27 fits, adding "third" would not.
	assert.Equal(t, []string{"first paragraph\n\nsecond one", "third"}, chunks)
}

func TestSplit_BlankLinesWithWhitespaceSeparateParagraphs(t *testing.T) {
	text := "alpha\n  \t\nbeta"
	chunks := Split(text, 5, 0)
	assert.Equal(t, []string{"alpha", "beta"}, chunks)
}

func TestSplit_LongParagraphFlushesPendingChunk(t *testing.T) {
	long := strings.Repeat("x", 25)
	text := "intro\n\n" + long + "\n\noutro"
	chunks := Split(text, 10, 3)

	require.Len(t, chunks, 6)
	assert.Equal(t, "intro", chunks[0])
	assert.Equal(t, "outro", chunks[len(chunks)-1])
	for _, c := range chunks[1:5] {
		assert.Equal(t, strings.Repeat("x", utf8.RuneCountInString(c)), c)
	}
}

func TestSplit_SlidingWindowReconstructsParagraph(t *testing.T) {
	paragraph := "abcdefghijklmnopqrstuvwxy" // 25 characters, no whitespace
	size, overlap := 10, 3

	chunks := Split(paragraph, size, overlap)
	require.Equal(t, []string{
		paragraph[0:10],
		paragraph[7:17],
		paragraph[14:24],
		paragraph[21:25],
	}, chunks)

	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for i := 1; i < len(chunks); i++ {
		require.Equal(t, chunks[i-1][len(chunks[i-1])-overlap:], chunks[i][:overlap], "consecutive windows must overlap")
		rebuilt.WriteString(chunks[i][overlap:])
	}
	assert.Equal(t, paragraph, rebuilt.String())
}

func TestSplit_WindowEndingExactlyAtParagraphEnd(t *testing.T) {
	paragraph := strings.Repeat("z", 17)
	chunks := Split(paragraph, 10, 3)
	assert.Equal(t, []string{strings.Repeat("z", 10), strings.Repeat("z", 10)}, chunks)
}

func TestSplit_CountsCharactersNotBytes(t *testing.T) {
	paragraph := strings.Repeat("é", 12)
	chunks := Split(paragraph, 10, 2)

	require.Len(t, chunks, 2)
	assert.Equal(t, 10, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 4, utf8.RuneCountInString(chunks[1]))
}

func TestSplit_NormalisesInvalidParameters(t *testing.T) {
	paragraph := strings.Repeat("q", 30)

	// Overlap not smaller than the chunk size falls back to half the chunk size.
	assert.Equal(t, Split(paragraph, 10, 5), Split(paragraph, 10, 10))
	// Negative overlap means no overlap.
	assert.Equal(t, []string{paragraph[:10], paragraph[10:20], paragraph[20:]}, Split(paragraph, 10, -4))
	// Non-positive size falls back to the default.
	assert.Equal(t, []string{paragraph}, Split(paragraph, 0, 0))
}

func TestSplit_ChunksAreBoundedTrimmedAndNonEmpty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	words := []string{"lorem", "ipsum", "dolor", "sit", "amet", "consectetur", "adipiscing", "elit"}

	for round := 0; round < 50; round++ {
		var b strings.Builder
		paragraphs := rng.Intn(20) + 1
		for p := 0; p < paragraphs; p++ {
			if p > 0 {
				b.WriteString("\n\n")
			}
			n := rng.Intn(200) + 1
			for w := 0; w < n; w++ {
				if w > 0 {
					b.WriteString(" ")
				}
				b.WriteString(words[rng.Intn(len(words))])
			}
		}
		size := rng.Intn(400) + 50
		overlap := rng.Intn(size)

		for _, chunk := range Split(b.String(), size, overlap) {
			assert.NotEmpty(t, chunk)
			assert.Equal(t, strings.TrimSpace(chunk), chunk)
			assert.LessOrEqual(t, utf8.RuneCountInString(chunk), size)
		}
	}
}
