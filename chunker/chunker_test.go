package chunker

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hubenschmidt/go-retrieve/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "overlap equals size", cfg: Config{ChunkSize: 10, ChunkOverlap: 10}},
		{name: "overlap exceeds size", cfg: Config{ChunkSize: 10, ChunkOverlap: 11}},
		{name: "negative overlap", cfg: Config{ChunkSize: 10, ChunkOverlap: -1}},
		{name: "zero size", cfg: Config{ChunkSize: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, core.ErrInvalidConfig)
		})
	}

	_, err := New(DefaultConfig())
	assert.NoError(t, err)
}

func TestSplitTextEmpty(t *testing.T) {
	c := mustNew(t, 40, 8)
	assert.Empty(t, c.SplitText(""))
	assert.Empty(t, c.SplitText("   \n\t\r\n  "))
}

func TestSplitTextWithOverlap(t *testing.T) {
	c := mustNew(t, 40, 8)
	got := c.SplitText("Alpha. Beta is here. Gamma delta epsilon. Zeta.")
	assert.Equal(t, []string{
		"Alpha. Beta is here.",
		"is here. Gamma delta epsilon. Zeta.",
	}, got)
}

func TestSplitTextZeroOverlap(t *testing.T) {
	c := mustNew(t, 40, 0)
	got := c.SplitText("Alpha. Beta is here. Gamma delta epsilon. Zeta.")
	assert.Equal(t, []string{
		"Alpha. Beta is here.",
		"Gamma delta epsilon. Zeta.",
	}, got)
}

func TestSplitTextSingleChunkUnchanged(t *testing.T) {
	c := mustNew(t, 100, 10)
	assert.Equal(t, []string{"One. Two? Three!"}, c.SplitText("One.   Two?\tThree!"))
}

func TestSplitTextNewlinesAndLineEndings(t *testing.T) {
	c := mustNew(t, 8, 0)
	got := c.SplitText("line one\r\nline two\rline 3\n\n\nend")
	assert.Equal(t, []string{"line one", "line two", "line 3", "end"}, got)

	c = mustNew(t, 100, 0)
	assert.Equal(t, []string{"line one line two"}, c.SplitText("line one\r\n\r\nline two"))
}

func TestSplitTextPunctuationNeedsWhitespace(t *testing.T) {
	c := mustNew(t, 14, 0)
	got := c.SplitText("v1.2.3 is out. Yes")
	assert.Equal(t, []string{"v1.2.3 is out.", "Yes"}, got)
}

func TestSplitTextHardSplitsLongSentence(t *testing.T) {
	c := mustNew(t, 10, 0)
	got := c.SplitText("Hi. abcdefghijklmnopqrstuvwxyz. Bye.")
	assert.Equal(t, []string{"Hi.", "abcdefghij", "klmnopqrst", "uvwxyz.", "Bye."}, got)
}

func TestSplitTextSlidingWindowWithOverlap(t *testing.T) {
	c := mustNew(t, 10, 3)
	got := c.SplitText("abcdefghijklmnopqrstuvwxyz")
	assert.Equal(t, []string{
		"abcdefghij",
		"hij hijklmnopq",
		"opq opqrstuvwx",
		"vwx vwxyz",
	}, got)
}

func TestSplitTextCountsRunes(t *testing.T) {
	c := mustNew(t, 5, 0)
	got := c.SplitText("héllo wörld")
	assert.Equal(t, []string{"héllo", " wörl", "d"}, got)
	for _, chunk := range got {
		assert.True(t, utf8.ValidString(chunk))
	}
}

func TestSplitTextLengthBound(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	words := []string{"a", "tiny", "word.", "sentence!", "really-long-token-without-breaks", "why?", "\n", "ok"}

	for round := 0; round < 100; round++ {
		size := 5 + rng.Intn(60)
		overlap := rng.Intn(size)
		c := mustNew(t, size, overlap)

		var sb strings.Builder
		for i := 0; i < 5+rng.Intn(80); i++ {
			sb.WriteString(words[rng.Intn(len(words))])
			sb.WriteByte(' ')
		}

		for _, chunk := range c.SplitText(sb.String()) {
			n := utf8.RuneCountInString(chunk)
			assert.LessOrEqual(t, n, size+overlap+1, "size=%d overlap=%d chunk=%q", size, overlap, chunk)
			assert.NotEmpty(t, strings.TrimSpace(chunk))
		}
	}
}

func TestSplitToDocuments(t *testing.T) {
	c := mustNew(t, 40, 8)
	text := "Alpha. Beta is here. Gamma delta epsilon. Zeta."

	docs := c.SplitToDocuments(text, "guide", map[string]any{"source": "guide.md"})
	require.Len(t, docs, 2)
	assert.Equal(t, "guide::0", docs[0].ID)
	assert.Equal(t, "guide::1", docs[1].ID)
	assert.Equal(t, "is here. Gamma delta epsilon. Zeta.", docs[1].Content)
	assert.Equal(t, map[string]any{"source": "guide.md", MetadataChunkIndex: 1}, docs[1].Metadata)

	docs = c.SplitToDocuments(text, "", nil)
	require.Len(t, docs, 2)
	assert.Empty(t, docs[0].ID)
	assert.Equal(t, 0, docs[0].Metadata[MetadataChunkIndex])

	assert.Empty(t, c.SplitToDocuments("", "x", nil))
}

func mustNew(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := New(Config{ChunkSize: size, ChunkOverlap: overlap})
	require.NoError(t, err)
	return c
}
