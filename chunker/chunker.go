// Package chunker splits text into overlapping chunks sized for embedding.
//
// Text is cut into sentence-like units, greedily packed into chunks of at
// most ChunkSize runes, and each chunk after the first is prefixed with the
// tail of its predecessor so that context carries across boundaries.
package chunker

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hubenschmidt/go-retrieve/core"
	"github.com/hubenschmidt/go-retrieve/vector"
)

// MetadataChunkIndex is the metadata key SplitToDocuments sets on each chunk.
const MetadataChunkIndex = "chunk_index"

// Config sizes chunks. Lengths are counted in runes.
type Config struct {
	ChunkSize    int `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"`
}

// DefaultConfig returns 1000-rune chunks with a 200-rune overlap.
func DefaultConfig() Config {
	return Config{ChunkSize: 1000, ChunkOverlap: 200}
}

// Validate reports a configuration that cannot make progress.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return core.InvalidConfig("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return core.InvalidConfig("chunk overlap must not be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return core.InvalidConfig("chunk overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Chunker splits text according to a validated Config.
type Chunker struct {
	size    int
	overlap int
}

// New returns a Chunker or ErrInvalidConfig.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{size: cfg.ChunkSize, overlap: cfg.ChunkOverlap}, nil
}

// SplitText returns the chunks of text in order. Empty or blank text yields
// no chunks.
func (c *Chunker) SplitText(text string) []string {
	chunks := c.segment(splitSentences(text))
	if c.overlap == 0 || len(chunks) < 2 {
		return chunks
	}
	return c.withOverlap(chunks)
}

// SplitToDocuments chunks text into documents. With a baseID each document
// gets the id "{baseID}::{index}"; without one the id is left for the store
// to generate. metadata is copied into every document.
func (c *Chunker) SplitToDocuments(text, baseID string, metadata map[string]any) []vector.Document {
	chunks := c.SplitText(text)
	docs := make([]vector.Document, len(chunks))
	for i, chunk := range chunks {
		meta := make(map[string]any, len(metadata)+1)
		for k, v := range metadata {
			meta[k] = v
		}
		meta[MetadataChunkIndex] = i

		docs[i] = vector.Document{Content: chunk, Metadata: meta}
		if baseID != "" {
			docs[i].ID = baseID + "::" + strconv.Itoa(i)
		}
	}
	return docs
}

// segment packs sentences greedily into chunks of at most size runes.
// A sentence longer than size is cut into sliding windows instead.
func (c *Chunker) segment(sentences []string) []string {
	var chunks []string
	var buf string
	bufLen := 0

	flush := func() {
		if bufLen > 0 {
			chunks = append(chunks, buf)
		}
		buf, bufLen = "", 0
	}

	for _, s := range sentences {
		n := utf8.RuneCountInString(s)
		switch {
		case n > c.size:
			flush()
			chunks = append(chunks, c.window(s)...)
		case bufLen == 0:
			buf, bufLen = s, n
		case bufLen+n+1 <= c.size:
			buf += " " + s
			bufLen += n + 1
		default:
			flush()
			buf, bufLen = s, n
		}
	}
	flush()
	return chunks
}

// window hard-splits s into size-rune windows advancing by size-overlap.
func (c *Chunker) window(s string) []string {
	runes := []rune(s)
	step := c.size - c.overlap

	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+c.size, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// withOverlap prefixes every chunk after the first with the trailing
// overlap runes of the previous, unprefixed chunk.
func (c *Chunker) withOverlap(chunks []string) []string {
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := string(prev[len(prev)-min(c.overlap, len(prev)):])
		out[i] = tail + " " + chunks[i]
	}
	return out
}

// splitSentences normalises line endings and cuts text after '.', '?' or
// '!' followed by whitespace, and at every newline. Units are trimmed and
// blank ones dropped.
func splitSentences(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var units []string
	emit := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			units = append(units, s)
		}
	}

	runes := []rune(text)
	start := 0
	for i, r := range runes {
		switch {
		case r == '\n':
			emit(string(runes[start:i]))
			start = i + 1
		case (r == '.' || r == '?' || r == '!') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]):
			emit(string(runes[start : i+1]))
			start = i + 1
		}
	}
	emit(string(runes[start:]))
	return units
}
