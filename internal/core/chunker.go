// ABOUTME: Chunker splits document text into header-delimited sections
// ABOUTME: Falls back to a single whole-document chunk when no header is present
package core

import (
	"errors"
	"strings"

	"github.com/harper/anonymizer/internal/models"
)

// DefaultHeaderDelimiter starts a new section when it opens a line
const DefaultHeaderDelimiter = "#"

// ErrEmptyDocument is returned for documents with no non-whitespace content
var ErrEmptyDocument = errors.New("document is empty")

// Chunker handles structural document splitting
type Chunker struct {
	delimiter string
}

// NewChunker creates a Chunker for the given header delimiter ("" means "#")
func NewChunker(delimiter string) *Chunker {
	if delimiter == "" {
		delimiter = DefaultHeaderDelimiter
	}
	return &Chunker{delimiter: delimiter}
}

// Delimiter returns the header delimiter in use
func (c *Chunker) Delimiter() string {
	return c.delimiter
}

// Split divides text into ordered chunks.
// Text before the first header becomes chunk 0 with an empty header, but only if it is
// not blank. Header-only sections are kept with an empty body.
func (c *Chunker) Split(text string) ([]models.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	var (
		chunks  []models.Chunk
		header  string
		body    []string
		started bool // a header has been seen
	)

	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		if started || content != "" {
			chunks = append(chunks, models.Chunk{
				Index:      len(chunks),
				HeaderText: header,
				Body:       content,
			})
		}
		body = body[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if c.IsHeader(line) {
			flush()
			header = line
			started = true
			continue
		}
		body = append(body, line)
	}
	flush()

	return chunks, nil
}

// IsHeader reports whether a line opens a new section: after leading whitespace it
// starts with one or more delimiters followed by a space, a tab, or the end of the line.
// Markdown subheadings ("## Sub") are headers; "#hashtag" is not.
func (c *Chunker) IsHeader(line string) bool {
	rest := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(rest, c.delimiter) {
		return false
	}
	for strings.HasPrefix(rest, c.delimiter) {
		rest = rest[len(c.delimiter):]
	}
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}
