// ABOUTME: Assembler joins processed chunks back into a single document
// ABOUTME: Re-attaches original headers and keeps one section per chunk in index order
package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harper/anonymizer/internal/models"
)

// DefaultSectionSeparator is the line break consumed by the chunker between sections
const DefaultSectionSeparator = "\n"

// ErrIncompleteResults is returned when results do not line up with chunks
var ErrIncompleteResults = errors.New("results do not cover every chunk")

// Assembler reconstructs output text from chunks and their results
type Assembler struct {
	separator string
}

// NewAssembler creates an Assembler ("" means DefaultSectionSeparator)
func NewAssembler(separator string) *Assembler {
	if separator == "" {
		separator = DefaultSectionSeparator
	}
	return &Assembler{separator: separator}
}

// Assemble requires exactly one result per chunk and emits one section per chunk
func (a *Assembler) Assemble(chunks []models.Chunk, results []models.ChunkResult) (string, error) {
	byIndex, err := indexResults(chunks, results)
	if err != nil {
		return "", err
	}
	if len(byIndex) != len(chunks) {
		return "", fmt.Errorf("%w: %d results for %d chunks", ErrIncompleteResults, len(byIndex), len(chunks))
	}

	sections := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		sections = append(sections, section(chunk.HeaderText, byIndex[chunk.Index].OutputText))
	}
	return strings.Join(sections, a.separator), nil
}

// AssemblePartial emits sections only for chunks that have a result, in index order.
// Used for cancelled runs when the caller asks for what was processed so far.
func (a *Assembler) AssemblePartial(chunks []models.Chunk, results []models.ChunkResult) (string, error) {
	byIndex, err := indexResults(chunks, results)
	if err != nil {
		return "", err
	}

	sections := make([]string, 0, len(byIndex))
	for _, chunk := range chunks {
		res, ok := byIndex[chunk.Index]
		if !ok {
			continue
		}
		sections = append(sections, section(chunk.HeaderText, res.OutputText))
	}
	return strings.Join(sections, a.separator), nil
}

func indexResults(chunks []models.Chunk, results []models.ChunkResult) (map[int]models.ChunkResult, error) {
	byIndex := make(map[int]models.ChunkResult, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(chunks) {
			return nil, fmt.Errorf("%w: result index %d out of range", ErrIncompleteResults, res.Index)
		}
		if _, dup := byIndex[res.Index]; dup {
			return nil, fmt.Errorf("%w: duplicate result for chunk %d", ErrIncompleteResults, res.Index)
		}
		byIndex[res.Index] = res
	}
	return byIndex, nil
}

// section renders a header line followed by its text, omitting whichever side is empty
func section(header, text string) string {
	switch {
	case header == "":
		return text
	case text == "":
		return header
	default:
		return header + "\n" + text
	}
}
