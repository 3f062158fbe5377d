// ABOUTME: Document is the raw text handed to the anonymization pipeline
// ABOUTME: Tracks the source format so callers know how the text was extracted
package models

import (
	"path/filepath"
	"strings"
)

// Format identifies the file format a document's text was extracted from
type Format string

const (
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
	FormatDocx     Format = "docx"
)

// Document is immutable input text plus its source format tag
type Document struct {
	Name   string `json:"name"`
	Format Format `json:"format"`
	Text   string `json:"text"`
}

// NewDocument creates a plain-text document
func NewDocument(name, text string) Document {
	return Document{
		Name:   name,
		Format: FormatFromPath(name),
		Text:   text,
	}
}

// FormatFromPath guesses the format from a file extension, defaulting to plain text
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".docx":
		return FormatDocx
	default:
		return FormatText
	}
}
