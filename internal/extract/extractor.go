// Package extract turns supplier reply files (emails, PDFs, spreadsheets, documents)
// into plain text for quote analysis.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultMaxBytes caps the size of a reply file read from disk.
const DefaultMaxBytes = 20 << 20

// ErrUnsupported is returned for file types that cannot hold a quote.
var ErrUnsupported = errors.New("unsupported reply format")

// Document is the text of one supplier reply plus whatever sender details the format carries.
type Document struct {
	Text       string `json:"text"`
	Format     string `json:"format"`
	Subject    string `json:"subject,omitempty"`
	Sender     string `json:"sender,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
}

type extractFunc func(content []byte) (*Document, error)

// Extractor extracts reply text from files.
type Extractor struct {
	maxBytes int64
	formats  map[string]extractFunc
}

// NewExtractor returns an Extractor for .eml, .pdf, .docx, .xlsx and plain text files.
func NewExtractor() *Extractor {
	e := &Extractor{maxBytes: DefaultMaxBytes}
	e.formats = map[string]extractFunc{
		".eml":  extractEmail,
		".pdf":  textOnly("pdf", extractPDF),
		".docx": textOnly("docx", extractDOCX),
		".xlsx": textOnly("xlsx", extractExcel),
		".txt":  textOnly("text", extractPlain),
		".md":   textOnly("text", extractPlain),
		"":      textOnly("text", extractPlain),
	}
	return e
}

// WithMaxBytes sets the largest file Extract will read.
func (e *Extractor) WithMaxBytes(n int64) *Extractor {
	if n > 0 {
		e.maxBytes = n
	}
	return e
}

// Extensions lists the supported file extensions, with the leading dot.
func (e *Extractor) Extensions() []string {
	out := make([]string, 0, len(e.formats))
	for ext := range e.formats {
		if ext != "" {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}

// Supports reports whether files with the given extension can be extracted.
func (e *Extractor) Supports(ext string) bool {
	_, ok := e.formats[strings.ToLower(ext)]
	return ok
}

// Extract reads the file at path and returns its reply text.
func (e *Extractor) Extract(path string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !e.Supports(ext) {
		return nil, fmt.Errorf("%s: %w", ext, ErrUnsupported)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > e.maxBytes {
		return nil, fmt.Errorf("file %s is %d bytes, limit is %d", filepath.Base(path), info.Size(), e.maxBytes)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts reply text from content. ext includes the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (*Document, error) {
	fn, ok := e.formats[strings.ToLower(ext)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ext, ErrUnsupported)
	}
	doc, err := fn(content)
	if err != nil {
		return nil, err
	}
	doc.Text = normalizeWhitespace(doc.Text)
	return doc, nil
}

func textOnly(format string, fn func([]byte) (string, error)) extractFunc {
	return func(content []byte) (*Document, error) {
		text, err := fn(content)
		if err != nil {
			return nil, err
		}
		return &Document{Text: text, Format: format}, nil
	}
}

// normalizeWhitespace unifies line endings, trims trailing spaces and collapses
// runs of blank lines so prompts stay compact.
func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
