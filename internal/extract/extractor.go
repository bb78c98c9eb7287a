// Package extract converts uploaded document bytes to plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/ragdesk/internal/models"
)

var (
	errEmptyFile   = errors.New("file is empty")
	errUnsupported = errors.New("unsupported binary format")
)

type extractFunc func(content []byte) (string, error)

// formats maps a lower-case extension to its extractor.
var formats = map[string]extractFunc{
	".pdf":  extractPDF,
	".docx": extractDOCX,
	".pptx": extractPPTX,
	".xlsx": extractExcel,
	".odp":  extractOpenDocument,
	".ods":  extractOpenDocument,
	".odt":  extractWithCat,
	".rtf":  extractWithCat,
	".txt":  extractPlain,
	".md":   extractPlain,
	".rst":  extractPlain,
	".csv":  extractPlain,
}

// Extractor extracts plain text from document bytes.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Base(path))
}

// ExtractBytes picks an extractor from the extension of fileName. Files with an unknown
// extension are read as text unless they look binary. Every failure is a
// *models.ExtractionError.
func (e *Extractor) ExtractBytes(content []byte, fileName string) (string, error) {
	if len(content) == 0 {
		return "", &models.ExtractionError{FileName: fileName, Err: errEmptyFile}
	}
	fn, ok := formats[strings.ToLower(filepath.Ext(fileName))]
	if !ok {
		if bytes.IndexByte(content, 0) >= 0 {
			return "", &models.ExtractionError{FileName: fileName, Err: errUnsupported}
		}
		fn = extractPlain
	}
	text, err := fn(content)
	if err != nil {
		return "", &models.ExtractionError{FileName: fileName, Err: err}
	}
	return text, nil
}

// Supported reports whether fileName has an extension with a dedicated extractor.
func Supported(fileName string) bool {
	_, ok := formats[strings.ToLower(filepath.Ext(fileName))]
	return ok
}

// Extensions lists the extensions with a dedicated extractor, sorted.
func Extensions() []string {
	out := make([]string, 0, len(formats))
	for ext := range formats {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
