// Package fileid derives document ids for ingested files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Strategy selects how a document id is derived from an upload.
type Strategy string

const (
	// StrategyFilename uses the base file name, so re-uploading a name replaces its chunks.
	StrategyFilename Strategy = "filename"
	// StrategyContentHash uses a digest of the bytes; identical files share an id.
	StrategyContentHash Strategy = "content_hash"
	// StrategyUUID gives every upload a fresh id.
	StrategyUUID Strategy = "uuid"
)

const hashPrefix = "sha256-"

// ParseStrategy accepts the configured strategy name. Empty means filename.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return StrategyFilename, nil
	case StrategyFilename, StrategyContentHash, StrategyUUID:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown document id strategy %q", s)
}

// DocumentID returns the id for an upload of content named fileName.
func (s Strategy) DocumentID(fileName string, content []byte) string {
	switch s {
	case StrategyContentHash:
		return ContentHash(content)
	case StrategyUUID:
		return uuid.NewString()
	default:
		return FromFileName(fileName)
	}
}

// FromFileName returns the base name of fileName with path separators removed, or
// "document" when nothing is left.
func FromFileName(fileName string) string {
	name := filepath.Base(filepath.Clean(strings.ReplaceAll(fileName, `\`, "/")))
	name = strings.TrimSpace(name)
	if name == "." || name == "/" || name == "" {
		return "document"
	}
	return name
}

// ContentHash returns a stable id for content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hashPrefix + hex.EncodeToString(sum[:])
}
