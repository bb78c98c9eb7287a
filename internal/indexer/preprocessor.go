package indexer

import (
	"regexp"
	"strings"
)

var atxHeader = regexp.MustCompile(`(?m)^ {0,3}#{1,6}[ \t]+`)

// Preprocess normalises line endings and trims the text. Chunk offsets refer to its output.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

// StripHeaders removes Markdown ATX header markers ("# " to "###### ") at line starts,
// keeping the header text.
func StripHeaders(text string) string {
	return atxHeader.ReplaceAllString(text, "")
}
