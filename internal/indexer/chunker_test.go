package indexer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hyperjump/ragdesk/internal/models"
)

func mustChunker(t *testing.T, opts ChunkOptions) *Chunker {
	t.Helper()
	c, err := NewChunker(opts)
	if err != nil {
		t.Fatalf("NewChunker(%+v): %v", opts, err)
	}
	return c
}

// checkCoverage asserts the chunk invariants: sequential indexes, offsets matching the text,
// size bound, and no gaps from the first to the last rune.
func checkCoverage(t *testing.T, chunks []*models.DocumentChunk, text string, size int) {
	t.Helper()
	runes := []rune(text)
	if len(chunks) == 0 {
		t.Fatal("no chunks")
	}
	if chunks[0].StartOffset != 0 {
		t.Errorf("first chunk starts at %d", chunks[0].StartOffset)
	}
	if last := chunks[len(chunks)-1]; last.EndOffset != len(runes) {
		t.Errorf("last chunk ends at %d, text has %d runes", last.EndOffset, len(runes))
	}
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, ch.ChunkIndex)
		}
		n := utf8.RuneCountInString(ch.Text)
		if ch.EndOffset-ch.StartOffset != n {
			t.Errorf("chunk %d offsets [%d,%d) do not match %d runes", i, ch.StartOffset, ch.EndOffset, n)
		}
		if n > size {
			t.Errorf("chunk %d has %d runes, size is %d", i, n, size)
		}
		if string(runes[ch.StartOffset:ch.EndOffset]) != ch.Text {
			t.Errorf("chunk %d text %q does not match source slice", i, ch.Text)
		}
		if i > 0 && ch.StartOffset > chunks[i-1].EndOffset {
			t.Errorf("gap between chunk %d and %d", i-1, i)
		}
		if i > 0 && ch.StartOffset <= chunks[i-1].StartOffset {
			t.Errorf("chunk %d does not advance", i)
		}
	}
}

func TestNewChunker_Invalid(t *testing.T) {
	for _, opts := range []ChunkOptions{
		{Size: 0, Overlap: 0},
		{Size: -1, Overlap: 0},
		{Size: 10, Overlap: -1},
		{Size: 10, Overlap: 10},
		{Size: 10, Overlap: 12},
	} {
		if _, err := NewChunker(opts); err == nil {
			t.Errorf("NewChunker(%+v) should fail", opts)
		}
	}
}

func TestChunker_SentenceExample(t *testing.T) {
	text := "Hello world. This is a test."
	chunks := mustChunker(t, ChunkOptions{Size: 10, Overlap: 5}).Chunk("doc", text)

	want := []struct {
		start int
		text  string
	}{
		{0, "Hello worl"},
		{5, " world. Th"},
		{10, "d. This is"},
		{15, "s is a tes"},
		{20, " a test."},
	}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i, w := range want {
		if chunks[i].StartOffset != w.start || chunks[i].Text != w.text {
			t.Errorf("chunk %d = (%d, %q), want (%d, %q)", i, chunks[i].StartOffset, chunks[i].Text, w.start, w.text)
		}
		if chunks[i].SourceDocumentID != "doc" {
			t.Errorf("chunk %d document id %q", i, chunks[i].SourceDocumentID)
		}
	}
	if id := chunks[4].RecordID(); id != "doc_chunk_4" {
		t.Errorf("record id = %q", id)
	}
	checkCoverage(t, chunks, text, 10)
}

func TestChunker_Coverage(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	for _, opts := range []ChunkOptions{
		{Size: 1, Overlap: 0},
		{Size: 7, Overlap: 3},
		{Size: 100, Overlap: 0},
		{Size: 100, Overlap: 99},
		{Size: 5000, Overlap: 10},
		{Size: 64, Overlap: 16, Separator: ". "},
		{Size: 64, Overlap: 60, Separator: " "},
	} {
		chunks := mustChunker(t, opts).Chunk("d", text)
		checkCoverage(t, chunks, text, opts.Size)
	}
}

func TestChunker_ShortText(t *testing.T) {
	chunks := mustChunker(t, ChunkOptions{Size: 100, Overlap: 10}).Chunk("d", "short")
	if len(chunks) != 1 || chunks[0].Text != "short" || chunks[0].EndOffset != 5 {
		t.Errorf("unexpected chunks %+v", chunks)
	}
}

func TestChunker_Empty(t *testing.T) {
	c := mustChunker(t, ChunkOptions{Size: 5, Overlap: 1})
	for _, text := range []string{"", "   \n\t  "} {
		chunks := c.Chunk("d", text)
		if chunks == nil || len(chunks) != 0 {
			t.Errorf("Chunk(%q) = %v, want empty slice", text, chunks)
		}
	}
}

func TestChunker_RuneOffsets(t *testing.T) {
	text := "日本語のテキストを分割します"
	chunks := mustChunker(t, ChunkOptions{Size: 4, Overlap: 1}).Chunk("jp", text)
	if chunks[0].Text != "日本語の" {
		t.Errorf("first chunk %q", chunks[0].Text)
	}
	checkCoverage(t, chunks, text, 4)
}

func TestChunker_Separator(t *testing.T) {
	text := "One two three. Four five six. Seven eight nine."
	chunks := mustChunker(t, ChunkOptions{Size: 20, Overlap: 0, Separator: ". "}).Chunk("d", text)
	if chunks[0].Text != "One two three. " {
		t.Errorf("first chunk %q should end after the separator", chunks[0].Text)
	}
	if chunks[1].StartOffset != chunks[0].EndOffset {
		t.Errorf("without overlap the next chunk starts at the previous end")
	}
	checkCoverage(t, chunks, text, 20)
}

func TestChunker_SeparatorOnlyInFrontHalf(t *testing.T) {
	text := "ab. cdefghijklmnopqrstuvwxyz"
	chunks := mustChunker(t, ChunkOptions{Size: 10, Overlap: 2, Separator: ". "}).Chunk("d", text)
	if chunks[0].Text != "ab. cdefgh" {
		t.Errorf("separator in the front half should be ignored, got %q", chunks[0].Text)
	}
	checkCoverage(t, chunks, text, 10)
}

func TestChunker_Deterministic(t *testing.T) {
	c := mustChunker(t, ChunkOptions{Size: 12, Overlap: 4, Separator: " "})
	text := "deterministic chunking gives identical output on every call"
	a, b := c.Chunk("d", text), c.Chunk("d", text)
	if len(a) != len(b) {
		t.Fatal("chunk counts differ")
	}
	for i := range a {
		if *a[i] != *b[i] {
			t.Errorf("chunk %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestChunker_StripHeaders(t *testing.T) {
	text := "# Title\nBody line\n### Sub\nMore"
	chunks := mustChunker(t, ChunkOptions{Size: 100, Overlap: 0, StripHeaders: true}).Chunk("d", text)
	if chunks[0].Text != "Title\nBody line\nSub\nMore" {
		t.Errorf("got %q", chunks[0].Text)
	}
	checkCoverage(t, chunks, StripHeaders(text), 100)
}
