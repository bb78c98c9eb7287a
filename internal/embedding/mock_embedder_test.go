package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/ragdesk/pkg/utils"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "Hello world")
	b, _ := e.Embed(ctx, "hello, WORLD!")
	if len(a) != 64 {
		t.Fatalf("dims = %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("case and punctuation should not change the embedding")
		}
	}
	if n := utils.Norm(a); math.Abs(n-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", n)
	}
}

func TestMockEmbedder_SharedWordsAreSimilar(t *testing.T) {
	e := NewMockEmbedder(1536)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "test")
	near, _ := e.Embed(ctx, " a test.")
	far, _ := e.Embed(ctx, "Hello worl")
	if utils.Dot(q, near) <= utils.Dot(q, far) {
		t.Errorf("shared word should score higher: near=%f far=%f", utils.Dot(q, near), utils.Dot(q, far))
	}
	if utils.Dot(q, near) < 0.5 {
		t.Errorf("near score = %f, want >= 0.5", utils.Dot(q, near))
	}
}

func TestMockEmbedder_FailWith(t *testing.T) {
	boom := errors.New("down")
	e := NewMockEmbedder(8).FailWith(boom)
	if _, err := e.EmbedBatch(context.Background(), []string{"x"}); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}
}
