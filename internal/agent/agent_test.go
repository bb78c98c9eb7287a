package agent

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/hyperjump/ragdesk/internal/models"
	"github.com/hyperjump/ragdesk/internal/search"
	"github.com/hyperjump/ragdesk/internal/sources"
)

// scriptedQuerier returns canned responses per query text and records the requests it got.
type scriptedQuerier struct {
	responses map[string]*search.QueryResponse
	fail      error
	got       []search.QueryRequest
}

func (q *scriptedQuerier) Query(_ context.Context, req search.QueryRequest) (*search.QueryResponse, error) {
	q.got = append(q.got, req)
	if q.fail != nil {
		return nil, q.fail
	}
	if resp, ok := q.responses[req.Query]; ok {
		return resp, nil
	}
	return search.EmptyResponse(req), nil
}

func chunk(i int, text string) search.Chunk {
	return search.Chunk{Text: text, Score: 0.5, ChunkIndex: &i}
}

func TestVectorQueryTool_Metadata(t *testing.T) {
	tool := NewVectorQueryTool(&scriptedQuerier{})
	if tool.Name() != "vector_query" || tool.Description() == "" {
		t.Errorf("name %q description %q", tool.Name(), tool.Description())
	}
	var schema struct {
		Properties map[string]struct {
			Type    string `json:"type"`
			Default any    `json:"default"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if schema.Properties["query"].Type != "string" || schema.Properties["topK"].Type != "integer" || schema.Properties["minScore"].Type != "number" {
		t.Errorf("unexpected property types %+v", schema.Properties)
	}
	if schema.Properties["topK"].Default != float64(5) || schema.Properties["minScore"].Default != 0.1 {
		t.Errorf("unexpected defaults %+v", schema.Properties)
	}
	if !reflect.DeepEqual(schema.Required, []string{"query"}) {
		t.Errorf("required = %v", schema.Required)
	}
}

func TestVectorQueryTool_Call(t *testing.T) {
	q := &scriptedQuerier{}
	tool := NewVectorQueryTool(q)
	if _, err := tool.Call(context.Background(), json.RawMessage(`{"query":"refunds","topK":3,"minScore":0.25}`)); err != nil {
		t.Fatal(err)
	}
	req := q.got[0]
	if req.Query != "refunds" || req.TopK != 3 || req.MinScore == nil || *req.MinScore != 0.25 {
		t.Errorf("decoded request %+v", req)
	}
}

func TestParseArguments_Invalid(t *testing.T) {
	for _, raw := range []string{``, `[]`, `{"query": 1}`, `{"query":"q","topK":2.5}`, `{"query":"q","extra":true}`} {
		if _, err := ParseArguments(json.RawMessage(raw)); !errors.Is(err, ErrInvalidArguments) {
			t.Errorf("ParseArguments(%s) = %v, want ErrInvalidArguments", raw, err)
		}
	}
}

func TestTurn_DeduplicatesAcrossInvocations(t *testing.T) {
	q := &scriptedQuerier{responses: map[string]*search.QueryResponse{
		"first":  {Chunks: []search.Chunk{chunk(2, "a"), chunk(5, "b")}},
		"second": {Chunks: []search.Chunk{chunk(2, "a'"), chunk(7, "c")}},
	}}
	turn := NewTurn(NewVectorQueryTool(q))
	ctx := context.Background()
	for _, args := range []string{`{"query":"first"}`, `{"query":"second"}`} {
		if _, err := turn.Invoke(ctx, json.RawMessage(args)); err != nil {
			t.Fatal(err)
		}
	}
	want := []sources.Source{{ChunkIndex: 2, ChunkText: "a"}, {ChunkIndex: 5, ChunkText: "b"}, {ChunkIndex: 7, ChunkText: "c"}}
	if got := turn.Sources(); !reflect.DeepEqual(got, want) {
		t.Errorf("sources %v, want %v", got, want)
	}
}

func TestTurn_QueryErrorDegradesToEmpty(t *testing.T) {
	q := &scriptedQuerier{fail: &models.QueryError{Query: "q", Err: errors.New("store down")}}
	turn := NewTurn(NewVectorQueryTool(q))
	resp, err := turn.Invoke(context.Background(), json.RawMessage(`{"query":"q"}`))
	if err != nil {
		t.Fatalf("QueryError should not fail the turn: %v", err)
	}
	if resp.Query != "q" || len(resp.Chunks) != 0 || resp.MinScore != search.DefaultMinScore {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(turn.Sources()) != 0 {
		t.Error("no sources expected")
	}
}

func TestTurn_OtherErrorsPropagate(t *testing.T) {
	q := &scriptedQuerier{fail: search.ErrInvalidRequest}
	turn := NewTurn(NewVectorQueryTool(q))
	if _, err := turn.Invoke(context.Background(), json.RawMessage(`{"query":""}`)); !errors.Is(err, search.ErrInvalidRequest) {
		t.Errorf("got %v", err)
	}
	if _, err := turn.Invoke(context.Background(), json.RawMessage(`not json`)); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("got %v", err)
	}
}
