package agent

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/hyperjump/ragdesk/internal/models"
	"github.com/hyperjump/ragdesk/internal/search"
	"github.com/hyperjump/ragdesk/internal/sources"
)

// Turn groups the tool invocations made while answering one user message.
type Turn struct {
	tool      *VectorQueryTool
	collector sources.Collector
}

// NewTurn starts a turn that uses tool.
func NewTurn(tool *VectorQueryTool) *Turn {
	return &Turn{tool: tool}
}

// Invoke calls the tool with raw arguments. Retrieval failures degrade to an empty response
// so the conversation can continue; invalid arguments are returned as errors.
func (t *Turn) Invoke(ctx context.Context, args json.RawMessage) (*search.QueryResponse, error) {
	req, err := ParseArguments(args)
	if err != nil {
		return nil, err
	}
	return t.Query(ctx, req)
}

// Query is Invoke for an already decoded request.
func (t *Turn) Query(ctx context.Context, req search.QueryRequest) (*search.QueryResponse, error) {
	resp, err := t.tool.Run(ctx, req)
	var qErr *models.QueryError
	if errors.As(err, &qErr) {
		t.tool.logger.Warn("retrieval unavailable, continuing without sources",
			zap.String("query", req.Query), zap.Error(err))
		return search.EmptyResponse(req), nil
	}
	if err != nil {
		return nil, err
	}
	t.collector.Add(resp)
	return resp, nil
}

// Sources returns the deduplicated citations gathered so far.
func (t *Turn) Sources() []sources.Source {
	return t.collector.Sources()
}
