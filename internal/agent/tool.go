// Package agent exposes retrieval to a conversational agent as a fixed-schema tool.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/ragdesk/internal/search"
)

// ToolName is the name the agent calls the retrieval tool by.
const ToolName = "vector_query"

const toolDescription = "Search the uploaded documents for passages relevant to a query. " +
	"Returns the matching chunks with their similarity score, best first."

var toolSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "Text to search for"},
    "topK": {"type": "integer", "minimum": 1, "maximum": 1000, "default": 5, "description": "Number of neighbours to retrieve"},
    "minScore": {"type": "number", "default": 0.1, "description": "Minimum similarity for a chunk to be returned"}
  },
  "required": ["query"],
  "additionalProperties": false
}`)

// ErrInvalidArguments is wrapped when tool arguments cannot be decoded.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// Querier runs a vector query. *search.Engine implements it.
type Querier interface {
	Query(ctx context.Context, req search.QueryRequest) (*search.QueryResponse, error)
}

// VectorQueryTool is the retrieval tool offered to the agent.
type VectorQueryTool struct {
	engine Querier
	logger *zap.Logger
}

// ToolOption configures a VectorQueryTool.
type ToolOption func(*VectorQueryTool)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ToolOption {
	return func(t *VectorQueryTool) { t.logger = l }
}

// NewVectorQueryTool wraps engine as the vector_query tool.
func NewVectorQueryTool(engine Querier, opts ...ToolOption) *VectorQueryTool {
	t := &VectorQueryTool{engine: engine, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *VectorQueryTool) Name() string { return ToolName }

func (t *VectorQueryTool) Description() string { return toolDescription }

// Schema returns the JSON schema of the tool arguments.
func (t *VectorQueryTool) Schema() json.RawMessage {
	return append(json.RawMessage(nil), toolSchema...)
}

// ParseArguments decodes tool arguments. Unknown fields are rejected.
func ParseArguments(args json.RawMessage) (search.QueryRequest, error) {
	var req search.QueryRequest
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return req, nil
}

// Call decodes args and runs the query.
func (t *VectorQueryTool) Call(ctx context.Context, args json.RawMessage) (*search.QueryResponse, error) {
	req, err := ParseArguments(args)
	if err != nil {
		return nil, err
	}
	return t.Run(ctx, req)
}

// Run executes an already decoded request.
func (t *VectorQueryTool) Run(ctx context.Context, req search.QueryRequest) (*search.QueryResponse, error) {
	t.logger.Debug("tool call", zap.String("tool", ToolName), zap.String("query", req.Query), zap.Int("top_k", req.TopK))
	return t.engine.Query(ctx, req)
}
