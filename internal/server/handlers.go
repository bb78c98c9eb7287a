package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/ragdesk/internal/agent"
	"github.com/hyperjump/ragdesk/internal/models"
	"github.com/hyperjump/ragdesk/internal/search"
	"github.com/hyperjump/ragdesk/internal/sources"
	"github.com/hyperjump/ragdesk/internal/storage"
	"github.com/hyperjump/ragdesk/internal/vector"
)

const defaultListLimit = 50

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondFailure(w, err)
			return
		}
		s.respondError(w, http.StatusBadRequest, kindBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondFailure(w, fmt.Errorf("read upload: %w", err))
		return
	}
	input := models.IngestInput{FileBytes: content, FileName: header.Filename}
	log := s.logger.With(zap.String("file_name", input.FileName), zap.Int("bytes", len(content)))

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if s.enqueuer == nil {
			s.respondError(w, http.StatusNotImplemented, kindBadRequest, "async ingestion not enabled")
			return
		}
		jobID, err := s.enqueuer.Enqueue(r.Context(), input)
		if err != nil {
			log.Error("enqueue failed", zap.Error(err))
			s.respondFailure(w, err)
			return
		}
		log.Debug("ingest queued", zap.String("job_id", jobID))
		s.respondJSON(w, http.StatusAccepted, map[string]string{
			"jobId": jobID, "fileName": input.FileName, "status": "queued",
		})
		return
	}

	res, err := s.ingester.Ingest(r.Context(), input)
	if err != nil {
		log.Error("ingest failed", zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleToolSchema(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"name":        s.tool.Name(),
		"description": s.tool.Description(),
		"parameters":  s.tool.Schema(),
	})
}

func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	args, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, kindBadRequest, "invalid request body")
		return
	}
	resp, err := s.tool.Call(r.Context(), args)
	if err != nil {
		s.logger.Error("tool call failed", zap.String("tool", agent.ToolName), zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type turnRequest struct {
	Queries []json.RawMessage `json:"queries"`
}

type turnResponse struct {
	Responses []*search.QueryResponse `json:"responses"`
	Sources   []sources.Source        `json:"sources"`
}

// handleTurn runs every tool call of one agent turn and returns the citations gathered.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, kindBadRequest, "invalid request body")
		return
	}
	if len(req.Queries) == 0 {
		s.respondError(w, http.StatusBadRequest, kindBadRequest, "queries must not be empty")
		return
	}
	turn := agent.NewTurn(s.tool)
	out := turnResponse{Responses: make([]*search.QueryResponse, 0, len(req.Queries))}
	for _, args := range req.Queries {
		resp, err := turn.Invoke(r.Context(), args)
		if err != nil {
			s.respondFailure(w, err)
			return
		}
		out.Responses = append(out.Responses, resp)
	}
	out.Sources = turn.Sources()
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, kindBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit < 1 {
		s.respondError(w, http.StatusBadRequest, kindBadRequest, "invalid limit")
		return
	}
	docs, err := s.storage.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": docs, "offset": offset, "limit": limit})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.storage.GetDocument(r.Context(), id); err != nil {
		s.respondFailure(w, err)
		return
	}
	chunks, err := s.storage.GetChunks(r.Context(), id)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if chunks == nil {
		chunks = []*models.DocumentChunk{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documentId": id, "chunks": chunks})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("document_id", id))
	if err := s.ingester.DeleteDocument(r.Context(), id); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error("deletion failed", zap.String("document_id", id), zap.Error(err))
		}
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	chunkCount, err := s.storage.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	resp := map[string]any{
		"documents": docCount,
		"chunks":    chunkCount,
	}

	storeInfo := map[string]any{"connected": s.conns.Connected()}
	if s.config != nil {
		storeInfo["type"] = s.config.VectorStore.Type
		storeInfo["index"] = s.config.Index.Name
		storeInfo["metric"] = s.config.Index.Metric
		storeInfo["dimension"] = s.config.Embedding.Dimension

		usage, err := storage.MeasureDiskUsage(s.config.Storage.DatabasePath, s.config.Storage.VectorPath)
		if err == nil {
			resp["disk_usage_bytes"] = usage.Total
		} else {
			s.logger.Warn("status: disk usage failed", zap.Error(err))
		}
	}
	if s.conns.Connected() {
		if store, err := s.conns.Get(ctx); err == nil {
			if c, ok := store.(vector.Counter); ok && s.config != nil {
				if n, err := c.Count(ctx, s.config.Index.Name); err == nil {
					storeInfo["vectors"] = n
				}
			}
		}
	}
	resp["vector_store"] = storeInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, kind, message string) {
	s.respondJSON(w, status, errorBody{Error: message, Kind: kind})
}

// respondFailure maps err to a status code and error kind.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	s.respondError(w, status, kind, err.Error())
}
