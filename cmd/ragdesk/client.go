package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/ragdesk/internal/cli"
	"github.com/hyperjump/ragdesk/internal/models"
	"github.com/hyperjump/ragdesk/internal/search"
)

const apiPrefix = "/api/v1"

var httpClient = &http.Client{Timeout: 5 * time.Minute}

// statusResponse mirrors GET /api/v1/status.
type statusResponse struct {
	Documents      int64          `json:"documents"`
	Chunks         int64          `json:"chunks"`
	DiskUsageBytes *int64         `json:"disk_usage_bytes,omitempty"`
	VectorStore    map[string]any `json:"vector_store,omitempty"`
}

// apiError decodes the server's error body.
type apiError struct {
	Status  int
	Message string `json:"error"`
	Kind    string `json:"kind"`
}

func (e *apiError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func endpoint(serverURL, path string) string {
	return strings.TrimRight(serverURL, "/") + apiPrefix + path
}

// doJSON sends req and decodes a 2xx body into out; anything else becomes an *apiError.
func doJSON(req *http.Request, out any) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func queryViaHTTP(serverURL string, q search.QueryRequest) (*search.QueryResponse, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		endpoint(serverURL, "/tools/vector_query"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	var resp search.QueryResponse
	if err := doJSON(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func ingestViaHTTP(serverURL, path string) (*models.IngestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, endpoint(serverURL, "/ingest"), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var res models.IngestResult
	if err := doJSON(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, endpoint(serverURL, "/status"), nil)
	if err != nil {
		return nil, err
	}
	var status statusResponse
	if err := doJSON(req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func writeStatus(w io.Writer, s *statusResponse, format cli.OutputFormat) error {
	if format == cli.OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	fmt.Fprintf(w, "Documents: %d\n", s.Documents)
	fmt.Fprintf(w, "Chunks:    %d\n", s.Chunks)
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(w, "Disk:      %s\n", humanBytes(*s.DiskUsageBytes))
	}
	if len(s.VectorStore) > 0 {
		fmt.Fprintf(w, "Vector store: %v (index %v, metric %v, dimension %v)\n",
			s.VectorStore["type"], s.VectorStore["index"], s.VectorStore["metric"], s.VectorStore["dimension"])
		if connected, ok := s.VectorStore["connected"]; ok {
			fmt.Fprintf(w, "  connected: %v\n", connected)
		}
		if n, ok := s.VectorStore["vectors"]; ok {
			fmt.Fprintf(w, "  vectors:   %v\n", n)
		}
	}
	return nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
