// Package httpapi exposes the vault's ingest, search, and document
// operations over HTTP for external callers per §6.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	verrors "github.com/blackvault/blackvault/internal/errors"
	"github.com/blackvault/blackvault/internal/fetch"
	"github.com/blackvault/blackvault/internal/ingest"
	"github.com/blackvault/blackvault/internal/search"
	"github.com/blackvault/blackvault/internal/vault"
)

// ingestResponse is the envelope the spec's §6 /ingest route promises:
// success/message/documentId rather than the raw ingest.Result shape.
type ingestResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	DocumentID int64  `json:"documentId,omitempty"`
}

// Server wires HTTP handlers to a Vault.
type Server struct {
	router http.Handler
	vault  *vault.Vault
}

// New constructs a Server with the routes from §6.
func New(v *vault.Vault) *Server {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Logger)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s := &Server{router: mux, vault: v}

	mux.Get("/search", s.handleSearch)
	mux.Post("/ingest", s.handleIngest)
	mux.Post("/ingest/url", s.handleIngestURL)
	mux.Post("/ingest/batch", s.handleIngestBatch)
	mux.Get("/status", s.handleStatus)
	mux.Get("/document/{id}", s.handleGetDocument)
	mux.Delete("/document/{id}", s.handleDeleteDocument)
	mux.Post("/document/{id}/tags", s.handleSetTags)
	mux.Post("/consolidate", s.handleConsolidate)

	return s
}

// ServeHTTP lets Server satisfy http.Handler directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing query parameter q"))
		return
	}

	opts := search.DefaultOptions()
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			opts.Limit = limit
		}
	}
	if strictStr := r.URL.Query().Get("strict"); strictStr != "" {
		if strict, err := strconv.ParseBool(strictStr); err == nil {
			opts.Strict = strict
		}
	}

	results, err := s.vault.Searcher.Search(r.Context(), query, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("search: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse multipart form: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "blackvault-upload-*-"+filepath.Base(header.Filename))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		writeError(w, http.StatusInternalServerError, fmt.Errorf("buffer upload: %w", err))
		return
	}
	tmp.Close()

	res := s.vault.Ingester.IngestFile(r.Context(), tmp.Name(), true)
	writeIngestResponse(w, res)
}

func (s *Server) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	parsed, err := url.ParseRequestURI(payload.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid url: %q", payload.URL))
		return
	}

	path, err := fetch.ToTempFile(r.Context(), payload.URL)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Errorf("fetch url: %w", err))
		return
	}
	defer os.Remove(path)

	res := s.vault.Ingester.IngestFile(r.Context(), path, true)
	writeIngestResponse(w, res)
}

func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if len(payload.Paths) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("paths must not be empty"))
		return
	}

	// The drain must outlive this request, so it runs under a background
	// context rather than r.Context().
	if err := s.vault.SubmitBatch(context.Background(), payload.Paths); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"status_url": "/status"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.vault.BatchIngest.Progress().Snapshot())
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	st := s.vault.Store
	item, err := st.GetItem(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("document %d not found", id))
		return
	}
	_ = st.LogView(r.Context(), id)

	chunks, err := st.GetChunks(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	connections, err := st.GetConnections(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"item":        item,
		"chunks":      chunks,
		"connections": connections,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.vault.Store.DeleteItem(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("delete document %d: %w", id, err))
		return
	}
	s.vault.Searcher.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetTags(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var payload struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	st := s.vault.Store
	item, err := st.GetItem(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("document %d not found", id))
		return
	}

	emb, err := st.GetItemEmbedding(r.Context(), id)
	var metaVec []float32
	if err == nil && emb != nil {
		metaVec = emb.Vector
	}

	if err := st.UpdateItemEnrichment(r.Context(), id, item.Title, item.Summary, payload.Tags, metaVec); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("update tags: %w", err))
		return
	}
	s.vault.Searcher.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "tags": payload.Tags})
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	outcomes, err := s.vault.Consolidator.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("consolidate: %w", err))
		return
	}
	s.vault.Searcher.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

func parseID(r *http.Request) (int64, error) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid document id %q", idStr)
	}
	return id, nil
}

func writeIngestResponse(w http.ResponseWriter, res ingest.Result) {
	status := http.StatusOK
	resp := ingestResponse{Success: res.Success, DocumentID: res.ItemID}

	switch {
	case res.IsDuplicate:
		status = http.StatusConflict
		resp.Message = fmt.Sprintf("duplicate of document %d", res.DuplicateID)
		resp.DocumentID = res.DuplicateID
	case res.Error != nil:
		status = http.StatusUnprocessableEntity
		if verrors.IsNotFound(res.Error) {
			status = http.StatusNotFound
		}
		resp.Message = res.Error.Error()
	case res.Success:
		resp.Message = fmt.Sprintf("ingested as document %d", res.ItemID)
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

