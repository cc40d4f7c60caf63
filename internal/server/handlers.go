package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/parmesan/internal/models"
	"github.com/hyperjump/parmesan/internal/ranking"
	"github.com/hyperjump/parmesan/internal/search"
	"github.com/hyperjump/parmesan/internal/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func (s *Server) handleSearchGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.SearchQuery{Query: q.Get("query")}
	for _, raw := range q["collection"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid collection id: "+raw)
			return
		}
		query.Collections = append(query.Collections, id)
	}
	s.search(w, r, &query)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.search(w, r, &query)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, query *models.SearchQuery) {
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int64s("collections", query.Collections))
	response, err := s.engine.Search(r.Context(), query)
	if err != nil {
		s.respondErr(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := s.storage.ListCollections(r.Context())
	if err != nil {
		s.respondErr(w, "list collections failed", err)
		return
	}
	if collections == nil {
		collections = []*models.Collection{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"collections": collections})
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var c models.Collection
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if _, err := s.storage.GetCollectionByName(r.Context(), c.Name); err == nil {
		s.respondError(w, http.StatusConflict, "collection already exists")
		return
	}
	if err := s.storage.CreateCollection(r.Context(), &c); err != nil {
		s.respondErr(w, "create collection failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, &c)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := s.intParam(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.storage.GetCollection(r.Context(), id); err != nil {
		s.respondErr(w, "get collection failed", err)
		return
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	docs, err := s.storage.ListDocuments(r.Context(), id, max(offset, 0), limit)
	if err != nil {
		s.respondErr(w, "list documents failed", err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "offset": offset, "limit": limit})
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := s.intParam(w, r, "id")
	if !ok {
		return
	}
	n, err := s.indexer.RemoveCollection(r.Context(), id)
	if err != nil {
		s.respondErr(w, "delete collection failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted", "documents": n})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		s.respondErr(w, "get document failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

type ingestRequest struct {
	Path       string `json:"path"`
	Collection string `json:"collection"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		s.respondError(w, http.StatusNotImplemented, "ingestion not enabled")
		return
	}
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	info, err := os.Stat(req.Path)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "path not found")
			return
		}
		s.respondErr(w, "stat failed", err)
		return
	}
	s.logger.Debug("ingest request", zap.String("path", req.Path), zap.String("collection", req.Collection))
	if info.IsDir() {
		results, err := s.indexer.IngestDirectory(r.Context(), req.Path, req.Collection, s.config.Watch.Extensions)
		if err != nil {
			s.respondErr(w, "ingest failed", err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"files": results})
		return
	}
	res, err := s.indexer.IngestFile(r.Context(), req.Path, req.Collection)
	if err != nil {
		s.respondErr(w, "ingest failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	id, ok := s.intParam(w, r, "id")
	if !ok {
		return
	}
	html, err := s.engine.HighlightSentence(r.Context(), id, r.URL.Query().Get("query"))
	if err != nil {
		s.respondErr(w, "highlight failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"html": html})
}

func (s *Server) handleDefinitions(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	if term == "" {
		s.respondError(w, http.StatusBadRequest, "term is required")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"term":        term,
		"definitions": s.engine.Define(r.Context(), term),
	})
}

func (s *Server) handleTopQueries(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	if limit <= 0 || limit > maxPageSize {
		limit = 10
	}
	entries, err := s.storage.TopQueries(r.Context(), limit)
	if err != nil {
		s.respondErr(w, "top queries failed", err)
		return
	}
	if entries == nil {
		entries = []*models.QueryLogEntry{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"queries": entries})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	if s.lemmas == nil {
		s.respondError(w, http.StatusNotImplemented, "lemma index not enabled")
		return
	}
	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))
	if prefix == "" {
		s.respondError(w, http.StatusBadRequest, "prefix is required")
		return
	}
	limit := queryInt(r, "limit", 10)
	if limit <= 0 || limit > maxPageSize {
		limit = 10
	}
	completions, err := s.lemmas.Complete(prefix, limit)
	if err != nil {
		s.respondErr(w, "completion failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"prefix": prefix, "completions": completions})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.storage.Stats(r.Context())
	if err != nil {
		s.respondErr(w, "status failed", err)
		return
	}
	resp := map[string]interface{}{"stats": stats}
	if s.lemmas != nil {
		if n, err := s.lemmas.DocCount(); err == nil {
			resp["lemma_index_documents"] = n
		}
	}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}
	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"database_path":          s.config.Storage.DatabasePath,
			"lemma_index_path":       s.config.Storage.LemmaIndexPath,
			"regex_template":         s.engine.Ranker().Template().String(),
			"results_per_collection": s.config.Search.ResultsPerCollection,
			"sentences_per_document": s.config.Search.SentencesPerDocument,
		}
		if diskBytes, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath, s.config.Storage.LemmaIndexPath); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) intParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrEmptyQuery),
		errors.Is(err, search.ErrUnknownCollection),
		errors.Is(err, ranking.ErrInvalidTemplate):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
