package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/rfqrank/internal/ai"
	"github.com/hyperjump/rfqrank/internal/extract"
	"github.com/hyperjump/rfqrank/internal/metrics"
	"github.com/hyperjump/rfqrank/internal/models"
	"github.com/hyperjump/rfqrank/internal/storage"
)

// maxUploadBytes bounds reply uploads to the analyze endpoint.
const maxUploadBytes = 20 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.storage.Stats(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	resp := map[string]interface{}{
		"quotes":        stats.Quotes,
		"briefings":     stats.Briefings,
		"suppliers":     stats.Suppliers,
		"conversations": stats.Conversations,
		"chat_turns":    stats.ChatTurns,
	}

	configInfo := map[string]interface{}{
		"database_path":        s.config.Storage.DatabasePath,
		"supplier_index_path":  s.config.Storage.SupplierIndexPath,
		"conversation_backend": s.config.Conversation.Backend,
		"inbox_directories":    s.config.Inbox.Directories,
		"ai_model":             s.config.AI.Model,
		"analysis_enabled":     s.analyzer != nil,
		"conversation_enabled": s.conversations != nil,
	}
	if s.suppliers != nil {
		if n, err := s.suppliers.Count(); err == nil {
			resp["indexed_suppliers"] = n
		}
	}
	diskBytes, err := storage.DiskUsageBytes(s.config.Storage.SupplierIndexPath)
	if err == nil {
		resp["disk_usage_bytes"] = stats.DiskBytes + diskBytes
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListQuotes(w http.ResponseWriter, r *http.Request) {
	filter := models.QuoteFilter{BriefingID: chi.URLParam(r, "briefingID")}
	var err error
	if filter.Offset, err = intParam(r, "offset"); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit, err = intParam(r, "limit"); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	quotes, err := s.storage.ListQuotes(r.Context(), filter)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if quotes == nil {
		quotes = []*models.Quote{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"quotes": quotes})
}

func (s *Server) handleCreateQuote(w http.ResponseWriter, r *http.Request) {
	var q models.Quote
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	q.ID = ""
	q.BriefingID = chi.URLParam(r, "briefingID")
	switch q.Source {
	case "":
		q.Source = models.SourceManual
	case models.SourceManual, models.SourceSupplier:
	default:
		s.respondError(w, http.StatusBadRequest, "source must be manual or supplier")
		return
	}
	if err := s.storage.InsertQuote(r.Context(), &q); err != nil {
		s.respondErr(w, err)
		return
	}
	metrics.QuotesIngested.WithLabelValues(string(q.Source)).Inc()
	s.logger.Debug("quote created", zap.String("briefing_id", q.BriefingID), zap.String("id", q.ID))
	s.respondJSON(w, http.StatusCreated, &q)
}

type analyzeRequest struct {
	Text         string `json:"text"`
	SupplierName string `json:"supplier_name,omitempty"`
}

// handleAnalyzeQuote accepts reply text as JSON or a reply file as the multipart
// field "file", and stores the extracted quote.
func (s *Server) handleAnalyzeQuote(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		s.respondError(w, http.StatusNotImplemented, "analysis not enabled")
		return
	}
	briefingID := chi.URLParam(r, "briefingID")
	ctx := r.Context()

	var (
		q            *models.Quote
		err          error
		supplierName string
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		q, err = s.analyzeUpload(r, briefingID)
		supplierName = r.FormValue("supplier_name")
	} else {
		var req analyzeRequest
		if decErr := json.NewDecoder(r.Body).Decode(&req); decErr != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		supplierName = req.SupplierName
		q, err = s.analyzer.Analyze(ctx, briefingID, req.Text)
	}
	if err != nil {
		s.respondErr(w, err)
		return
	}

	if name := strings.TrimSpace(supplierName); name != "" && q.SupplierName == nil {
		q.SupplierName = models.String(name)
	}
	if err := s.storage.InsertQuote(ctx, q); err != nil {
		s.respondErr(w, err)
		return
	}
	metrics.QuotesIngested.WithLabelValues(string(q.Source)).Inc()
	s.respondJSON(w, http.StatusCreated, q)
}

func (s *Server) analyzeUpload(r *http.Request, briefingID string) (*models.Quote, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, badRequest("multipart field \"file\" is required")
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	tmp, err := os.CreateTemp("", "rfqrank-reply-*"+ext)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	q, err := s.analyzer.AnalyzeFile(r.Context(), briefingID, tmp.Name())
	if err != nil {
		return nil, err
	}
	if q.Analysis == nil {
		q.Analysis = map[string]any{}
	}
	q.Analysis["source_file"] = filepath.Base(header.Filename)
	return q, nil
}

func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.storage.GetQuote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, q)
}

func (s *Server) handleUpdateQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	existing, err := s.storage.GetQuote(ctx, id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	var q models.Quote
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	q.ID = id
	q.CreatedAt = existing.CreatedAt
	if q.BriefingID == "" {
		q.BriefingID = existing.BriefingID
	}
	if q.Source == "" {
		q.Source = existing.Source
	}
	if err := s.storage.UpdateQuote(ctx, &q); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, &q)
}

func (s *Server) handleDeleteQuote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete quote request", zap.String("id", id))
	if err := s.storage.DeleteQuote(r.Context(), id); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Unwrap() error { return models.ErrInvalidInput }

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConversationNotFound):
		return http.StatusConflict
	case errors.Is(err, models.ErrServiceBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, extract.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ai.ErrNoJSON), errors.Is(err, ai.ErrEmptyResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	switch {
	case status >= http.StatusInternalServerError:
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	case status == http.StatusConflict:
		s.logger.Warn("conversation cannot be resumed", zap.Int("status", status), zap.Error(err))
	default:
		s.logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	s.respondError(w, status, publicMessage(status, err))
}

// publicMessage is the error text a client sees. Upstream failures and internal
// errors are reduced to a fixed message; the full chain only goes to the log.
func publicMessage(status int, err error) string {
	switch {
	case status == http.StatusConflict:
		return models.ErrConversationNotFound.Error()
	case status == http.StatusServiceUnavailable:
		return models.ErrServiceBusy.Error()
	case status == http.StatusBadGateway:
		return "the model returned an unusable answer, try again"
	case status >= http.StatusInternalServerError:
		return "internal error"
	default:
		return err.Error()
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
