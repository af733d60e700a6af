package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperjump/rfqrank/internal/models"
)

type startRequest struct {
	Description string `json:"description"`
}

type replyRequest struct {
	Message string `json:"message"`
}

type selectRequest struct {
	SupplierKeys []string `json:"supplier_keys"`
}

func (s *Server) conversationsEnabled(w http.ResponseWriter) bool {
	if s.conversations == nil {
		s.respondError(w, http.StatusNotImplemented, "conversations not enabled")
		return false
	}
	return true
}

func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	if !s.conversationsEnabled(w) {
		return
	}
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.conversations.Start(r.Context(), chi.URLParam(r, "briefingID"), req.Description)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleReplyConversation(w http.ResponseWriter, r *http.Request) {
	if !s.conversationsEnabled(w) {
		return
	}
	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.conversations.Reply(r.Context(), chi.URLParam(r, "briefingID"), req.Message)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if !s.conversationsEnabled(w) {
		return
	}
	state, err := s.conversations.State(r.Context(), chi.URLParam(r, "briefingID"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleResetConversation(w http.ResponseWriter, r *http.Request) {
	if !s.conversationsEnabled(w) {
		return
	}
	if err := s.conversations.Reset(r.Context(), chi.URLParam(r, "briefingID")); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleSelectSuppliers(w http.ResponseWriter, r *http.Request) {
	if !s.conversationsEnabled(w) {
		return
	}
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := s.conversations.Select(r.Context(), chi.URLParam(r, "briefingID"), req.SupplierKeys)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, d)
}

func (s *Server) suppliersEnabled(w http.ResponseWriter) bool {
	if s.suppliers == nil {
		s.respondError(w, http.StatusNotImplemented, "supplier directory not enabled")
		return false
	}
	return true
}

func (s *Server) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	if !s.suppliersEnabled(w) {
		return
	}
	list, err := s.suppliers.List(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if list == nil {
		list = []*models.Supplier{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"suppliers": list})
}

func (s *Server) handleAddSupplier(w http.ResponseWriter, r *http.Request) {
	if !s.suppliersEnabled(w) {
		return
	}
	var sup models.Supplier
	if err := json.NewDecoder(r.Body).Decode(&sup); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.suppliers.Add(r.Context(), &sup); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, &sup)
}

func (s *Server) handleSearchSuppliers(w http.ResponseWriter, r *http.Request) {
	if !s.suppliersEnabled(w) {
		return
	}
	q := r.URL.Query()
	limit, err := intParam(r, "limit")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	found, err := s.suppliers.Search(r.Context(), q.Get("q"), q.Get("location"), limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if found == nil {
		found = []*models.Supplier{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"suppliers": found})
}

func (s *Server) handleDeleteSupplier(w http.ResponseWriter, r *http.Request) {
	if !s.suppliersEnabled(w) {
		return
	}
	if err := s.suppliers.Remove(r.Context(), chi.URLParam(r, "key")); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
