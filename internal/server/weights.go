package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/rfqrank/internal/catalog"
	"github.com/hyperjump/rfqrank/internal/metrics"
	"github.com/hyperjump/rfqrank/internal/models"
	"github.com/hyperjump/rfqrank/internal/scoring"
)

// briefing is a briefing's quotes with its eligible parameters and weights.
type briefing struct {
	id       string
	quotes   []*models.Quote
	eligible []catalog.Availability
	weights  scoring.WeightConfig
}

type weightsResponse struct {
	BriefingID string                 `json:"briefing_id"`
	Weights    scoring.WeightConfig   `json:"weights"`
	Eligible   []catalog.Availability `json:"eligible"`
	Active     bool                   `json:"active"`
}

func (s *Server) loadBriefing(ctx context.Context, briefingID string) (*briefing, error) {
	quotes, err := s.storage.ListQuotes(ctx, models.QuoteFilter{BriefingID: briefingID})
	if err != nil {
		return nil, err
	}
	blob, err := s.storage.LoadWeights(ctx, briefingID)
	if err != nil {
		return nil, err
	}
	saved, err := scoring.DecodeWeights(blob)
	if err != nil {
		s.logger.Warn("Stored weights unreadable, using defaults",
			zap.String("briefing_id", briefingID), zap.Error(err))
		saved = nil
	}
	eligible := s.engine.Catalog().Eligible(quotes)
	return &briefing{
		id:       briefingID,
		quotes:   quotes,
		eligible: eligible,
		weights:  scoring.InitializeWeights(eligible, saved),
	}, nil
}

func (s *Server) saveWeights(ctx context.Context, b *briefing) error {
	blob, err := b.weights.Encode()
	if err != nil {
		return err
	}
	return s.storage.SaveWeights(ctx, b.id, blob)
}

func (s *Server) respondWeights(w http.ResponseWriter, b *briefing) {
	eligible := b.eligible
	if eligible == nil {
		eligible = []catalog.Availability{}
	}
	s.respondJSON(w, http.StatusOK, weightsResponse{
		BriefingID: b.id,
		Weights:    b.weights,
		Eligible:   eligible,
		Active:     b.weights.HasActiveWeightsFor(b.eligible),
	})
}

// score runs the engine and records the run.
func (s *Server) score(b *briefing, weights scoring.WeightConfig) *scoring.Result {
	start := time.Now()
	res := s.engine.Score(b.quotes, weights)
	metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	metrics.ScoringRuns.WithLabelValues(strconv.FormatBool(res.Scored)).Inc()
	return res
}

func (s *Server) handleParameters(w http.ResponseWriter, r *http.Request) {
	b, err := s.loadBriefing(r.Context(), chi.URLParam(r, "briefingID"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	eligible := b.eligible
	if eligible == nil {
		eligible = []catalog.Availability{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"parameters": s.engine.Catalog().Parameters(),
		"eligible":   eligible,
		"quotes":     len(b.quotes),
	})
}

func (s *Server) handleGetWeights(w http.ResponseWriter, r *http.Request) {
	b, err := s.loadBriefing(r.Context(), chi.URLParam(r, "briefingID"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondWeights(w, b)
}

// applyUpdates applies every update to a copy of weights, so a rejected update
// leaves nothing half applied.
func applyUpdates(weights scoring.WeightConfig, updates map[string]scoring.WeightUpdate) (scoring.WeightConfig, error) {
	next := weights.Clone()
	if next == nil {
		next = scoring.WeightConfig{}
	}
	for key, u := range updates {
		if err := next.Update(key, u); err != nil {
			return nil, err
		}
	}
	return next, nil
}

func (s *Server) handlePutWeights(w http.ResponseWriter, r *http.Request) {
	var updates map[string]scoring.WeightUpdate
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.mutateWeights(w, r, func(b *briefing) error {
		next, err := applyUpdates(b.weights, updates)
		if err != nil {
			return err
		}
		b.weights = next
		return nil
	})
}

func (s *Server) handlePatchWeight(w http.ResponseWriter, r *http.Request) {
	var u scoring.WeightUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key := chi.URLParam(r, "key")
	s.mutateWeights(w, r, func(b *briefing) error {
		next, err := applyUpdates(b.weights, map[string]scoring.WeightUpdate{key: u})
		if err != nil {
			return err
		}
		b.weights = next
		return nil
	})
}

func (s *Server) handleEqualizeWeights(w http.ResponseWriter, r *http.Request) {
	s.mutateWeights(w, r, func(b *briefing) error {
		b.weights.Equalize()
		return nil
	})
}

func (s *Server) handleResetWeights(w http.ResponseWriter, r *http.Request) {
	s.mutateWeights(w, r, func(b *briefing) error {
		b.weights.ResetAll(b.eligible)
		return nil
	})
}

func (s *Server) mutateWeights(w http.ResponseWriter, r *http.Request, mutate func(b *briefing) error) {
	ctx := r.Context()
	b, err := s.loadBriefing(ctx, chi.URLParam(r, "briefingID"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if err := mutate(b); err != nil {
		s.respondErr(w, err)
		return
	}
	if err := s.saveWeights(ctx, b); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondWeights(w, b)
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	b, err := s.loadBriefing(r.Context(), chi.URLParam(r, "briefingID"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.score(b, b.weights))
}

// handleRankingPreview scores with the saved weights plus the posted updates,
// without saving them.
func (s *Server) handleRankingPreview(w http.ResponseWriter, r *http.Request) {
	var updates map[string]scoring.WeightUpdate
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	b, err := s.loadBriefing(r.Context(), chi.URLParam(r, "briefingID"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	weights, err := applyUpdates(b.weights, updates)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.score(b, weights))
}
