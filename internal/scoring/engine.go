// Package scoring ranks quotes by a user-weighted blend of normalized parameters.
package scoring

import (
	"sort"

	"github.com/hyperjump/rfqrank/internal/catalog"
	"github.com/hyperjump/rfqrank/internal/models"
	"github.com/hyperjump/rfqrank/pkg/utils"
)

// ParameterScore explains how one parameter contributed to a quote's score.
type ParameterScore struct {
	OriginalValue   float64           `json:"original_value"`
	NormalizedScore float64           `json:"normalized_score"`
	Weight          float64           `json:"weight"`
	RawContribution float64           `json:"raw_contribution"`
	Contribution    float64           `json:"contribution"`
	Min             float64           `json:"min"`
	Max             float64           `json:"max"`
	Direction       catalog.Direction `json:"direction"`
}

// ScoredQuote is a quote with its score breakdown. Score is nil when the run was
// not scored because no weights were active.
type ScoredQuote struct {
	*models.Quote
	ParameterScores   map[string]ParameterScore `json:"parameter_scores,omitempty"`
	Score             *float64                  `json:"score"`
	RawWeightedSum    float64                   `json:"raw_weighted_sum"`
	TotalWeights      float64                   `json:"total_weights"`
	EnabledParamCount int                       `json:"enabled_param_count"`
}

// Result is the outcome of one scoring run.
type Result struct {
	// Quotes are ranked best first when Scored, otherwise in input order.
	Quotes []*ScoredQuote `json:"quotes"`
	// Scored is false for the "no weights yet" state.
	Scored bool `json:"scored"`
	// Eligible lists the parameters that had enough data to be scored.
	Eligible []catalog.Availability `json:"eligible"`
	// EnabledParams are the eligible parameters that took part, in eligibility order.
	EnabledParams []string `json:"enabled_params"`
}

// Engine scores quote sets against a parameter catalog. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	catalog *catalog.Catalog
}

// NewEngine creates an Engine. A nil catalog selects catalog.Default().
func NewEngine(c *catalog.Catalog) *Engine {
	if c == nil {
		c = catalog.Default()
	}
	return &Engine{catalog: c}
}

// Catalog returns the engine's parameter catalog.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

type enabledParam struct {
	param  catalog.Parameter
	weight float64
}

// Score computes a score in [0, 100] for every quote.
//
// Each enabled parameter is normalized to [0, 1] across the quotes that report it,
// 1 being the best value present. A quote's score is its weighted sum divided by the
// weights of the parameters it actually reports, so omitting a parameter only costs
// that parameter's relative advantage.
func (e *Engine) Score(quotes []*models.Quote, weights WeightConfig) *Result {
	res := &Result{
		Quotes:   make([]*ScoredQuote, 0, len(quotes)),
		Eligible: e.catalog.Eligible(quotes),
	}
	for _, q := range quotes {
		if q == nil {
			continue
		}
		res.Quotes = append(res.Quotes, &ScoredQuote{Quote: q})
	}

	if !weights.HasActiveWeightsFor(res.Eligible) {
		return res
	}
	res.Scored = true

	var enabled []enabledParam
	for _, a := range res.Eligible {
		w := weights[a.Key]
		if w == nil || !w.Enabled || !utils.IsFinite(w.Weight) {
			continue
		}
		weight := utils.Clamp(w.Weight, MinWeight, MaxWeight)
		if weight <= 0 {
			continue
		}
		p, ok := e.catalog.Lookup(a.Key)
		if !ok {
			continue
		}
		enabled = append(enabled, enabledParam{param: p, weight: weight})
		res.EnabledParams = append(res.EnabledParams, a.Key)
	}

	for _, sq := range res.Quotes {
		sq.ParameterScores = make(map[string]ParameterScore, len(enabled))
		sq.EnabledParamCount = len(enabled)
	}

	for _, ep := range enabled {
		scoreParameter(res.Quotes, ep)
	}

	for _, sq := range res.Quotes {
		score := 0.0
		if sq.TotalWeights > 0 {
			score = sq.RawWeightedSum / sq.TotalWeights * 100
		}
		sq.Score = &score

		for key, ps := range sq.ParameterScores {
			if sq.RawWeightedSum > 0 {
				ps.Contribution = ps.RawContribution / sq.RawWeightedSum * 100
			}
			sq.ParameterScores[key] = ps
		}
	}

	sort.SliceStable(res.Quotes, func(i, j int) bool {
		return ranksBefore(res.Quotes[i], res.Quotes[j])
	})

	return res
}

// Score is a convenience wrapper around NewEngine(c).Score.
func Score(quotes []*models.Quote, weights WeightConfig, c *catalog.Catalog) *Result {
	return NewEngine(c).Score(quotes, weights)
}

// scoreParameter normalizes one parameter across the quotes that report it and
// accumulates each quote's weighted sum.
func scoreParameter(quotes []*ScoredQuote, ep enabledParam) {
	values := make([]float64, len(quotes))
	present := make([]bool, len(quotes))
	first := true
	var lo, hi float64

	for i, sq := range quotes {
		v, ok := ep.param.Value(sq.Quote)
		if !ok {
			continue
		}
		values[i], present[i] = v, true
		if first || v < lo {
			lo = v
		}
		if first || v > hi {
			hi = v
		}
		first = false
	}
	if first {
		return
	}

	for i, sq := range quotes {
		if !present[i] {
			continue
		}
		norm := normalize(values[i], lo, hi, ep.param.Direction)
		raw := norm * ep.weight
		sq.ParameterScores[ep.param.Key] = ParameterScore{
			OriginalValue:   values[i],
			NormalizedScore: norm,
			Weight:          ep.weight,
			RawContribution: raw,
			Min:             lo,
			Max:             hi,
			Direction:       ep.param.Direction,
		}
		sq.RawWeightedSum += raw
		sq.TotalWeights += ep.weight
	}
}

// normalize maps v onto [0, 1] with 1 for the best value. Identical values all score 1.
func normalize(v, lo, hi float64, dir catalog.Direction) float64 {
	if lo == hi {
		return 1
	}
	if dir == catalog.Higher {
		return (v - lo) / (hi - lo)
	}
	return (hi - v) / (hi - lo)
}

// ranksBefore orders by score descending, then newest first, then by ID.
func ranksBefore(a, b *ScoredQuote) bool {
	sa, sb := scoreOf(a), scoreOf(b)
	if sa != sb {
		return sa > sb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func scoreOf(sq *ScoredQuote) float64 {
	if sq.Score == nil {
		return 0
	}
	return *sq.Score
}
