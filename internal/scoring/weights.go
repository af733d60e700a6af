package scoring

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/hyperjump/rfqrank/internal/catalog"
	"github.com/hyperjump/rfqrank/internal/models"
	"github.com/hyperjump/rfqrank/pkg/utils"
)

const (
	// MinWeight and MaxWeight bound every stored weight.
	MinWeight = 0.0
	MaxWeight = 5.0
	// WeightStep is the granularity of weights converted from the legacy percentage scale.
	WeightStep = 0.5
	// DefaultWeight is assigned to newly eligible parameters and on reset.
	DefaultWeight = 1.0
)

// Weight is the user's intent for one parameter.
type Weight struct {
	Enabled   bool              `json:"enabled"`
	Weight    float64           `json:"weight"`
	Direction catalog.Direction `json:"direction"`
}

// WeightConfig maps parameter keys to weights. It is persisted per briefing.
type WeightConfig map[string]*Weight

// WeightUpdate is a partial update. Nil fields are left untouched. Weight is
// kept loose so that callers can pass decoded JSON straight through.
type WeightUpdate struct {
	Enabled *bool `json:"enabled,omitempty"`
	Weight  any   `json:"weight,omitempty"`
}

// ConvertLegacyWeight maps a weight from the old 0-100 percentage scale onto the
// 0-5 scale in half steps. Values already on the new scale are only clamped.
func ConvertLegacyWeight(w float64) float64 {
	if !utils.IsFinite(w) {
		return DefaultWeight
	}
	if w > MaxWeight {
		w = utils.RoundToStep(w/100*MaxWeight, WeightStep)
	}
	return utils.Clamp(w, MinWeight, MaxWeight)
}

// InitializeWeights builds the configuration for the eligible parameters. Saved
// entries keep their enabled flag and weight (legacy values converted); parameters
// without a saved entry start enabled with DefaultWeight. Direction always comes
// from the catalog. Saved entries for parameters that are not eligible right now
// are carried over untouched, so the buyer's choice survives a dip below the
// eligibility threshold; Score ignores them.
func InitializeWeights(eligible []catalog.Availability, saved WeightConfig) WeightConfig {
	cfg := make(WeightConfig, len(eligible)+len(saved))
	for key, s := range saved {
		if s == nil {
			continue
		}
		w := &Weight{Enabled: s.Enabled, Weight: ConvertLegacyWeight(s.Weight), Direction: s.Direction}
		if p, ok := catalog.Default().Lookup(key); ok {
			w.Direction = p.Direction
		}
		cfg[key] = w
	}
	for _, p := range eligible {
		if w, ok := cfg[p.Key]; ok {
			w.Direction = p.Direction
			continue
		}
		cfg[p.Key] = &Weight{Enabled: true, Weight: DefaultWeight, Direction: p.Direction}
	}
	return cfg
}

// Update applies a partial update to one entry. A non-numeric weight is rejected
// with models.ErrInvalidInput and nothing is changed.
func (c WeightConfig) Update(key string, u WeightUpdate) error {
	w, ok := c[key]
	if !ok || w == nil {
		return fmt.Errorf("parameter %q: %w", key, models.ErrNotFound)
	}

	var weight float64
	if u.Weight != nil {
		v, ok := catalog.ToNumber(u.Weight)
		if !ok {
			return fmt.Errorf("weight for %q is not a number: %w", key, models.ErrInvalidInput)
		}
		weight = utils.Clamp(v, MinWeight, MaxWeight)
	}

	if u.Enabled != nil {
		w.Enabled = *u.Enabled
	}
	if u.Weight != nil {
		w.Weight = weight
	}
	return nil
}

// Equalize sets every enabled entry back to DefaultWeight.
func (c WeightConfig) Equalize() {
	for _, w := range c {
		if w != nil && w.Enabled {
			w.Weight = DefaultWeight
		}
	}
}

// ResetAll replaces the configuration with defaults for every eligible parameter,
// re-enabling the disabled ones.
func (c WeightConfig) ResetAll(eligible []catalog.Availability) {
	for k := range c {
		delete(c, k)
	}
	for k, w := range InitializeWeights(eligible, nil) {
		c[k] = w
	}
}

// HasActiveWeights reports whether any entry is enabled, whatever its weight.
func (c WeightConfig) HasActiveWeights() bool {
	for _, w := range c {
		if w != nil && w.Enabled {
			return true
		}
	}
	return false
}

// HasActiveWeightsFor is HasActiveWeights restricted to the eligible parameters.
func (c WeightConfig) HasActiveWeightsFor(eligible []catalog.Availability) bool {
	for _, a := range eligible {
		if w := c[a.Key]; w != nil && w.Enabled {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c WeightConfig) Clone() WeightConfig {
	if c == nil {
		return nil
	}
	out := make(WeightConfig, len(c))
	for k, w := range c {
		if w == nil {
			continue
		}
		cp := *w
		out[k] = &cp
	}
	return out
}

// Encode serializes the configuration for a WeightStore.
func (c WeightConfig) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeWeights parses a stored configuration. Older blobs stored weights and flags
// as strings, so both fields are coerced; an unreadable weight falls back to
// DefaultWeight. Empty input yields a nil configuration.
func DecodeWeights(data []byte) (WeightConfig, error) {
	if len(strings.TrimSpace(string(data))) == 0 || string(data) == "null" {
		return nil, nil
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode weights: %w", err)
	}

	cfg := make(WeightConfig, len(raw))
	for key, fields := range raw {
		w := &Weight{Enabled: true, Weight: DefaultWeight}
		if v, ok := fields["enabled"]; ok {
			if b, err := cast.ToBoolE(v); err == nil {
				w.Enabled = b
			}
		}
		if v, ok := catalog.ToNumber(fields["weight"]); ok {
			w.Weight = v
		}
		if d, ok := fields["direction"].(string); ok {
			w.Direction = catalog.Direction(d)
		}
		cfg[key] = w
	}
	return cfg, nil
}
