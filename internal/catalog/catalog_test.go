package catalog

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/rfqrank/internal/models"
)

func TestToNumber(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"nil", nil, 0, false},
		{"nil pointer", (*float64)(nil), 0, false},
		{"pointer", models.Float(3.5), 3.5, true},
		{"float", 12.25, 12.25, true},
		{"int", 4, 4, true},
		{"numeric string", " 12.5 ", 12.5, true},
		{"empty string", "", 0, false},
		{"blank string", "   ", 0, false},
		{"garbage string", "abc", 0, false},
		{"json number", json.Number("7"), 7, true},
		{"bool", true, 0, false},
		{"nan", math.NaN(), 0, false},
		{"inf", math.Inf(1), 0, false},
		{"negative inf", math.Inf(-1), 0, false},
		{"nan string", "NaN", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestNewRejectsMalformedEntries(t *testing.T) {
	acc := func(*models.Quote) any { return nil }

	_, err := New(Parameter{Key: "", Direction: Lower, Accessor: acc})
	assert.Error(t, err)

	_, err = New(Parameter{Key: "a", Direction: "sideways", Accessor: acc})
	assert.Error(t, err)

	_, err = New(Parameter{Key: "a", Direction: Lower})
	assert.Error(t, err)

	_, err = New(
		Parameter{Key: "a", Direction: Lower, Accessor: acc},
		Parameter{Key: "a", Direction: Higher, Accessor: acc},
	)
	assert.Error(t, err)

	assert.Panics(t, func() { MustNew(Parameter{Key: "a"}) })
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	params := c.Parameters()
	require.Len(t, params, 6)
	assert.Equal(t, KeyTotalPrice, params[0].Key)

	p, ok := c.Lookup(KeyWarrantyMonths)
	require.True(t, ok)
	assert.Equal(t, Higher, p.Direction)

	p, ok = c.Lookup(KeyShippingCost)
	require.True(t, ok)
	assert.Equal(t, Lower, p.Direction)

	_, ok = c.Lookup("color")
	assert.False(t, ok)
}

func TestAccessorsTolerateMissingData(t *testing.T) {
	for _, p := range Default().Parameters() {
		_, ok := p.Value(nil)
		assert.False(t, ok, p.Key)

		_, ok = p.Value(&models.Quote{})
		assert.False(t, ok, p.Key)

		assert.NotPanics(t, func() {
			p.Value(&models.Quote{Analysis: map[string]any{KeyBusinessRating: map[string]any{}}})
		}, p.Key)
	}
}

func TestBusinessRating(t *testing.T) {
	p, ok := Default().Lookup(KeyBusinessRating)
	require.True(t, ok)

	tests := []struct {
		name     string
		analysis map[string]any
		want     float64
		ok       bool
	}{
		{"bare value", map[string]any{"business_rating": 4.2}, 4.2, true},
		{"string value", map[string]any{"business_rating": "3"}, 3, true},
		{"sibling scale", map[string]any{"business_rating": 8, "rating_scale": 10}, 4, true},
		{"object with scale", map[string]any{"business_rating": map[string]any{"value": 90, "scale": 100}}, 4.5, true},
		{"object without scale", map[string]any{"business_rating": map[string]any{"value": 2.5}}, 2.5, true},
		{"zero scale ignored", map[string]any{"business_rating": 3, "rating_scale": 0}, 3, true},
		{"empty string", map[string]any{"business_rating": ""}, 0, false},
		{"missing", map[string]any{"ai_summary": "fine"}, 0, false},
		{"object without value", map[string]any{"business_rating": map[string]any{"scale": 5}}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.Value(&models.Quote{Analysis: tt.analysis})
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestEligible(t *testing.T) {
	quotes := []*models.Quote{
		{ID: "a", TotalPrice: models.Float(100), LeadTimeDays: models.Float(10), WarrantyMonths: models.Float(12)},
		{ID: "b", TotalPrice: models.Float(200), LeadTimeDays: models.Float(5), ShippingCost: models.Float(math.NaN())},
		{ID: "c", TotalPrice: models.Float(150), ShippingCost: models.Float(20)},
	}

	got := Default().Eligible(quotes)
	require.Len(t, got, 2)
	assert.Equal(t, KeyTotalPrice, got[0].Key)
	assert.Equal(t, 3, got[0].Count)
	assert.Equal(t, KeyLeadTimeDays, got[1].Key)
	assert.Equal(t, 2, got[1].Count)
}

func TestEligibleGate(t *testing.T) {
	one := []*models.Quote{
		{ID: "a", UnitPrice: models.Float(1)},
		{ID: "b"},
	}
	assert.Empty(t, Default().Eligible(one))

	two := []*models.Quote{
		{ID: "a", UnitPrice: models.Float(1)},
		{ID: "b", UnitPrice: models.Float(2)},
	}
	got := Default().Eligible(two)
	require.Len(t, got, 1)
	assert.Equal(t, KeyUnitPrice, got[0].Key)
}

func TestEligibleTiesKeepCatalogOrder(t *testing.T) {
	quotes := []*models.Quote{
		{ID: "a", ShippingCost: models.Float(1), TotalPrice: models.Float(1), WarrantyMonths: models.Float(1)},
		{ID: "b", ShippingCost: models.Float(2), TotalPrice: models.Float(2), WarrantyMonths: models.Float(2)},
	}
	got := Default().Eligible(quotes)
	require.Len(t, got, 3)
	assert.Equal(t, []string{KeyTotalPrice, KeyWarrantyMonths, KeyShippingCost},
		[]string{got[0].Key, got[1].Key, got[2].Key})
}

func TestEligibleEmpty(t *testing.T) {
	assert.Empty(t, Default().Eligible(nil))
}

func TestAvailabilityJSON(t *testing.T) {
	b, err := json.Marshal(Availability{Parameter: Parameter{Key: "k", Name: "K", Direction: Lower}, Count: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"k","name":"K","direction":"lower","count":2}`, string(b))
}
