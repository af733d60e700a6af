package catalog

import "github.com/hyperjump/rfqrank/internal/models"

// Parameter keys of the default catalog.
const (
	KeyTotalPrice     = "total_price"
	KeyUnitPrice      = "unit_price"
	KeyLeadTimeDays   = "lead_time_days"
	KeyWarrantyMonths = "warranty_months"
	KeyShippingCost   = "shipping_cost"
	KeyBusinessRating = "business_rating"
)

// RatingScale is the scale business ratings are normalized to when the analysis blob declares its own.
const RatingScale = 5.0

var defaultCatalog = MustNew(
	Parameter{Key: KeyTotalPrice, Name: "Total Price", Direction: Lower, Accessor: field(func(q *models.Quote) *float64 { return q.TotalPrice })},
	Parameter{Key: KeyUnitPrice, Name: "Unit Price", Direction: Lower, Accessor: field(func(q *models.Quote) *float64 { return q.UnitPrice })},
	Parameter{Key: KeyLeadTimeDays, Name: "Lead Time (days)", Direction: Lower, Accessor: field(func(q *models.Quote) *float64 { return q.LeadTimeDays })},
	Parameter{Key: KeyWarrantyMonths, Name: "Warranty (months)", Direction: Higher, Accessor: field(func(q *models.Quote) *float64 { return q.WarrantyMonths })},
	Parameter{Key: KeyShippingCost, Name: "Shipping Cost", Direction: Lower, Accessor: field(func(q *models.Quote) *float64 { return q.ShippingCost })},
	Parameter{Key: KeyBusinessRating, Name: "Business Rating", Direction: Higher, Accessor: businessRating},
)

// Default returns the built-in catalog.
func Default() *Catalog {
	return defaultCatalog
}

func field(get func(q *models.Quote) *float64) func(q *models.Quote) any {
	return func(q *models.Quote) any {
		if q == nil {
			return nil
		}
		v := get(q)
		if v == nil {
			return nil
		}
		return *v
	}
}

// businessRating reads the rating from the analysis blob. It accepts either a bare value with an
// optional sibling "rating_scale", or an object {"value": ..., "scale": ...}.
func businessRating(q *models.Quote) any {
	if q == nil || q.Analysis == nil {
		return nil
	}
	raw, ok := q.Analysis[KeyBusinessRating]
	if !ok {
		return nil
	}

	var value, scale any
	if m, isMap := raw.(map[string]any); isMap {
		value, scale = m["value"], m["scale"]
	} else {
		value, scale = raw, q.Analysis["rating_scale"]
	}

	v, ok := ToNumber(value)
	if !ok {
		return nil
	}
	if s, ok := ToNumber(scale); ok && s > 0 {
		return v / s * RatingScale
	}
	return v
}
