// Package models defines core data structures for quotes, conversations, and suppliers.
package models

import "time"

// DefaultCurrency is used when a quote does not state its currency.
const DefaultCurrency = "USD"

// QuoteSource records how a quote entered the system.
type QuoteSource string

const (
	// SourceExtraction is a quote extracted by the model from a supplier reply.
	SourceExtraction QuoteSource = "extraction"
	// SourceManual is a quote typed in by the buyer.
	SourceManual QuoteSource = "manual"
	// SourceSupplier is a quote submitted by the supplier directly.
	SourceSupplier QuoteSource = "supplier"
)

// Quote is one supplier's response to a briefing.
// Numeric fields are nil when the supplier did not state them.
type Quote struct {
	ID             string         `json:"id" db:"id"`
	BriefingID     string         `json:"briefing_id" db:"briefing_id"`
	SupplierName   *string        `json:"supplier_name,omitempty" db:"supplier_name"`
	TotalPrice     *float64       `json:"total_price" db:"total_price"`
	UnitPrice      *float64       `json:"unit_price" db:"unit_price"`
	Quantity       *float64       `json:"quantity" db:"quantity"`
	LeadTimeDays   *float64       `json:"lead_time_days" db:"lead_time_days"`
	WarrantyMonths *float64       `json:"warranty_months" db:"warranty_months"`
	ShippingCost   *float64       `json:"shipping_cost" db:"shipping_cost"`
	Currency       string         `json:"currency" db:"currency"`
	PaymentTerms   string         `json:"payment_terms,omitempty" db:"payment_terms"`
	WarrantyPeriod string         `json:"warranty_period,omitempty" db:"warranty_period"`
	Notes          string         `json:"notes,omitempty" db:"notes"`
	Analysis       map[string]any `json:"analysis,omitempty" db:"analysis"`
	Source         QuoteSource    `json:"source,omitempty" db:"source"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// QuoteFilter narrows a quote listing. Zero Limit means no limit.
type QuoteFilter struct {
	BriefingID string
	Offset     int
	Limit      int
}

// Float returns a pointer to v. Handy for building quotes in code and tests.
func Float(v float64) *float64 {
	return &v
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}
