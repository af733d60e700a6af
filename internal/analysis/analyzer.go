// Package analysis extracts structured quotes from supplier replies with the help of
// the generative model.
package analysis

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/hyperjump/rfqrank/internal/ai"
	"github.com/hyperjump/rfqrank/internal/extract"
	"github.com/hyperjump/rfqrank/internal/models"
	"github.com/hyperjump/rfqrank/pkg/utils"
)

// MaxReplyChars bounds the reply text sent to the model.
const MaxReplyChars = 16000

const promptTemplate = `You extract purchase quotes from supplier replies.
Read the reply below and answer with a single JSON object and nothing else, using these keys:
  "supplier_name": string,
  "total_price": number or string with currency,
  "unit_price": number or string with currency,
  "quantity": number,
  "currency": ISO 4217 code,
  "lead_time": delivery time, e.g. "15 days" or "3 weeks",
  "warranty": warranty length, e.g. "12 months",
  "shipping_cost": number or string with currency,
  "payment_terms": string,
  "notes": short string,
  "summary": one sentence summarizing the offer.
Use null for anything the reply does not state. Do not guess.

Reply:
%s`

// known maps model keys to the quote field they fill; everything else is kept
// in the analysis blob.
var known = map[string]bool{
	"supplier_name":   true,
	"total_price":     true,
	"unit_price":      true,
	"quantity":        true,
	"currency":        true,
	"lead_time":       true,
	"lead_time_days":  true,
	"warranty":        true,
	"warranty_months": true,
	"shipping_cost":   true,
	"payment_terms":   true,
	"notes":           true,
	"summary":         true,
}

// Analyzer turns reply text into quotes.
type Analyzer struct {
	gen       ai.Generator
	extractor *extract.Extractor
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an Analyzer. A nil extractor gets the default one.
func New(gen ai.Generator, extractor *extract.Extractor, logger *zap.Logger) *Analyzer {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		gen:       gen,
		extractor: extractor,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Extractor returns the file extractor used by AnalyzeFile.
func (a *Analyzer) Extractor() *extract.Extractor {
	return a.extractor
}

// Analyze asks the model to read text and returns the quote it describes. The
// quote has no ID; storage assigns one.
func (a *Analyzer) Analyze(ctx context.Context, briefingID, text string) (*models.Quote, error) {
	if strings.TrimSpace(briefingID) == "" {
		return nil, fmt.Errorf("briefing ID is required: %w", models.ErrInvalidInput)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("reply text is empty: %w", models.ErrInvalidInput)
	}

	resp, err := a.gen.Generate(ctx, fmt.Sprintf(promptTemplate, utils.Truncate(text, MaxReplyChars)))
	if err != nil {
		return nil, fmt.Errorf("analyze reply: %w", err)
	}

	var fields map[string]any
	if err := ai.DecodeJSON(resp, &fields); err != nil {
		a.logger.Warn("Model reply was not a quote object",
			zap.String("briefing_id", briefingID),
			zap.String("response", utils.Truncate(resp, 200)),
			zap.Error(err))
		return nil, fmt.Errorf("analyze reply: %w", err)
	}

	q := QuoteFromFields(briefingID, fields)
	if q.Currency == models.DefaultCurrency {
		if c := DetectCurrency(text); c != "" {
			if _, stated := fields["currency"].(string); !stated {
				q.Currency = c
			}
		}
	}
	q.CreatedAt = a.now()

	a.logger.Debug("Analyzed reply",
		zap.String("briefing_id", briefingID),
		zap.Int("fields", len(fields)),
		zap.Int("extra", len(q.Analysis)))
	return q, nil
}

// AnalyzeFile extracts the reply in path and analyzes it. The sender of an email
// reply names the supplier when the model could not.
func (a *Analyzer) AnalyzeFile(ctx context.Context, briefingID, path string) (*models.Quote, error) {
	doc, err := a.extractor.Extract(path)
	if err != nil {
		return nil, err
	}

	q, err := a.Analyze(ctx, briefingID, doc.Text)
	if err != nil {
		return nil, err
	}

	if q.SupplierName == nil {
		switch {
		case doc.SenderName != "":
			q.SupplierName = models.String(doc.SenderName)
		case doc.Sender != "":
			q.SupplierName = models.String(doc.Sender)
		}
	}
	if q.Analysis == nil {
		q.Analysis = map[string]any{}
	}
	q.Analysis["source_file"] = filepath.Base(path)
	q.Analysis["source_format"] = doc.Format
	if doc.Sender != "" {
		q.Analysis["sender"] = doc.Sender
	}
	if doc.Subject != "" {
		q.Analysis["subject"] = doc.Subject
	}
	return q, nil
}

// QuoteFromFields maps a decoded model object onto a quote. Values that do not
// parse are left nil rather than rejected.
func QuoteFromFields(briefingID string, fields map[string]any) *models.Quote {
	q := &models.Quote{
		BriefingID: briefingID,
		Currency:   models.DefaultCurrency,
		Source:     models.SourceExtraction,
	}

	if name := cleanString(fields["supplier_name"]); name != "" {
		q.SupplierName = models.String(name)
	}
	q.TotalPrice = amount(fields["total_price"])
	q.UnitPrice = amount(fields["unit_price"])
	q.ShippingCost = amount(fields["shipping_cost"])
	if f, ok := ParseAmount(fields["quantity"]); ok && f > 0 {
		q.Quantity = models.Float(f)
	}
	if q.TotalPrice == nil && q.UnitPrice != nil && q.Quantity != nil {
		total, _ := decimal.NewFromFloat(*q.UnitPrice).Mul(decimal.NewFromFloat(*q.Quantity)).Round(2).Float64()
		q.TotalPrice = models.Float(total)
	}

	if f, ok := ParseDays(first(fields, "lead_time_days", "lead_time")); ok {
		q.LeadTimeDays = models.Float(f)
	}
	if f, ok := ParseMonths(first(fields, "warranty_months", "warranty")); ok {
		q.WarrantyMonths = models.Float(f)
	}
	q.WarrantyPeriod = cleanString(fields["warranty"])

	if c := strings.ToUpper(cleanString(fields["currency"])); len(c) == 3 {
		q.Currency = c
	} else if c := DetectCurrency(cleanString(fields["currency"]) + " " + cleanString(fields["total_price"])); c != "" {
		q.Currency = c
	}
	q.PaymentTerms = cleanString(fields["payment_terms"])
	q.Notes = cleanString(fields["notes"])

	extra := map[string]any{}
	for k, v := range fields {
		if !known[k] && v != nil {
			extra[k] = v
		}
	}
	if s := cleanString(fields["summary"]); s != "" {
		extra["ai_summary"] = s
	}
	if len(extra) > 0 {
		q.Analysis = extra
	}
	return q
}

func amount(v any) *float64 {
	f, ok := ParseAmount(v)
	if !ok || f < 0 {
		return nil
	}
	return models.Float(f)
}

// first returns the first non-nil value among keys.
func first(fields map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func cleanString(v any) string {
	if v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
		return ""
	}
	return s
}
