package analysis

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hyperjump/rfqrank/internal/catalog"
)

var (
	amountChars = regexp.MustCompile(`[^0-9.,\-]`)
	durationRe  = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)(?:\s*(?:-|to)\s*(\d+(?:[.,]\d+)?))?\s*([a-z]+)?`)
	currencyRe  = regexp.MustCompile(`\b(USD|EUR|GBP|BRL|JPY|CNY|CAD|AUD|CHF|MXN|INR|ARS|CLP|COP)\b`)
)

var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"R$", "BRL"},
	{"US$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"$", "USD"},
}

// ParseAmount reads a money amount from a number or a string such as "$1,250.00"
// or "1.250,50 EUR". The result is rounded to cents.
func ParseAmount(v any) (float64, bool) {
	s, isString := v.(string)
	if !isString {
		f, ok := catalog.ToNumber(v)
		if !ok {
			return 0, false
		}
		f, _ = decimal.NewFromFloat(f).Round(2).Float64()
		return f, true
	}

	s = amountChars.ReplaceAllString(s, "")
	s = strings.Trim(s, ".,")
	if s == "" || s == "-" {
		return 0, false
	}
	s = normalizeSeparators(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Round(2).Float64()
	return f, true
}

// normalizeSeparators rewrites s to use '.' as the only decimal separator.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		// "1,250" and "1,250,000" group thousands, "12,5" is a decimal comma.
		if strings.Count(s, ",") > 1 || len(s)-lastComma-1 == 3 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// DetectCurrency returns the ISO code named or implied by s, or "" if none.
func DetectCurrency(s string) string {
	if m := currencyRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	for _, c := range currencySymbols {
		if strings.Contains(s, c.symbol) {
			return c.code
		}
	}
	return ""
}

var daysPerUnit = map[string]float64{
	"d": 1, "day": 1, "days": 1,
	"bd": 1, "business": 1,
	"w": 7, "wk": 7, "wks": 7, "week": 7, "weeks": 7,
	"m": 30, "mo": 30, "month": 30, "months": 30,
	"y": 365, "yr": 365, "yrs": 365, "year": 365, "years": 365,
}

var monthsPerUnit = map[string]float64{
	"d": 1.0 / 30, "day": 1.0 / 30, "days": 1.0 / 30,
	"w": 7.0 / 30, "week": 7.0 / 30, "weeks": 7.0 / 30,
	"m": 1, "mo": 1, "month": 1, "months": 1,
	"y": 12, "yr": 12, "yrs": 12, "year": 12, "years": 12,
}

// ParseDays reads a lead time. Bare numbers are days; strings may carry a unit
// ("3 weeks") and ranges ("10-15 days") resolve to their upper bound.
func ParseDays(v any) (float64, bool) {
	return parseDuration(v, daysPerUnit, 1)
}

// ParseMonths reads a warranty length. Bare numbers are months.
func ParseMonths(v any) (float64, bool) {
	return parseDuration(v, monthsPerUnit, 1)
}

func parseDuration(v any, units map[string]float64, bare float64) (float64, bool) {
	s, isString := v.(string)
	if !isString {
		f, ok := catalog.ToNumber(v)
		if !ok || f < 0 {
			return 0, false
		}
		return f * bare, true
	}

	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	value := m[1]
	if m[2] != "" {
		value = m[2]
	}
	d, err := decimal.NewFromString(strings.Replace(value, ",", ".", 1))
	if err != nil {
		return 0, false
	}

	factor := bare
	if unit := strings.ToLower(m[3]); unit != "" {
		f, ok := units[unit]
		if !ok {
			return 0, false
		}
		factor = f
	}
	out, _ := d.Mul(decimal.NewFromFloat(factor)).Round(1).Float64()
	return out, true
}
