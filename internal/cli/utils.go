// Package cli renders rankings and quotes for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/hyperjump/rfqrank/internal/models"
	"github.com/hyperjump/rfqrank/internal/scoring"
	"github.com/hyperjump/rfqrank/pkg/utils"
)

// OutputFormat is the format for ranking output.
type OutputFormat string

const (
	// OutputText is a human-readable table (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// Score labels, best first.
const (
	BestValue     = "Best"
	StrongValue   = "Strong"
	FairValue     = "Fair"
	WeakValue     = "Weak"
	UnscoredValue = "-"
)

var (
	bestColor   = color.New(color.FgGreen, color.Bold)
	strongColor = color.New(color.FgCyan)
	fairColor   = color.New(color.FgYellow)
	weakColor   = color.New(color.FgRed)
)

// PlainLabel buckets a 0 to 100 score.
func PlainLabel(score *float64) string {
	if score == nil {
		return UnscoredValue
	}
	switch s := *score; {
	case s >= 80:
		return BestValue
	case s >= 60:
		return StrongValue
	case s >= 40:
		return FairValue
	default:
		return WeakValue
	}
}

// ColorLabel is PlainLabel colored for a terminal.
func ColorLabel(score *float64) string {
	text := PlainLabel(score)
	switch text {
	case BestValue:
		return bestColor.Sprint(text)
	case StrongValue:
		return strongColor.Sprint(text)
	case FairValue:
		return fairColor.Sprint(text)
	case WeakValue:
		return weakColor.Sprint(text)
	default:
		return text
	}
}

// WriteRanking writes a scoring result to w in the given format. Unknown
// formats fall back to text.
func WriteRanking(w io.Writer, res *scoring.Result, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return writeRankingTable(w, res)
}

func writeRankingTable(w io.Writer, res *scoring.Result) error {
	if len(res.Quotes) == 0 {
		_, err := fmt.Fprintln(w, "No quotes yet.")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Rank", "Supplier", "Total", "Lead time", "Warranty", "Score", "Label", "Top factors"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	var rows [][]string
	for i, sq := range res.Quotes {
		rank := "-"
		score := "-"
		if res.Scored {
			rank = strconv.Itoa(i + 1)
			score = fmt.Sprintf("%.1f", *sq.Score)
		}
		rows = append(rows, []string{
			rank,
			supplierName(sq.Quote),
			money(sq.TotalPrice, sq.Currency),
			number(sq.LeadTimeDays, "d"),
			number(sq.WarrantyMonths, "mo"),
			score,
			ColorLabel(sq.Score),
			TopFactors(sq, 2),
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	if !res.Scored {
		_, err := fmt.Fprintln(w, "\nNo weights set yet; quotes are listed as received.")
		return err
	}
	_, err := fmt.Fprintf(w, "\nScored %d quotes on %s\n", len(res.Quotes), strings.Join(res.EnabledParams, ", "))
	return err
}

// TopFactors names the parameters that contributed most to a quote's score.
func TopFactors(sq *scoring.ScoredQuote, n int) string {
	type factor struct {
		key   string
		share float64
	}
	var factors []factor
	for key, ps := range sq.ParameterScores {
		if ps.Contribution > 0 {
			factors = append(factors, factor{key, ps.Contribution})
		}
	}
	sort.Slice(factors, func(i, j int) bool {
		if factors[i].share != factors[j].share {
			return factors[i].share > factors[j].share
		}
		return factors[i].key < factors[j].key
	})
	if len(factors) > n {
		factors = factors[:n]
	}
	parts := make([]string, len(factors))
	for i, f := range factors {
		parts[i] = fmt.Sprintf("%s %.0f%%", f.key, f.share)
	}
	return strings.Join(parts, ", ")
}

// WriteQuote writes one quote to w.
func WriteQuote(w io.Writer, q *models.Quote, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(q)
	}
	fmt.Fprintf(w, "Supplier:  %s\n", supplierName(q))
	fmt.Fprintf(w, "Total:     %s\n", money(q.TotalPrice, q.Currency))
	fmt.Fprintf(w, "Unit:      %s\n", money(q.UnitPrice, q.Currency))
	fmt.Fprintf(w, "Quantity:  %s\n", number(q.Quantity, ""))
	fmt.Fprintf(w, "Lead time: %s\n", number(q.LeadTimeDays, " days"))
	fmt.Fprintf(w, "Warranty:  %s\n", number(q.WarrantyMonths, " months"))
	fmt.Fprintf(w, "Shipping:  %s\n", money(q.ShippingCost, q.Currency))
	if q.PaymentTerms != "" {
		fmt.Fprintf(w, "Payment:   %s\n", q.PaymentTerms)
	}
	if q.Notes != "" {
		fmt.Fprintf(w, "Notes:     %s\n", utils.Truncate(q.Notes, 200))
	}
	return nil
}

func supplierName(q *models.Quote) string {
	if q.SupplierName == nil || *q.SupplierName == "" {
		return "(unknown)"
	}
	return utils.Truncate(*q.SupplierName, 40)
}

func money(v *float64, currency string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f %s", *v, currency)
}

func number(v *float64, unit string) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64) + unit
}
