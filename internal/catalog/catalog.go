// Package catalog declares the quote attributes that can be compared and how to read them.
package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/hyperjump/rfqrank/internal/models"
	"github.com/hyperjump/rfqrank/pkg/utils"
)

// Direction says which end of a parameter's range is better.
type Direction string

const (
	// Lower means smaller values are better (price, lead time).
	Lower Direction = "lower"
	// Higher means larger values are better (warranty, rating).
	Higher Direction = "higher"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Lower || d == Higher
}

// MinEligibleCount is the number of quotes that must report a parameter before it can be scored.
const MinEligibleCount = 2

// Parameter is one comparable attribute. Accessor returns the raw value for a quote and
// may return nil; it must not panic on missing nested data.
type Parameter struct {
	Key       string                    `json:"key"`
	Name      string                    `json:"name"`
	Direction Direction                 `json:"direction"`
	Accessor  func(q *models.Quote) any `json:"-"`
}

// Value reads the parameter from q and coerces it to a finite number.
// The second result is false when the value is absent or malformed.
func (p Parameter) Value(q *models.Quote) (float64, bool) {
	if q == nil || p.Accessor == nil {
		return 0, false
	}
	return ToNumber(p.Accessor(q))
}

// Availability is an eligible parameter together with how many quotes report it.
type Availability struct {
	Parameter
	Count int `json:"count"`
}

// Catalog is an ordered, immutable set of parameters.
type Catalog struct {
	params []Parameter
	byKey  map[string]int
}

// New builds a catalog. A malformed entry is a programming error and is reported as such.
func New(params ...Parameter) (*Catalog, error) {
	c := &Catalog{byKey: make(map[string]int, len(params))}
	for _, p := range params {
		if strings.TrimSpace(p.Key) == "" {
			return nil, fmt.Errorf("catalog: parameter with empty key")
		}
		if _, dup := c.byKey[p.Key]; dup {
			return nil, fmt.Errorf("catalog: duplicate parameter %q", p.Key)
		}
		if !p.Direction.Valid() {
			return nil, fmt.Errorf("catalog: parameter %q has invalid direction %q", p.Key, p.Direction)
		}
		if p.Accessor == nil {
			return nil, fmt.Errorf("catalog: parameter %q has no accessor", p.Key)
		}
		c.byKey[p.Key] = len(c.params)
		c.params = append(c.params, p)
	}
	return c, nil
}

// MustNew is New that panics on a malformed entry.
func MustNew(params ...Parameter) *Catalog {
	c, err := New(params...)
	if err != nil {
		panic(err)
	}
	return c
}

// Parameters returns the parameters in declaration order.
func (c *Catalog) Parameters() []Parameter {
	return append([]Parameter(nil), c.params...)
}

// Lookup returns the parameter for key.
func (c *Catalog) Lookup(key string) (Parameter, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Parameter{}, false
	}
	return c.params[i], true
}

// Eligible counts, per parameter, the quotes with a valid numeric value and returns the
// parameters reported by at least MinEligibleCount quotes, most reported first.
// Ties keep catalog order.
func (c *Catalog) Eligible(quotes []*models.Quote) []Availability {
	out := make([]Availability, 0, len(c.params))
	for _, p := range c.params {
		count := 0
		for _, q := range quotes {
			if _, ok := p.Value(q); ok {
				count++
			}
		}
		if count >= MinEligibleCount {
			out = append(out, Availability{Parameter: p, Count: count})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

// ToNumber coerces v to a finite float64. nil, empty strings, booleans, NaN and
// infinities are treated as absent.
func ToNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case *float64:
		if x == nil {
			return 0, false
		}
		return x2finite(*x)
	case bool:
		return 0, false
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		v = s
	case json.Number:
		if strings.TrimSpace(x.String()) == "" {
			return 0, false
		}
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return x2finite(f)
}

func x2finite(f float64) (float64, bool) {
	if !utils.IsFinite(f) {
		return 0, false
	}
	return f, true
}
