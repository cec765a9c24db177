// Package dataset holds the rectangular training table consumed by the
// estimators: a fixed feature schema with typed columns, float64-encoded
// rows and a positive numeric response. Categorical level sets are fixed at
// construction time; rows supplied later must map onto the same levels or
// fail, they are never re-derived.
package dataset

import (
	"errors"
	"fmt"
	"math"
)

// ErrSchemaMismatch reports a row whose features or levels disagree with
// the schema the table was built with.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Kind is the declared type of a feature column.
type Kind int

const (
	Continuous Kind = iota
	Ordered
	Nominal
)

func (k Kind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Ordered:
		return "ordered"
	case Nominal:
		return "nominal"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MaxLevels bounds categorical cardinality so nominal level subsets fit in
// a uint64 bitmask during split search.
const MaxLevels = 32

// Feature describes one column: its name, kind and, for categorical kinds,
// the fixed ordered level set.
type Feature struct {
	Name   string
	Kind   Kind
	Levels []string
}

// Categorical reports whether the feature carries a level set.
func (f Feature) Categorical() bool { return f.Kind == Ordered || f.Kind == Nominal }

// Table is the encoded observation table. Categorical values are stored as
// level indices. Tables are treated as read-only once populated; Subset and
// Split return views that share the schema and copy row references.
type Table struct {
	Features []Feature
	Response string

	X [][]float64
	Y []float64

	levels []map[string]int
}

// New builds an empty table for the given schema. Duplicate feature names,
// a feature named like the response, or an over-wide or empty level set are
// rejected.
func New(features []Feature, response string) (*Table, error) {
	if response == "" {
		return nil, fmt.Errorf("%w: empty response name", ErrSchemaMismatch)
	}
	seen := make(map[string]bool, len(features))
	levels := make([]map[string]int, len(features))
	for i, f := range features {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: feature %d has no name", ErrSchemaMismatch, i)
		}
		if f.Name == response {
			return nil, fmt.Errorf("%w: feature %q collides with response", ErrSchemaMismatch, f.Name)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("%w: duplicate feature %q", ErrSchemaMismatch, f.Name)
		}
		seen[f.Name] = true
		if f.Categorical() {
			if len(f.Levels) == 0 {
				return nil, fmt.Errorf("%w: categorical feature %q has no levels", ErrSchemaMismatch, f.Name)
			}
			if len(f.Levels) > MaxLevels {
				return nil, fmt.Errorf("%w: feature %q has %d levels, max %d", ErrSchemaMismatch, f.Name, len(f.Levels), MaxLevels)
			}
			idx := make(map[string]int, len(f.Levels))
			for j, l := range f.Levels {
				if _, dup := idx[l]; dup {
					return nil, fmt.Errorf("%w: feature %q repeats level %q", ErrSchemaMismatch, f.Name, l)
				}
				idx[l] = j
			}
			levels[i] = idx
		} else if len(f.Levels) > 0 {
			return nil, fmt.Errorf("%w: continuous feature %q declares levels", ErrSchemaMismatch, f.Name)
		}
	}
	return &Table{Features: features, Response: response, levels: levels}, nil
}

// Add encodes one raw row and appends it. The response must be a positive
// number; rows with missing or unknown values fail, they are not imputed.
func (t *Table) Add(vals map[string]any, response float64) error {
	if !(response > 0) || math.IsInf(response, 0) {
		return fmt.Errorf("%w: response %v is not a positive number", ErrSchemaMismatch, response)
	}
	x, err := t.EncodeRow(vals)
	if err != nil {
		return err
	}
	t.X = append(t.X, x)
	t.Y = append(t.Y, response)
	return nil
}

// EncodeRow maps a raw row onto the schema. Continuous features accept
// float64 or int; categorical features accept a level name from the fixed
// level set. Anything else is a schema mismatch.
func (t *Table) EncodeRow(vals map[string]any) ([]float64, error) {
	x := make([]float64, len(t.Features))
	for i, f := range t.Features {
		v, ok := vals[f.Name]
		if !ok {
			return nil, fmt.Errorf("%w: missing feature %q", ErrSchemaMismatch, f.Name)
		}
		switch f.Kind {
		case Continuous:
			switch n := v.(type) {
			case float64:
				if math.IsNaN(n) || math.IsInf(n, 0) {
					return nil, fmt.Errorf("%w: feature %q is %v", ErrSchemaMismatch, f.Name, n)
				}
				x[i] = n
			case int:
				x[i] = float64(n)
			default:
				return nil, fmt.Errorf("%w: feature %q wants a number, got %T", ErrSchemaMismatch, f.Name, v)
			}
		case Ordered, Nominal:
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: feature %q wants a level name, got %T", ErrSchemaMismatch, f.Name, v)
			}
			j, ok := t.levels[i][s]
			if !ok {
				return nil, fmt.Errorf("%w: feature %q has no level %q", ErrSchemaMismatch, f.Name, s)
			}
			x[i] = float64(j)
		}
	}
	return x, nil
}

// CheckRow validates an already-encoded row against the schema: length and,
// for categorical columns, an integral level index within the level set.
func (t *Table) CheckRow(x []float64) error {
	if len(x) != len(t.Features) {
		return fmt.Errorf("%w: row has %d values, schema has %d features", ErrSchemaMismatch, len(x), len(t.Features))
	}
	for i, f := range t.Features {
		if !f.Categorical() {
			continue
		}
		v := x[i]
		if v != math.Trunc(v) || v < 0 || int(v) >= len(f.Levels) {
			return fmt.Errorf("%w: feature %q value %v outside its %d levels", ErrSchemaMismatch, f.Name, v, len(f.Levels))
		}
	}
	return nil
}

// FeatureIndex returns the schema position of name, or -1.
func (t *Table) FeatureIndex(name string) int {
	for i, f := range t.Features {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// NumRows returns the row count.
func (t *Table) NumRows() int { return len(t.Y) }

// Subset returns a view over the given row indices. The schema is shared
// and row slices are referenced, not copied; neither table mutates the
// other's rows.
func (t *Table) Subset(rows []int) *Table {
	s := &Table{
		Features: t.Features,
		Response: t.Response,
		levels:   t.levels,
		X:        make([][]float64, len(rows)),
		Y:        make([]float64, len(rows)),
	}
	for i, r := range rows {
		s.X[i] = t.X[r]
		s.Y[i] = t.Y[r]
	}
	return s
}
