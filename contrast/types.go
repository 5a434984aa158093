package contrast

import "time"

// Coefficient is one fixed-effect entry of a fitted model: a point estimate
// and the standard error reported by the fitting library.
type Coefficient struct {
	Name     string  `json:"name"`
	Estimate float64 `json:"estimate"`
	StdErr   float64 `json:"stdErr"`
}

// ModelSummary holds the fixed-effect table of a model fitted elsewhere.
// It is immutable once stored; the comparator only reads from it.
type ModelSummary struct {
	ID           string
	ProjectID    string
	Name         string
	Family       string // fitting-library label, e.g. "lm" or "lmer"
	Coefficients []Coefficient
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Coefficient returns the named coefficient and whether it exists.
func (m *ModelSummary) Coefficient(name string) (Coefficient, bool) {
	for _, c := range m.Coefficients {
		if c.Name == name {
			return c, true
		}
	}
	return Coefficient{}, false
}

// CoefficientNames returns the coefficient names in table order.
func (m *ModelSummary) CoefficientNames() []string {
	names := make([]string, len(m.Coefficients))
	for i, c := range m.Coefficients {
		names[i] = c.Name
	}
	return names
}

// Comparison is the contrast between two named coefficients of the same
// model: the point difference and a symmetric Wald interval around it.
// Lower <= Estimate <= Upper always holds, with Upper-Estimate equal to
// Estimate-Lower.
type Comparison struct {
	Base       string  `json:"base"`
	Comparison string  `json:"comparison"`
	Estimate   float64 `json:"estimate"`
	PooledSE   float64 `json:"pooledSE"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Level      float64 `json:"level"`
}

// Width returns the total width of the interval.
func (c *Comparison) Width() float64 {
	return c.Upper - c.Lower
}

// PairResult carries one entry of an all-pairs enumeration. Err is set when
// that pair could not be compared; other pairs in the batch are unaffected.
type PairResult struct {
	Base       string      `json:"base"`
	Comparison string      `json:"comparison"`
	Result     *Comparison `json:"result,omitempty"`
	Err        error       `json:"-"`
}

// Screen is a named CEL predicate evaluated against comparison results,
// e.g. flagging intervals that exclude zero or exceed a width bound.
type Screen struct {
	ID         string
	Name       string
	Expression string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ScreenResult contains the outcome of running one screen against one
// comparison.
type ScreenResult struct {
	ScreenID   string
	ScreenName string
	Matched    bool
	Error      error
	Trace      any // CEL evaluation trace (optional)
}
