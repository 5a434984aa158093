package multiprojectengine

import (
	"fmt"
	"math"
	"strings"

	"github.com/modelkit/contrast/contrast"
)

const (
	// MaxCoefficients bounds the size of an uploaded summary. 500 is far
	// beyond any sane fixed-effect table and keeps all-pairs enumeration
	// (N*(N-1) results) bounded.
	MaxCoefficients = 500

	// MaxNameLength bounds coefficient and model names. Fitting libraries
	// produce names like "speciesGentoo:sexmale"; 200 leaves headroom for
	// deep interaction terms.
	MaxNameLength = 200
)

// ValidateSummary validates an uploaded model summary before it is stored.
// Returns an error if validation fails, nil if the summary is valid.
func ValidateSummary(sum *contrast.ModelSummary) error {
	if strings.TrimSpace(sum.Name) == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if len(sum.Name) > MaxNameLength {
		return fmt.Errorf("model name exceeds %d characters", MaxNameLength)
	}

	if len(sum.Coefficients) == 0 {
		return fmt.Errorf("summary must contain at least one coefficient")
	}
	if len(sum.Coefficients) > MaxCoefficients {
		return fmt.Errorf("summary contains %d coefficients, maximum allowed is %d",
			len(sum.Coefficients), MaxCoefficients)
	}

	seen := make(map[string]bool, len(sum.Coefficients))
	for _, c := range sum.Coefficients {
		if err := validateCoefficientName(c.Name); err != nil {
			return err
		}

		if seen[c.Name] {
			return fmt.Errorf("duplicate coefficient %q", c.Name)
		}
		seen[c.Name] = true

		if math.IsNaN(c.Estimate) || math.IsInf(c.Estimate, 0) {
			return fmt.Errorf("coefficient %q has non-finite estimate", c.Name)
		}

		if math.IsNaN(c.StdErr) || math.IsInf(c.StdErr, 0) {
			return fmt.Errorf("coefficient %q has non-finite standard error", c.Name)
		}
		if c.StdErr < 0 {
			return fmt.Errorf("coefficient %q has negative standard error %v", c.Name, c.StdErr)
		}
	}

	return nil
}

// validateCoefficientName checks a coefficient name. Names come straight
// from the fitting library and may contain characters like "(Intercept)" or
// "a:b", so only emptiness, padding, and length are enforced.
func validateCoefficientName(name string) error {
	if name == "" {
		return fmt.Errorf("coefficient name cannot be empty")
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("coefficient name %q has leading/trailing whitespace", name)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("coefficient name %q exceeds %d characters", name, MaxNameLength)
	}
	return nil
}

// ValidateScreen checks the parts of a screen the CEL compiler cannot:
// name presence and padding. Expression validity is established by the
// engine when it compiles the screen.
func ValidateScreen(screen *contrast.Screen) error {
	if strings.TrimSpace(screen.Name) == "" {
		return fmt.Errorf("screen name cannot be empty")
	}
	if len(screen.Name) > MaxNameLength {
		return fmt.Errorf("screen name exceeds %d characters", MaxNameLength)
	}
	if strings.TrimSpace(screen.Expression) == "" {
		return fmt.Errorf("screen expression cannot be empty")
	}
	return nil
}
