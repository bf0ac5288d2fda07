package epi

import "fmt"

// ConfigError reports a structural misconfiguration (length mismatches,
// horizons below the minimum, seed-coverage gaps). It is raised before any
// stochastic work begins; a run that returns ConfigError produced no
// partial trajectory.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Msg)
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// DomainError reports a numerically invalid quantity: a negative rate or
// count, or a probability outside [0,1]. It indicates a modeling bug and is
// never silently clamped.
type DomainError struct {
	Quantity string
	Value    float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("numeric domain error: %s = %v", e.Quantity, e.Value)
}

func domainError(quantity string, value float64) error {
	return &DomainError{Quantity: quantity, Value: value}
}

// InfeasibilityError reports a zero (or underflowing) joint density at a
// supplied latent state. Variable and Day locate the first conditional that
// assigned zero probability, so the caller can diagnose the seed rather
// than retry blindly.
type InfeasibilityError struct {
	Variable string
	Day      int
}

func (e *InfeasibilityError) Error() string {
	return fmt.Sprintf("infeasible state: zero likelihood at %s (day %d)", e.Variable, e.Day)
}
