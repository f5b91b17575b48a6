// Package params defines typed parameter domains for strategy
// configuration and optimization. A Domain declares what values a
// parameter may take; a Set holds concrete values. Values outside
// their domain are a validation error, never silently clamped.
package params

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Kind is the value type of a parameter.
type Kind string

const (
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindEnum   Kind = "enum"
)

// stepTolerance absorbs float rounding when checking step multiples.
const stepTolerance = 1e-9

// Domain declares the valid values of a single parameter.
// Numeric domains span [Min, Max] at Step granularity; enum domains
// enumerate Values.
type Domain struct {
	Name   string   `json:"name"`
	Kind   Kind     `json:"kind"`
	Min    float64  `json:"min,omitempty"`
	Max    float64  `json:"max,omitempty"`
	Step   float64  `json:"step,omitempty"`
	Values []string `json:"values,omitempty"`
}

// Number declares a numeric domain.
func Number(name string, min, max, step float64) Domain {
	return Domain{Name: name, Kind: KindNumber, Min: min, Max: max, Step: step}
}

// Bool declares a boolean domain.
func Bool(name string) Domain {
	return Domain{Name: name, Kind: KindBool}
}

// Enum declares an enumerated string domain.
func Enum(name string, values ...string) Domain {
	return Domain{Name: name, Kind: KindEnum, Values: values}
}

// Validate checks that the domain itself is well formed.
func (d Domain) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("domain has no name")
	}
	switch d.Kind {
	case KindNumber:
		if d.Step <= 0 {
			return fmt.Errorf("parameter %q: step must be positive", d.Name)
		}
		if d.Max < d.Min {
			return fmt.Errorf("parameter %q: max %.6g below min %.6g", d.Name, d.Max, d.Min)
		}
	case KindBool:
	case KindEnum:
		if len(d.Values) == 0 {
			return fmt.Errorf("parameter %q: enum has no values", d.Name)
		}
	default:
		return fmt.Errorf("parameter %q: unknown kind %q", d.Name, d.Kind)
	}
	return nil
}

// steps returns the number of valid values in a numeric domain.
func (d Domain) steps() int {
	return int(math.Floor((d.Max-d.Min)/d.Step+stepTolerance)) + 1
}

// Contains reports whether v is a valid value for the domain.
func (d Domain) Contains(v any) bool {
	switch d.Kind {
	case KindNumber:
		x, ok := toFloat(v)
		if !ok {
			return false
		}
		if x < d.Min-stepTolerance || x > d.Max+stepTolerance {
			return false
		}
		// Must sit on a step multiple from Min.
		n := (x - d.Min) / d.Step
		return math.Abs(n-math.Round(n)) < stepTolerance*math.Max(1, math.Abs(n))
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, allowed := range d.Values {
			if s == allowed {
				return true
			}
		}
		return false
	}
	return false
}

// Sample draws a uniformly random valid value from the domain.
func (d Domain) Sample(rng *rand.Rand) any {
	switch d.Kind {
	case KindNumber:
		return d.Min + float64(rng.Intn(d.steps()))*d.Step
	case KindBool:
		return rng.Intn(2) == 0
	case KindEnum:
		return d.Values[rng.Intn(len(d.Values))]
	}
	return nil
}

// Snap returns the valid value closest to x: the nearest step multiple
// of a numeric domain, clamped into [Min, Max]. Used by genetic
// operators to repair recombined genes; regular validation never snaps.
func (d Domain) Snap(x float64) float64 {
	if x <= d.Min {
		return d.Min
	}
	if x >= d.Max {
		return d.Min + float64(d.steps()-1)*d.Step
	}
	n := math.Round((x - d.Min) / d.Step)
	v := d.Min + n*d.Step
	if v > d.Max {
		v -= d.Step
	}
	return v
}

// Set maps parameter names to concrete values.
type Set map[string]any

// Clone returns a shallow copy of the set. Values are scalars, so a
// shallow copy is a full copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Number returns the named value as a float64, or fallback when the
// parameter is absent.
func (s Set) Number(name string, fallback float64) float64 {
	if v, ok := s[name]; ok {
		if x, ok := toFloat(v); ok {
			return x
		}
	}
	return fallback
}

// Flag returns the named boolean value, or fallback when absent.
func (s Set) Flag(name string, fallback bool) bool {
	if v, ok := s[name]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// Choice returns the named enum value, or fallback when absent.
func (s Set) Choice(name string, fallback string) string {
	if v, ok := s[name]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return fallback
}

// Names returns the parameter names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate checks a full set against its declared domains: every domain
// must be well formed and hold an in-domain value, and the set must not
// carry parameters no domain declares.
func Validate(domains []Domain, s Set) error {
	declared := make(map[string]Domain, len(domains))
	for _, d := range domains {
		if err := d.Validate(); err != nil {
			return err
		}
		declared[d.Name] = d
		v, ok := s[d.Name]
		if !ok {
			return fmt.Errorf("parameter %q: missing value", d.Name)
		}
		if !d.Contains(v) {
			return fmt.Errorf("parameter %q: value %v outside domain", d.Name, v)
		}
	}
	for name := range s {
		if _, ok := declared[name]; !ok {
			return fmt.Errorf("parameter %q: not declared by strategy", name)
		}
	}
	return nil
}

// DefaultSet builds a conservative full set: numeric parameters start
// at Min, booleans at false, enums at their first value. Useful as a
// base that callers override before validation.
func DefaultSet(domains []Domain) Set {
	s := make(Set, len(domains))
	for _, d := range domains {
		switch d.Kind {
		case KindNumber:
			s[d.Name] = d.Min
		case KindBool:
			s[d.Name] = false
		case KindEnum:
			if len(d.Values) > 0 {
				s[d.Name] = d.Values[0]
			}
		}
	}
	return s
}

// SampleSet draws a full random set, one value per domain.
func SampleSet(domains []Domain, rng *rand.Rand) Set {
	s := make(Set, len(domains))
	for _, d := range domains {
		s[d.Name] = d.Sample(rng)
	}
	return s
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
