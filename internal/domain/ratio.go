package domain

import (
	"bytes"
	"encoding/json"
	"math"
)

// Ratio is a derived financial ratio that may be undefined when its
// denominator is zero or missing. An undefined ratio is a meaningful
// policy signal, not an error state. It marshals to JSON null so stored
// results survive a round trip (IEEE infinities are not valid JSON).
type Ratio struct {
	value   float64
	defined bool
}

// DefinedRatio returns a ratio with a known value.
func DefinedRatio(v float64) Ratio {
	return Ratio{value: v, defined: true}
}

// UndefinedRatio returns the "could not be calculated" sentinel.
func UndefinedRatio() Ratio {
	return Ratio{}
}

// Defined reports whether the ratio has a finite value.
func (r Ratio) Defined() bool {
	return r.defined
}

// Value returns the ratio value, or positive infinity when undefined.
func (r Ratio) Value() float64 {
	if !r.defined {
		return math.Inf(1)
	}
	return r.value
}

// Exceeds reports whether the ratio is defined and strictly above limit.
// An undefined ratio never "exceeds" a limit; it fails the separate
// could-not-be-calculated check instead.
func (r Ratio) Exceeds(limit float64) bool {
	return r.defined && r.value > limit
}

// Below reports whether the ratio is defined and strictly below limit.
func (r Ratio) Below(limit float64) bool {
	return r.defined && r.value < limit
}

// MarshalJSON encodes an undefined ratio as null.
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.defined {
		return []byte("null"), nil
	}
	return json.Marshal(r.value)
}

// UnmarshalJSON decodes null as an undefined ratio.
func (r *Ratio) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = Ratio{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Ratio{value: v, defined: true}
	return nil
}
