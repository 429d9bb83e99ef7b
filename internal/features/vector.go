package features

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var errNotFinite = errors.New("value is not finite")

// FieldSource yields raw field values by name.
type FieldSource interface {
	Field(name string) (string, bool)
}

// Fields is a FieldSource over a plain map.
type Fields map[string]string

func (f Fields) Field(name string) (string, bool) {
	v, ok := f[name]
	return v, ok
}

// Vector is one encoded, unscaled row in schema order.
type Vector struct {
	Values []float64
	// Fallbacks names the categorical features that were encoded with
	// SentinelCode because their value was not in the vocabulary.
	Fallbacks []string
	// Defaulted names the features filled from their schema default.
	Defaulted []string
}

// BuildVector lays src out in schema order. The result never depends on how
// src iterates.
func BuildVector(src FieldSource, schema *Schema, encoders *Registry) (*Vector, error) {
	vec := &Vector{Values: make([]float64, schema.Len())}

	for i, f := range schema.Features {
		raw, ok := src.Field(f.Name)
		if !ok || strings.TrimSpace(raw) == "" {
			if f.Default == nil {
				return nil, &MissingFeatureError{Feature: f.Name}
			}
			vec.Values[i] = *f.Default
			vec.Defaulted = append(vec.Defaulted, f.Name)
			continue
		}

		switch f.Kind {
		case KindNumeric:
			v, err := ParseNumeric(raw)
			if err != nil {
				return nil, &InvalidInputError{Feature: f.Name, Value: raw, Err: err}
			}
			vec.Values[i] = v

		case KindCategorical:
			enc, ok := encoders.Get(f.Name)
			if !ok {
				return nil, fmt.Errorf("no encoder for categorical feature %q", f.Name)
			}
			code, fallback := enc.Encode(NormalizeCategory(raw, f.Lowercase))
			if fallback {
				vec.Fallbacks = append(vec.Fallbacks, f.Name)
			}
			vec.Values[i] = float64(code)
		}
	}

	return vec, nil
}

// ParseNumeric parses a finite float64.
func ParseNumeric(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	return v, nil
}
