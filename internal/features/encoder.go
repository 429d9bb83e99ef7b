// Package features holds the preprocessing contract shared by training and
// inference: categorical encoders, the ordered feature schema, and the
// standard scaler.
package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SentinelCode is substituted for any category absent from the fitted
// vocabulary. It is also the code of the first (lowest sorting) trained
// category, so callers that care must check the fallback flag.
const SentinelCode = 0

var ErrUnseenCategory = errors.New("unseen category")

// Encoder maps the category strings of one column to stable integer codes.
// Codes are indexes into the sorted vocabulary.
type Encoder struct {
	Feature string   `json:"feature"`
	Classes []string `json:"classes"`

	index map[string]int
}

// FitEncoder builds the vocabulary of a column from its training values.
func FitEncoder(feature string, values []string) *Encoder {
	uniq := make(map[string]struct{}, 16)
	for _, v := range values {
		uniq[v] = struct{}{}
	}

	classes := make([]string, 0, len(uniq))
	for v := range uniq {
		classes = append(classes, v)
	}
	sort.Strings(classes)

	e := &Encoder{Feature: feature, Classes: classes}
	e.buildIndex()
	return e
}

func (e *Encoder) buildIndex() {
	e.index = make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		e.index[c] = i
	}
}

// Len returns the vocabulary size.
func (e *Encoder) Len() int {
	return len(e.Classes)
}

// Lookup returns the code for value, or ErrUnseenCategory.
func (e *Encoder) Lookup(value string) (int, error) {
	code, ok := e.index[value]
	if !ok {
		return SentinelCode, fmt.Errorf("%w: %q for feature %s", ErrUnseenCategory, value, e.Feature)
	}
	return code, nil
}

// Encode never fails: unseen values resolve to SentinelCode and report
// fallback=true.
func (e *Encoder) Encode(value string) (code int, fallback bool) {
	code, err := e.Lookup(value)
	if err != nil {
		return SentinelCode, true
	}
	return code, false
}

func (e *Encoder) UnmarshalJSON(data []byte) error {
	type plain Encoder
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Feature == "" {
		return errors.New("encoder has no feature name")
	}
	if len(p.Classes) == 0 {
		return fmt.Errorf("encoder for %s has an empty vocabulary", p.Feature)
	}
	for i := 1; i < len(p.Classes); i++ {
		if p.Classes[i-1] >= p.Classes[i] {
			return fmt.Errorf("encoder for %s: vocabulary is not strictly sorted at %q", p.Feature, p.Classes[i])
		}
	}
	*e = Encoder(p)
	e.buildIndex()
	return nil
}

// NormalizeCategory is applied to every categorical value, at fit time and at
// encode time, so both sides see the same spelling.
func NormalizeCategory(value string, lowercase bool) string {
	value = strings.TrimSpace(value)
	if lowercase {
		value = strings.ToLower(value)
	}
	return value
}

// Registry holds one encoder per categorical column.
type Registry struct {
	encoders map[string]*Encoder
}

func NewRegistry() *Registry {
	return &Registry{encoders: make(map[string]*Encoder)}
}

func (r *Registry) Add(e *Encoder) {
	r.encoders[e.Feature] = e
}

func (r *Registry) Get(feature string) (*Encoder, bool) {
	e, ok := r.encoders[feature]
	return e, ok
}

// Features returns the encoded column names in sorted order.
func (r *Registry) Features() []string {
	names := make([]string, 0, len(r.encoders))
	for name := range r.encoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	return len(r.encoders)
}
