package features

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
)

// Feature describes one position of the model input vector.
type Feature struct {
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	Lowercase bool   `json:"lowercase,omitempty"`
	// Default is used when the field is absent from a record. It is placed
	// into the vector as is, without encoding.
	Default *float64 `json:"default,omitempty"`
}

// Schema is the ordered list of features. Position i of every vector built
// from it is Features[i].
type Schema struct {
	Features []Feature `json:"features"`

	index map[string]int
}

func NewSchema(features []Feature) (*Schema, error) {
	s := &Schema{Features: append([]Feature(nil), features...)}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Schema) init() error {
	if len(s.Features) == 0 {
		return errors.New("schema has no features")
	}
	s.index = make(map[string]int, len(s.Features))
	for i, f := range s.Features {
		if f.Name == "" {
			return fmt.Errorf("schema feature %d has no name", i)
		}
		if _, dup := s.index[f.Name]; dup {
			return fmt.Errorf("duplicate schema feature %q", f.Name)
		}
		switch f.Kind {
		case KindNumeric, KindCategorical:
		default:
			return fmt.Errorf("schema feature %q has unknown kind %q", f.Name, f.Kind)
		}
		s.index[f.Name] = i
	}
	return nil
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	type plain Schema
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Schema(p)
	return s.init()
}

func (s *Schema) Len() int {
	return len(s.Features)
}

func (s *Schema) Names() []string {
	names := make([]string, len(s.Features))
	for i, f := range s.Features {
		names[i] = f.Name
	}
	return names
}

// Index returns the vector position of a feature.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Required lists, in schema order, the features that have no default and
// must therefore be supplied by the caller.
func (s *Schema) Required() []string {
	var names []string
	for _, f := range s.Features {
		if f.Default == nil {
			names = append(names, f.Name)
		}
	}
	return names
}

// Categorical lists the categorical features in schema order.
func (s *Schema) Categorical() []string {
	var names []string
	for _, f := range s.Features {
		if f.Kind == KindCategorical {
			names = append(names, f.Name)
		}
	}
	return names
}
