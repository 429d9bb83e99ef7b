package features

import "fmt"

// MissingFeatureError reports a schema feature that is absent from a record
// and has no default.
type MissingFeatureError struct {
	Feature string
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("missing required feature %q", e.Feature)
}

// InvalidInputError reports a value that could not be converted for a named
// feature.
type InvalidInputError struct {
	Feature string
	Value   string
	Err     error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid value %q for feature %q: %v", e.Value, e.Feature, e.Err)
}

func (e *InvalidInputError) Unwrap() error {
	return e.Err
}
