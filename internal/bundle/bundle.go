// Package bundle persists and serves the matched set of trained artifacts:
// feature schema, categorical encoders, scaler and model.
package bundle

import (
	"fmt"
	"time"

	"botnet-detector/internal/classifier"
	"botnet-detector/internal/features"
	"botnet-detector/internal/model"
)

// CorruptBundleError reports artifacts that cannot be served together.
type CorruptBundleError struct {
	Reason string
	Err    error
}

func (e *CorruptBundleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt bundle: %s: %v", e.Reason, e.Err)
	}
	return "corrupt bundle: " + e.Reason
}

func (e *CorruptBundleError) Unwrap() error {
	return e.Err
}

func corrupt(format string, args ...interface{}) *CorruptBundleError {
	return &CorruptBundleError{Reason: fmt.Sprintf(format, args...)}
}

// Manifest records one training run's artifact files and their checksums.
type Manifest struct {
	RunID       string                  `json:"run_id"`
	CreatedAt   time.Time               `json:"created_at"`
	Algorithm   string                  `json:"algorithm"`
	NumFeatures int                     `json:"n_features"`
	Model       string                  `json:"model"`
	Scaler      string                  `json:"scaler"`
	Schema      string                  `json:"schema"`
	Encoders    map[string]string       `json:"encoders"`
	Checksums   map[string]string       `json:"checksums"`
	Report      *model.EvaluationReport `json:"report,omitempty"`
}

// Bundle is immutable once built; share it freely between goroutines.
type Bundle struct {
	Schema   *features.Schema
	Encoders *features.Registry
	Scaler   *features.Scaler
	Model    classifier.Model
	Manifest Manifest
	// Checksum is the BLAKE3 digest of the manifest the bundle was loaded
	// from, empty for bundles that were never persisted.
	Checksum string
}

// New assembles a bundle and rejects inconsistent parts with a
// CorruptBundleError.
func New(schema *features.Schema, encoders *features.Registry, scaler *features.Scaler, m classifier.Model) (*Bundle, error) {
	b := &Bundle{Schema: schema, Encoders: encoders, Scaler: scaler, Model: m}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bundle) Validate() error {
	if b.Schema == nil || b.Schema.Len() == 0 {
		return corrupt("feature schema is empty")
	}
	if b.Scaler == nil {
		return corrupt("scaler is missing")
	}
	if b.Model == nil {
		return corrupt("model is missing")
	}
	if b.Encoders == nil {
		b.Encoders = features.NewRegistry()
	}

	n := b.Schema.Len()
	if err := b.Scaler.Validate(); err != nil {
		return &CorruptBundleError{Reason: "invalid scaler", Err: err}
	}
	if b.Scaler.Dim() != n {
		return corrupt("schema has %d features but scaler was fitted on %d", n, b.Scaler.Dim())
	}
	if b.Model.NumFeatures() != n {
		return corrupt("schema has %d features but model expects %d", n, b.Model.NumFeatures())
	}
	for _, name := range b.Schema.Categorical() {
		enc, ok := b.Encoders.Get(name)
		if !ok {
			return corrupt("no encoder for categorical feature %q", name)
		}
		if enc.Len() == 0 {
			return corrupt("encoder for %q has an empty vocabulary", name)
		}
	}
	return nil
}

// ID identifies the training run that produced the bundle. It is empty
// until the bundle has been saved.
func (b *Bundle) ID() string {
	return b.Manifest.RunID
}
