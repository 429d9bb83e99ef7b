// Package classifier provides the binary scoring function used by the
// detector. Any Model satisfying the interface can be persisted in a bundle
// once a decoder for its algorithm is registered.
package classifier

import (
	"encoding/json"
	"fmt"
	"sync"
)

const (
	LabelNormal = 0
	LabelAttack = 1
)

// Model maps a scaled feature vector to a label in {0, 1}.
type Model interface {
	Algorithm() string
	NumFeatures() int
	// PredictProba returns the probability of LabelAttack.
	PredictProba(x []float64) float64
	Predict(x []float64) int
}

// Decoder rebuilds a Model from its persisted parameters.
type Decoder func(params json.RawMessage) (Model, error)

var (
	decodersMu sync.RWMutex
	decoders   = map[string]Decoder{}
)

// RegisterDecoder makes an algorithm loadable by Unmarshal.
func RegisterDecoder(algorithm string, dec Decoder) {
	decodersMu.Lock()
	defer decodersMu.Unlock()
	decoders[algorithm] = dec
}

type envelope struct {
	Algorithm string          `json:"algorithm"`
	Params    json.RawMessage `json:"params"`
}

// Marshal serializes a model together with its algorithm name.
func Marshal(m Model) ([]byte, error) {
	params, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s model: %w", m.Algorithm(), err)
	}
	return json.Marshal(envelope{Algorithm: m.Algorithm(), Params: params})
}

// Unmarshal decodes a model written by Marshal.
func Unmarshal(data []byte) (Model, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}

	decodersMu.RLock()
	dec, ok := decoders[env.Algorithm]
	decodersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown model algorithm %q", env.Algorithm)
	}
	return dec(env.Params)
}
