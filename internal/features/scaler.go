package features

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes each column to zero mean and unit variance using the
// population standard deviation of the training matrix.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitScaler computes per-column mean and spread. Constant columns get a
// scale of 1 so they transform to 0.
func FitScaler(matrix [][]float64) (*Scaler, error) {
	if len(matrix) == 0 {
		return nil, errors.New("cannot fit scaler on an empty matrix")
	}
	dim := len(matrix[0])
	if dim == 0 {
		return nil, errors.New("cannot fit scaler on zero columns")
	}

	n := float64(len(matrix))
	col := make([]float64, len(matrix))
	s := &Scaler{Mean: make([]float64, dim), Scale: make([]float64, dim)}

	for j := 0; j < dim; j++ {
		for i, row := range matrix {
			if len(row) != dim {
				return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(row), dim)
			}
			col[i] = row[j]
		}

		mean, variance := stat.MeanVariance(col, nil)
		if len(matrix) > 1 {
			variance = variance * (n - 1) / n
		} else {
			variance = 0
		}

		scale := math.Sqrt(variance)
		if scale == 0 || math.IsNaN(scale) {
			scale = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = scale
	}

	return s, nil
}

func (s *Scaler) Dim() int {
	return len(s.Mean)
}

// Transform returns (x - mean) / scale. A length mismatch is a programming
// error and panics.
func (s *Scaler) Transform(x []float64) []float64 {
	if len(x) != len(s.Mean) {
		panic(fmt.Sprintf("scaler: vector has %d values, fitted on %d", len(x), len(s.Mean)))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.Mean[i]) / s.Scale[i]
	}
	return out
}

func (s *Scaler) TransformMatrix(matrix [][]float64) [][]float64 {
	out := make([][]float64, len(matrix))
	for i, row := range matrix {
		out[i] = s.Transform(row)
	}
	return out
}

func (s *Scaler) Validate() error {
	if len(s.Mean) == 0 {
		return errors.New("scaler has no columns")
	}
	if len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("scaler has %d means but %d scales", len(s.Mean), len(s.Scale))
	}
	for i, sc := range s.Scale {
		if sc == 0 || math.IsNaN(sc) || math.IsInf(sc, 0) {
			return fmt.Errorf("scaler column %d has invalid scale %v", i, sc)
		}
	}
	return nil
}
