package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

const AlgorithmRandomForest = "random_forest"

func init() {
	RegisterDecoder(AlgorithmRandomForest, func(params json.RawMessage) (Model, error) {
		var f Forest
		if err := json.Unmarshal(params, &f); err != nil {
			return nil, fmt.Errorf("failed to parse random forest: %w", err)
		}
		if err := f.Validate(); err != nil {
			return nil, err
		}
		return &f, nil
	})
}

// ForestConfig controls random forest training.
type ForestConfig struct {
	NEstimators int `json:"n_estimators"`
	// MaxDepth of 0 grows trees until leaves are pure.
	MaxDepth       int `json:"max_depth"`
	MinSamplesLeaf int `json:"min_samples_leaf"`
	// MaxFeatures of 0 uses sqrt(n_features) per split.
	MaxFeatures int   `json:"max_features"`
	Seed        int64 `json:"seed"`
	Workers     int   `json:"-"`
}

func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		NEstimators:    200,
		MinSamplesLeaf: 1,
		Seed:           42,
		Workers:        runtime.NumCPU(),
	}
}

// Forest is a bagged ensemble of gini decision trees. Its prediction is the
// mean leaf probability across trees.
type Forest struct {
	Config   ForestConfig `json:"config"`
	Features int          `json:"n_features"`
	Trees    []*Tree      `json:"trees"`
}

// FitForest trains a forest on x (rows of equal length) and binary labels y.
// Tree i draws from its own generator seeded with Seed+i, so the result does
// not depend on worker scheduling.
func FitForest(ctx context.Context, x [][]float64, y []int, cfg ForestConfig) (*Forest, error) {
	if len(x) == 0 {
		return nil, errors.New("cannot fit forest on zero samples")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("have %d samples but %d labels", len(x), len(y))
	}
	dim := len(x[0])
	if dim == 0 {
		return nil, errors.New("cannot fit forest on zero features")
	}
	for i, row := range x {
		if len(row) != dim {
			return nil, fmt.Errorf("sample %d has %d features, expected %d", i, len(row), dim)
		}
		if y[i] != LabelNormal && y[i] != LabelAttack {
			return nil, fmt.Errorf("sample %d has label %d, expected 0 or 1", i, y[i])
		}
	}
	if cfg.NEstimators <= 0 {
		return nil, fmt.Errorf("n_estimators must be positive, got %d", cfg.NEstimators)
	}
	if cfg.MinSamplesLeaf <= 0 {
		cfg.MinSamplesLeaf = 1
	}
	if cfg.MaxFeatures <= 0 || cfg.MaxFeatures > dim {
		cfg.MaxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(dim)))))
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	forest := &Forest{Config: cfg, Features: dim, Trees: make([]*Tree, cfg.NEstimators)}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < cfg.NEstimators; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(cfg.Seed + int64(i)))
			samples := make([]int, len(x))
			for j := range samples {
				samples[j] = rng.Intn(len(x))
			}
			b := &treeBuilder{
				x:           x,
				y:           y,
				maxDepth:    cfg.MaxDepth,
				minLeaf:     cfg.MinSamplesLeaf,
				maxFeatures: cfg.MaxFeatures,
				rng:         rng,
			}
			forest.Trees[i] = b.build(samples)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return forest, nil
}

func (f *Forest) Algorithm() string {
	return AlgorithmRandomForest
}

func (f *Forest) NumFeatures() int {
	return f.Features
}

func (f *Forest) PredictProba(x []float64) float64 {
	var sum float64
	for _, t := range f.Trees {
		sum += t.predict(x)
	}
	return sum / float64(len(f.Trees))
}

func (f *Forest) Predict(x []float64) int {
	if f.PredictProba(x) > 0.5 {
		return LabelAttack
	}
	return LabelNormal
}

func (f *Forest) Validate() error {
	if f.Features <= 0 {
		return fmt.Errorf("random forest has %d features", f.Features)
	}
	if len(f.Trees) == 0 {
		return errors.New("random forest has no trees")
	}
	for i, t := range f.Trees {
		if t == nil || !t.validate(f.Features) {
			return fmt.Errorf("random forest tree %d is malformed", i)
		}
	}
	return nil
}
