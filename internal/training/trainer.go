// Package training fits the artifact bundle from a labeled connection
// dataset.
package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"botnet-detector/internal/bundle"
	"botnet-detector/internal/classifier"
	"botnet-detector/internal/features"
	"botnet-detector/internal/model"

	"github.com/sirupsen/logrus"
)

// MissingValue replaces every missing cell before encoding.
const MissingValue = "0"

var ErrQualityGate = errors.New("model accuracy below configured minimum")

type Config struct {
	DataPath    string
	ModelsDir   string
	LabelColumn string
	DropColumns []string
	// Features is the model input in order. Kind is decided from the data.
	Features    []features.Feature
	TestSize    float64
	Seed        int64
	Forest      classifier.ForestConfig
	MinAccuracy float64
}

type Result struct {
	Bundle   *bundle.Bundle
	Report   *model.EvaluationReport
	Manifest *bundle.Manifest
}

type Trainer struct {
	cfg    Config
	logger *logrus.Logger
}

func NewTrainer(cfg Config, logger *logrus.Logger) *Trainer {
	return &Trainer{cfg: cfg, logger: logger}
}

// Run loads the dataset, fits and evaluates the bundle, and persists it.
func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	ds, err := LoadCSV(t.cfg.DataPath)
	if err != nil {
		return nil, err
	}
	t.logger.Infof("Data loaded: %d rows x %d columns from %s", ds.Len(), len(ds.Columns), t.cfg.DataPath)

	res, err := t.Fit(ctx, ds)
	if err != nil {
		return nil, err
	}

	if t.cfg.MinAccuracy > 0 && res.Report.Accuracy < t.cfg.MinAccuracy {
		return nil, fmt.Errorf("%w: %.4f < %.4f, artifacts not written", ErrQualityGate, res.Report.Accuracy, t.cfg.MinAccuracy)
	}

	manifest, err := bundle.Save(t.cfg.ModelsDir, res.Bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to persist bundle: %w", err)
	}
	res.Manifest = manifest
	for name := range manifest.Checksums {
		t.logger.Debugf("Wrote %s", name)
	}
	t.logger.Infof("Bundle %s saved to %s (%d artifacts)", manifest.RunID, t.cfg.ModelsDir, len(manifest.Checksums)+1)

	return res, nil
}

// Fit runs the preprocessing, training and evaluation steps on ds, which is
// modified in place.
func (t *Trainer) Fit(ctx context.Context, ds *Dataset) (*Result, error) {
	cfg := t.cfg
	if !ds.Has(cfg.LabelColumn) {
		return nil, fmt.Errorf("label column %q not found", cfg.LabelColumn)
	}

	dropped, filled := ds.Clean(cfg.DropColumns)
	if len(dropped) > 0 {
		t.logger.Infof("Dropped identifying columns: %v", dropped)
	}
	if filled > 0 {
		t.logger.Infof("Filled %d missing values with %s", filled, MissingValue)
	}

	encoders, err := t.fitEncoders(ds)
	if err != nil {
		return nil, err
	}

	schema, err := t.buildSchema(ds, encoders)
	if err != nil {
		return nil, err
	}
	t.logger.Infof("Feature order: %v", schema.Names())

	labels, err := parseLabels(ds, cfg.LabelColumn)
	if err != nil {
		return nil, err
	}

	raw := make([][]float64, ds.Len())
	for r := range raw {
		vec, err := features.BuildVector(ds.Row(r), schema, encoders)
		if err != nil {
			return nil, fmt.Errorf("dataset row %d: %w", r+1, err)
		}
		raw[r] = vec.Values
	}

	scaler, err := features.FitScaler(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to fit scaler: %w", err)
	}
	scaled := scaler.TransformMatrix(raw)

	trainIdx, testIdx, err := StratifiedSplit(labels, cfg.TestSize, cfg.Seed)
	if err != nil {
		return nil, err
	}
	xTrain, yTrain := gather(scaled, labels, trainIdx)
	xTest, yTest := gather(scaled, labels, testIdx)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	t.logger.Infof("Training %s: %d trees on %d samples", classifier.AlgorithmRandomForest, cfg.Forest.NEstimators, len(xTrain))
	forest, err := classifier.FitForest(ctx, xTrain, yTrain, cfg.Forest)
	if err != nil {
		return nil, fmt.Errorf("failed to fit classifier: %w", err)
	}
	t.logger.Infof("Training finished in %s", time.Since(start).Round(time.Millisecond))

	yPred := make([]int, len(xTest))
	for i, x := range xTest {
		yPred[i] = forest.Predict(x)
	}
	report := Evaluate(yTest, yPred)
	report.TrainSize = len(xTrain)
	t.logger.Infof("Accuracy: %.4f", report.Accuracy)
	t.logger.Infof("Classification report:\n%s", report)

	b, err := bundle.New(schema, encoders, scaler, forest)
	if err != nil {
		return nil, err
	}
	b.Manifest.Report = report

	return &Result{Bundle: b, Report: report}, nil
}

// fitEncoders fits one encoder per string-typed column except the label.
func (t *Trainer) fitEncoders(ds *Dataset) (*features.Registry, error) {
	lowercase := make(map[string]bool)
	for _, f := range t.cfg.Features {
		lowercase[f.Name] = f.Lowercase
	}

	encoders := features.NewRegistry()
	for _, col := range ds.StringColumns() {
		if col == t.cfg.LabelColumn {
			continue
		}
		values, err := ds.Column(col)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = features.NormalizeCategory(v, lowercase[col])
		}
		enc := features.FitEncoder(col, values)
		encoders.Add(enc)
		t.logger.Infof("Fitted encoder for %s (%d categories)", col, enc.Len())
	}
	return encoders, nil
}

func (t *Trainer) buildSchema(ds *Dataset, encoders *features.Registry) (*features.Schema, error) {
	feats := make([]features.Feature, 0, len(t.cfg.Features))
	for _, f := range t.cfg.Features {
		if !ds.Has(f.Name) {
			return nil, fmt.Errorf("feature column %q not found in dataset", f.Name)
		}
		f.Kind = features.KindNumeric
		if _, ok := encoders.Get(f.Name); ok {
			f.Kind = features.KindCategorical
		}
		feats = append(feats, f)
	}
	return features.NewSchema(feats)
}

func parseLabels(ds *Dataset, column string) ([]int, error) {
	values, err := ds.Column(column)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(values))
	for i, v := range values {
		f, err := features.ParseNumeric(v)
		if err != nil || (f != 0 && f != 1) {
			return nil, fmt.Errorf("row %d: label %q is not 0 or 1", i+1, v)
		}
		labels[i] = int(f)
	}
	return labels, nil
}

func gather(x [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for i, j := range idx {
		xs[i] = x[j]
		ys[i] = y[j]
	}
	return xs, ys
}
