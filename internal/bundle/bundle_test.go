package bundle

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"botnet-detector/internal/classifier"
	"botnet-detector/internal/features"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testBundle(t *testing.T, seed int64) *Bundle {
	t.Helper()

	schema, err := features.NewSchema([]features.Feature{
		{Name: "duration", Kind: features.KindNumeric},
		{Name: "proto", Kind: features.KindCategorical, Lowercase: true},
	})
	require.NoError(t, err)

	encoders := features.NewRegistry()
	encoders.Add(features.FitEncoder("proto", []string{"tcp", "udp"}))
	encoders.Add(features.FitEncoder("type", []string{"normal", "ddos"}))

	x := [][]float64{{0.1, 0}, {0.2, 0}, {9, 1}, {8, 1}, {0.3, 0}, {7, 1}}
	y := []int{0, 0, 1, 1, 0, 1}
	scaler, err := features.FitScaler(x)
	require.NoError(t, err)

	cfg := classifier.DefaultForestConfig()
	cfg.NEstimators = 5
	cfg.Seed = seed
	forest, err := classifier.FitForest(context.Background(), scaler.TransformMatrix(x), y, cfg)
	require.NoError(t, err)

	b, err := New(schema, encoders, scaler, forest)
	require.NoError(t, err)
	return b
}

func assertCorrupt(t *testing.T, err error) {
	t.Helper()
	var cbe *CorruptBundleError
	assert.True(t, errors.As(err, &cbe), "expected CorruptBundleError, got %v", err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := testBundle(t, 42)

	m, err := Save(dir, b)
	require.NoError(t, err)
	assert.NotEmpty(t, m.RunID)
	assert.Equal(t, 2, m.NumFeatures)
	assert.Equal(t, map[string]string{"proto": "proto_encoder.json", "type": "type_encoder.json"}, m.Encoders)

	for _, name := range []string{ModelFile, ScalerFile, SchemaFile, "proto_encoder.json", "type_encoder.json", ManifestFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, loaded.ID())
	assert.Equal(t, b.Checksum, loaded.Checksum)
	assert.Equal(t, b.Schema.Names(), loaded.Schema.Names())

	for _, x := range [][]float64{{-1, -1}, {1, 1}, {0, 0.5}} {
		assert.Equal(t, b.Model.PredictProba(x), loaded.Model.PredictProba(x))
	}
}

func TestNew_SchemaScalerDimensionMismatch(t *testing.T) {
	b := testBundle(t, 42)

	wide, err := features.FitScaler([][]float64{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)

	_, err = New(b.Schema, b.Encoders, wide, b.Model)
	assertCorrupt(t, err)
}

func TestNew_MissingCategoricalEncoder(t *testing.T) {
	b := testBundle(t, 42)

	_, err := New(b.Schema, features.NewRegistry(), b.Scaler, b.Model)
	assertCorrupt(t, err)
}

func TestLoad_MissingManifest(t *testing.T) {
	_, err := Load(t.TempDir())
	assertCorrupt(t, err)
}

func TestLoad_PartialWriteDetected(t *testing.T) {
	dir := t.TempDir()
	_, err := Save(dir, testBundle(t, 42))
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, ScalerFile)))
	_, err = Load(dir)
	assertCorrupt(t, err)
}

func TestLoad_ArtifactFromAnotherRun(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	_, err := Save(first, testBundle(t, 1))
	require.NoError(t, err)
	_, err = Save(second, testBundle(t, 2))
	require.NoError(t, err)

	// Mixing the model of one run with the manifest of another must fail.
	data, err := os.ReadFile(filepath.Join(second, ModelFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(first, ModelFile), data, 0644))

	_, err = Load(first)
	assertCorrupt(t, err)
}

func TestHolder_FailedReloadKeepsServing(t *testing.T) {
	dir := t.TempDir()
	_, err := Save(dir, testBundle(t, 42))
	require.NoError(t, err)

	h := NewHolder(dir, quietLogger())
	var reloads, failures int
	h.OnReload(func(*Bundle) { reloads++ })
	h.OnError(func(error) { failures++ })

	first, err := h.Reload()
	require.NoError(t, err)
	assert.Same(t, first, h.Current())

	require.NoError(t, os.WriteFile(filepath.Join(dir, SchemaFile), []byte(`{}`), 0644))
	_, err = h.Reload()
	assertCorrupt(t, err)
	assert.Same(t, first, h.Current())
	assert.Equal(t, 1, reloads)
	assert.Equal(t, 1, failures)
}

func TestWatcher_ReloadsOnManifestChange(t *testing.T) {
	dir := t.TempDir()
	_, err := Save(dir, testBundle(t, 1))
	require.NoError(t, err)

	h := NewHolder(dir, quietLogger())
	_, err = h.Reload()
	require.NoError(t, err)
	w := NewWatcher(h, 0, quietLogger())

	changed, err := w.Check()
	require.NoError(t, err)
	assert.False(t, changed)

	m, err := Save(dir, testBundle(t, 2))
	require.NoError(t, err)

	changed, err = w.Check()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, m.RunID, h.Current().ID())
}
