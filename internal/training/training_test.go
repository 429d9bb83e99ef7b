package training

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"botnet-detector/internal/bundle"
	"botnet-detector/internal/classifier"
	"botnet-detector/internal/features"
	"botnet-detector/test/fixtures"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(dir string) Config {
	zero := 0.0
	forest := classifier.DefaultForestConfig()
	forest.NEstimators = 20

	return Config{
		DataPath:    filepath.Join(dir, "train_test_network.csv"),
		ModelsDir:   filepath.Join(dir, "models"),
		LabelColumn: "label",
		DropColumns: []string{"src_ip", "dst_ip", "src_port", "dst_port"},
		Features: []features.Feature{
			{Name: "duration"}, {Name: "src_bytes"}, {Name: "dst_bytes"},
			{Name: "src_pkts"}, {Name: "dst_pkts"},
			{Name: "proto", Lowercase: true}, {Name: "service"}, {Name: "conn_state"},
			{Name: "dns_query", Default: &zero}, {Name: "dns_qclass", Default: &zero},
			{Name: "dns_qtype", Default: &zero}, {Name: "dns_rcode", Default: &zero},
			{Name: "http_request_body_len"}, {Name: "http_response_body_len"}, {Name: "http_status_code"},
		},
		TestSize: 0.2,
		Seed:     42,
		Forest:   forest,
	}
}

func TestReadCSV_FillAndDrop(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("src_ip,proto,bytes,label\n1.2.3.4,tcp,,0\n5.6.7.8,udp,NaN,1\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"src_ip"}, ds.DropColumns("src_ip", "not_there"))
	assert.Equal(t, []string{"proto", "bytes", "label"}, ds.Columns)
	assert.Equal(t, 2, ds.FillMissing("0"))

	col, err := ds.Column("bytes")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "0"}, col)
	assert.Equal(t, []string{"proto"}, ds.StringColumns())
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("a,b\n"))
	assert.Error(t, err)
}

func TestStratifiedSplit_KeepsClassBalance(t *testing.T) {
	labels := make([]int, 1000)
	for i := range labels {
		if i%4 == 0 {
			labels[i] = 1
		}
	}

	train, test, err := StratifiedSplit(labels, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, test, 200)
	assert.Len(t, train, 800)

	count := func(idx []int) int {
		n := 0
		for _, i := range idx {
			n += labels[i]
		}
		return n
	}
	assert.Equal(t, 50, count(test))
	assert.Equal(t, 200, count(train))

	seen := make(map[int]bool)
	for _, i := range append(append([]int{}, train...), test...) {
		assert.False(t, seen[i], "index %d in both partitions", i)
		seen[i] = true
	}

	train2, test2, err := StratifiedSplit(labels, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)
}

func TestStratifiedSplit_SingletonClass(t *testing.T) {
	_, _, err := StratifiedSplit([]int{0, 0, 0, 1}, 0.2, 42)
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	report := Evaluate([]int{0, 0, 1, 1, 1}, []int{0, 1, 1, 1, 0})

	assert.InDelta(t, 0.6, report.Accuracy, 1e-12)
	require.Len(t, report.Classes, 2)
	assert.InDelta(t, 0.5, report.Classes[0].Precision, 1e-12)
	assert.InDelta(t, 0.5, report.Classes[0].Recall, 1e-12)
	assert.InDelta(t, 2.0/3.0, report.Classes[1].Precision, 1e-12)
	assert.InDelta(t, 2.0/3.0, report.Classes[1].Recall, 1e-12)
	assert.Equal(t, 3, report.Classes[1].Support)
	assert.Contains(t, report.String(), "weighted avg")
}

func TestTrainer_RunPersistsLoadableBundle(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	require.NoError(t, fixtures.WriteDataset(cfg.DataPath, 400, 1))

	res, err := NewTrainer(cfg, quietLogger()).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Manifest)
	assert.GreaterOrEqual(t, res.Report.Accuracy, 0.95)
	assert.Equal(t, 80, res.Report.TestSize)

	// service, proto, conn_state, dns_query and type are string columns.
	assert.ElementsMatch(t, []string{"conn_state", "dns_query", "proto", "service", "type"}, res.Bundle.Encoders.Features())
	assert.Equal(t, []string{"proto", "service", "conn_state", "dns_query"}, res.Bundle.Schema.Categorical())

	loaded, err := bundle.Load(cfg.ModelsDir)
	require.NoError(t, err)
	assert.Equal(t, res.Manifest.RunID, loaded.ID())
	assert.Equal(t, res.Report.Accuracy, loaded.Manifest.Report.Accuracy)
}

func TestTrainer_FixedSeedReproducesAccuracy(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	require.NoError(t, fixtures.WriteDataset(cfg.DataPath, 300, 5))

	var accuracies []float64
	for i := 0; i < 2; i++ {
		ds, err := LoadCSV(cfg.DataPath)
		require.NoError(t, err)
		res, err := NewTrainer(cfg, quietLogger()).Fit(context.Background(), ds)
		require.NoError(t, err)
		accuracies = append(accuracies, res.Report.Accuracy)
	}
	assert.InDelta(t, accuracies[0], accuracies[1], 1e-9)
}

func TestTrainer_QualityGateSkipsPersist(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.MinAccuracy = 1.01
	require.NoError(t, fixtures.WriteDataset(cfg.DataPath, 100, 1))

	_, err := NewTrainer(cfg, quietLogger()).Run(context.Background())
	assert.True(t, errors.Is(err, ErrQualityGate))
	assert.NoFileExists(t, filepath.Join(cfg.ModelsDir, bundle.ManifestFile))
}

func TestTrainer_MissingDataset(t *testing.T) {
	cfg := testConfig(t.TempDir())
	_, err := NewTrainer(cfg, quietLogger()).Run(context.Background())
	assert.Error(t, err)
}

func TestTrainer_MissingFeatureColumn(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Features = append(cfg.Features, features.Feature{Name: "missed_packets"})

	ds, err := ReadCSV(strings.NewReader(fixtures.SyntheticCSV(20, 1)))
	require.NoError(t, err)
	_, err = NewTrainer(cfg, quietLogger()).Fit(context.Background(), ds)
	assert.Error(t, err)
}
