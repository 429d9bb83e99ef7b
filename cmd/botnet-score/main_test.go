package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"botnet-detector/internal/bundle"
	"botnet-detector/internal/features"
	"botnet-detector/internal/inference"
	"botnet-detector/internal/pipeline"
	"botnet-detector/internal/training"
	"botnet-detector/internal/utils"
	"botnet-detector/test/fixtures"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A row with an empty dns_query and NA in a numeric column.
const gappyRow = "192.168.1.5,5000,10.0.0.1,53,udp,dns,1.2,300,400,SF,0,6,6,,0,1,0,0,0,NA,0,normal\n"

func TestScoring_VectorMatchesTraining(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := utils.GetDefaultDetectorConfig().TrainerConfig()
	cfg.Forest.NEstimators = 10

	trainSet, err := training.ReadCSV(strings.NewReader(fixtures.SyntheticCSV(400, 3)))
	require.NoError(t, err)
	res, err := training.NewTrainer(cfg, logger).Fit(context.Background(), trainSet)
	require.NoError(t, err)
	b := res.Bundle

	csv := strings.Join(fixtures.Header, ",") + "\n" + gappyRow

	// Training side: the same cleaning Trainer.Fit applies to its dataset.
	trainSide, err := training.ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	trainSide.Clean(cfg.DropColumns)
	want, err := features.BuildVector(trainSide.Row(0), b.Schema, b.Encoders)
	require.NoError(t, err)

	// Scoring side.
	path := filepath.Join(t.TempDir(), "records.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0644))
	ds, err := loadRecords(path, cfg.DropColumns, logger)
	require.NoError(t, err)
	got, err := features.BuildVector(features.Fields(ds.Record(0)), b.Schema, b.Encoders)
	require.NoError(t, err)

	assert.Equal(t, want.Values, got.Values)
	assert.Empty(t, got.Fallbacks)

	// The empty query is the trained "0" category, not the sentinel.
	dnsEnc, ok := b.Encoders.Get("dns_query")
	require.True(t, ok)
	zeroCode, err := dnsEnc.Lookup("0")
	require.NoError(t, err)
	i, _ := b.Schema.Index("dns_query")
	assert.Equal(t, float64(zeroCode), got.Values[i])

	holder := bundle.NewHolder(t.TempDir(), logger)
	holder.Store(b)
	stats := scoreDataset(context.Background(), ds, inference.NewClassifier(holder, logger, nil), pipeline.NewProcessor(nil, nil, logger), logger)
	assert.EqualValues(t, 1, stats.Total)
	assert.EqualValues(t, 0, stats.Errors)
	assert.EqualValues(t, 0, stats.Warnings)
}
