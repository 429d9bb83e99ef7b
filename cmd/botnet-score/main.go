package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"botnet-detector/internal/bundle"
	"botnet-detector/internal/inference"
	"botnet-detector/internal/model"
	"botnet-detector/internal/pipeline"
	"botnet-detector/internal/training"
	"botnet-detector/internal/utils"

	"github.com/prometheus/common/version"
	"github.com/sirupsen/logrus"
)

// botnet-score classifies every row of a connection CSV offline against the
// bundle in the models directory and alerts on attacks.
func main() {
	var (
		configFile  = flag.String("config", utils.DefaultConfigPath, "Configuration file path (YAML)")
		inputPath   = flag.String("input", "", "CSV of connection records to score")
		modelsDir   = flag.String("models", "", "Artifact bundle directory (overrides config)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Print("botnet-score"))
		return
	}
	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "-input is required")
		os.Exit(1)
	}

	config, err := utils.LoadDetectorConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load YAML config %s: %v\n", *configFile, err)
		fmt.Println("Using default configuration...")
		config = utils.GetDefaultDetectorConfig()
	}
	if *modelsDir != "" {
		config.Application.ModelsDir = *modelsDir
	}

	logger := utils.NewLogger(config.Logging.Level, config.Logging.Format)

	holder := bundle.NewHolder(config.Application.ModelsDir, logger)
	if _, err := holder.Reload(); err != nil {
		logger.Fatalf("Failed to load bundle: %v", err)
	}

	ds, err := loadRecords(*inputPath, config.Training.DropColumns, logger)
	if err != nil {
		logger.Fatalf("Failed to read records: %v", err)
	}

	processor := pipeline.NewProcessor(nil, nil, logger)
	utils.RegisterNotifiersFromYAML(processor, config, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stats := scoreDataset(ctx, ds, inference.NewClassifier(holder, logger, nil), processor, logger)

	fmt.Printf("Scored %d records with bundle %s\n", stats.Total, holder.Current().ID())
	fmt.Printf("  attack:   %d\n  normal:   %d\n  warnings: %d\n  errors:   %d\n  fallback: %d\n",
		stats.Attacks, stats.Normal, stats.Warnings, stats.Errors, stats.Fallbacks)
}

// loadRecords reads a connection CSV and cleans it exactly as training does.
func loadRecords(path string, dropColumns []string, logger *logrus.Logger) (*training.Dataset, error) {
	ds, err := training.LoadCSV(path)
	if err != nil {
		return nil, err
	}
	dropped, filled := ds.Clean(dropColumns)
	logger.Debugf("Dropped %v, filled %d missing values", dropped, filled)
	return ds, nil
}

func scoreDataset(ctx context.Context, ds *training.Dataset, classifier *inference.Classifier, processor *pipeline.Processor, logger *logrus.Logger) model.VerdictStats {
	var stats model.VerdictStats
	for r := 0; r < ds.Len(); r++ {
		if ctx.Err() != nil {
			logger.Warnf("Interrupted after %d records", r)
			break
		}

		v := classifier.Classify(ds.Record(r))
		if err := processor.Process(ctx, v); err != nil {
			logger.Errorf("Failed to process record %d: %v", r+1, err)
		}

		stats.Total++
		switch {
		case v.Status == model.StatusWarning:
			stats.Warnings++
		case v.Status == model.StatusError:
			stats.Errors++
			logger.Debugf("Record %d: %s", r+1, v.Message)
		case v.IsAttack():
			stats.Attacks++
		default:
			stats.Normal++
		}
		if v.FallbackUsed() {
			stats.Fallbacks++
		}
	}
	return stats
}
