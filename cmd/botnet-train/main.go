package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"botnet-detector/internal/training"
	"botnet-detector/internal/utils"

	"github.com/prometheus/common/version"
)

func main() {
	var (
		configFile  = flag.String("config", utils.DefaultConfigPath, "Configuration file path (YAML)")
		dataPath    = flag.String("data", "", "Training CSV (overrides config)")
		modelsDir   = flag.String("models", "", "Output directory for the artifact bundle (overrides config)")
		minAccuracy = flag.Float64("min-accuracy", -1, "Refuse to persist below this test accuracy (overrides config, 0 disables)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Print("botnet-train"))
		return
	}

	config, err := utils.LoadDetectorConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load YAML config %s: %v\n", *configFile, err)
		fmt.Println("Using default configuration...")
		config = utils.GetDefaultDetectorConfig()
	}

	cfg := config.TrainerConfig()
	if *dataPath != "" {
		cfg.DataPath = *dataPath
	}
	if *modelsDir != "" {
		cfg.ModelsDir = *modelsDir
	}
	if *minAccuracy >= 0 {
		cfg.MinAccuracy = *minAccuracy
	}

	logger := utils.NewLogger(config.Logging.Level, config.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := training.NewTrainer(cfg, logger).Run(ctx)
	if err != nil {
		if errors.Is(err, training.ErrQualityGate) {
			logger.Errorf("Training rejected: %v", err)
			os.Exit(2)
		}
		logger.Fatalf("Training failed: %v", err)
	}

	fmt.Printf("Run %s\nAccuracy: %.4f\n\n%s\n", res.Manifest.RunID, res.Report.Accuracy, res.Report)
}
