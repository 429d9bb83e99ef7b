package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"botnet-detector/api/internal/handlers"
	"botnet-detector/api/internal/storage"
	"botnet-detector/internal/bundle"
	"botnet-detector/internal/inference"
	"botnet-detector/internal/metrics"
	"botnet-detector/internal/pipeline"
	"botnet-detector/internal/utils"

	"github.com/gorilla/mux"
	"github.com/prometheus/common/version"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configFile   = flag.String("config", utils.DefaultConfigPath, "Configuration file path (YAML)")
		port         = flag.String("port", "", "HTTP port (overrides config)")
		modelsDir    = flag.String("models", "", "Artifact bundle directory (overrides config)")
		showVersion  = flag.Bool("version", false, "Show version information")
		testTelegram = flag.Bool("test-telegram", false, "Send test message to Telegram and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Print("botnet-detector"))
		return
	}

	config, err := utils.LoadDetectorConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load YAML config %s: %v\n", *configFile, err)
		fmt.Println("Using default configuration...")
		config = utils.GetDefaultDetectorConfig()
	}
	if *port != "" {
		config.Application.Port = *port
	}
	if *modelsDir != "" {
		config.Application.ModelsDir = *modelsDir
	}

	logger := utils.NewLogger(config.Logging.Level, config.Logging.Format)
	logger.Infof("Starting botnet-detector %s", version.Info())
	logger.Debugf("Build context %s", version.BuildContext())

	promMetrics := metrics.NewPrometheusMetrics()
	store := storage.NewStorage(config.Application.HistorySize, logger)

	processor := pipeline.NewProcessor(store, promMetrics, logger)
	processor.RegisterNotifier(store)
	telegram := utils.RegisterNotifiersFromYAML(processor, config, logger)

	if *testTelegram {
		if telegram == nil {
			logger.Fatal("Telegram alerting is not enabled in config")
		}
		if err := telegram.SendTestMessage(); err != nil {
			logger.Fatalf("Telegram test failed: %v", err)
		}
		logger.Info("Telegram test message sent")
		return
	}

	holder := loadBundle(config.Application.ModelsDir, promMetrics, logger)
	classifier := inference.NewClassifier(holder, logger, promMetrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if interval := config.Application.ReloadIntervalSeconds; interval > 0 {
		watcher := bundle.NewWatcher(holder, time.Duration(interval)*time.Second, logger)
		go watcher.Run(ctx)
	}

	h := handlers.NewHandlers(classifier, processor, holder, store, logger)

	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))
	h.RegisterRoutes(router)
	router.Handle("/metrics", promMetrics.Handler()).Methods("GET")
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if holder.Current() == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NO BUNDLE"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")

	addr := fmt.Sprintf(":%s", config.Application.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
	}

	// SIGHUP reloads the bundle; SIGINT and SIGTERM shut down.
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		for sig := range sigChan {
			if sig == syscall.SIGHUP {
				logger.Info("SIGHUP received, reloading bundle")
				_, _ = holder.Reload()
				continue
			}

			logger.Info("Shutting down server...")
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Errorf("Server shutdown error: %v", err)
			}
			shutdownCancel()
			return
		}
	}()

	logger.Infof("Server starting on port %s", config.Application.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server failed: %v", err)
	}
}

// loadBundle performs the startup load. A corrupt bundle is fatal here so the
// server never starts with a stale or partial model.
func loadBundle(dir string, promMetrics *metrics.PrometheusMetrics, logger *logrus.Logger) *bundle.Holder {
	holder := bundle.NewHolder(dir, logger)
	holder.OnReload(func(b *bundle.Bundle) {
		promMetrics.RecordReload(b.ID(), b.Model.Algorithm(), nil)
	})
	holder.OnError(func(err error) {
		promMetrics.RecordReload("", "", err)
	})

	b, err := holder.Reload()
	if err != nil {
		var corrupt *bundle.CorruptBundleError
		if errors.As(err, &corrupt) {
			logger.Fatalf("Refusing to serve: %v", err)
		}
		logger.Fatalf("Failed to load bundle from %s: %v", dir, err)
	}
	logger.Infof("Serving bundle %s (%s, %d features)", b.ID(), b.Model.Algorithm(), b.Schema.Len())
	return holder
}

func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).String(),
			}).Debug("HTTP request")
		})
	}
}
