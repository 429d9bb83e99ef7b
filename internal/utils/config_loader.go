package utils

import (
	"fmt"
	"os"

	"botnet-detector/internal/classifier"
	"botnet-detector/internal/features"
	"botnet-detector/internal/training"

	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "configs/botnet_detector.yaml"

type DetectorConfig struct {
	Application ApplicationYAMLConfig `yaml:"application"`
	Training    TrainingYAMLConfig    `yaml:"training"`
	Alerting    AlertingYAMLConfig    `yaml:"alerting"`
	Logging     LoggingYAMLConfig     `yaml:"logging"`
}

type ApplicationYAMLConfig struct {
	Port                  string `yaml:"port"`
	ModelsDir             string `yaml:"models_dir"`
	ReloadIntervalSeconds int    `yaml:"reload_interval_seconds"`
	HistorySize           int    `yaml:"history_size"`
}

type TrainingYAMLConfig struct {
	DataPath       string              `yaml:"data_path"`
	ModelsDir      string              `yaml:"models_dir"`
	LabelColumn    string              `yaml:"label_column"`
	DropColumns    []string            `yaml:"drop_columns"`
	Features       []FeatureYAMLConfig `yaml:"features"`
	TestSize       float64             `yaml:"test_size"`
	Seed           int64               `yaml:"seed"`
	NEstimators    int                 `yaml:"n_estimators"`
	MaxDepth       int                 `yaml:"max_depth"`
	MinSamplesLeaf int                 `yaml:"min_samples_leaf"`
	Workers        int                 `yaml:"workers"`
	MinAccuracy    float64             `yaml:"min_accuracy"`
}

type FeatureYAMLConfig struct {
	Name      string   `yaml:"name"`
	Lowercase bool     `yaml:"lowercase,omitempty"`
	Default   *float64 `yaml:"default,omitempty"`
}

type AlertingYAMLConfig struct {
	Enabled  bool               `yaml:"enabled"`
	Channels AlertChannelsYAML  `yaml:"channels"`
	Telegram TelegramYAMLConfig `yaml:"telegram"`
}

type AlertChannelsYAML struct {
	Log      bool `yaml:"log"`
	Telegram bool `yaml:"telegram"`
}

type TelegramYAMLConfig struct {
	BotToken        string `yaml:"bot_token"`
	ChatID          string `yaml:"chat_id"`
	ParseMode       string `yaml:"parse_mode"`
	Enabled         bool   `yaml:"enabled"`
	MessageTemplate string `yaml:"message_template,omitempty"`
}

type LoggingYAMLConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func LoadDetectorConfig(filename string) (*DetectorConfig, error) {
	if filename == "" {
		filename = DefaultConfigPath
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var config DetectorConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file %s: %w", filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *DetectorConfig) Validate() error {
	if c.Application.Port == "" {
		c.Application.Port = "5000"
	}
	if c.Application.ModelsDir == "" {
		c.Application.ModelsDir = "models"
	}
	if c.Application.ReloadIntervalSeconds < 0 {
		return fmt.Errorf("reload_interval_seconds cannot be negative")
	}
	if c.Application.HistorySize <= 0 {
		c.Application.HistorySize = 1000
	}

	t := &c.Training
	if t.DataPath == "" {
		t.DataPath = "models/train_test_network.csv"
	}
	if t.ModelsDir == "" {
		t.ModelsDir = c.Application.ModelsDir
	}
	if t.LabelColumn == "" {
		t.LabelColumn = "label"
	}
	if t.DropColumns == nil {
		t.DropColumns = defaultDropColumns()
	}
	if len(t.Features) == 0 {
		t.Features = defaultFeatures()
	}
	seen := make(map[string]bool, len(t.Features))
	for _, f := range t.Features {
		if f.Name == "" {
			return fmt.Errorf("feature name cannot be empty")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate feature %q", f.Name)
		}
		if f.Name == t.LabelColumn {
			return fmt.Errorf("label column %q cannot be a feature", f.Name)
		}
		seen[f.Name] = true
	}
	if t.TestSize == 0 {
		t.TestSize = 0.2
	}
	if t.TestSize <= 0 || t.TestSize >= 1 {
		return fmt.Errorf("test_size must be in (0, 1), got %v", t.TestSize)
	}
	if t.Seed == 0 {
		t.Seed = 42
	}
	if t.NEstimators <= 0 {
		t.NEstimators = 200
	}
	if t.MaxDepth < 0 {
		return fmt.Errorf("max_depth cannot be negative")
	}
	if t.MinSamplesLeaf <= 0 {
		t.MinSamplesLeaf = 1
	}
	if t.MinAccuracy < 0 || t.MinAccuracy > 1 {
		return fmt.Errorf("min_accuracy must be in [0, 1], got %v", t.MinAccuracy)
	}

	if c.Alerting.Telegram.ParseMode == "" {
		c.Alerting.Telegram.ParseMode = "Markdown"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	return nil
}

// TrainerConfig converts the YAML training section into the trainer's
// configuration.
func (c *DetectorConfig) TrainerConfig() training.Config {
	t := c.Training
	feats := make([]features.Feature, 0, len(t.Features))
	for _, f := range t.Features {
		feats = append(feats, features.Feature{
			Name:      f.Name,
			Lowercase: f.Lowercase,
			Default:   f.Default,
		})
	}

	forest := classifier.DefaultForestConfig()
	forest.NEstimators = t.NEstimators
	forest.MaxDepth = t.MaxDepth
	forest.MinSamplesLeaf = t.MinSamplesLeaf
	forest.Seed = t.Seed
	if t.Workers > 0 {
		forest.Workers = t.Workers
	}

	return training.Config{
		DataPath:    t.DataPath,
		ModelsDir:   t.ModelsDir,
		LabelColumn: t.LabelColumn,
		DropColumns: t.DropColumns,
		Features:    feats,
		TestSize:    t.TestSize,
		Seed:        t.Seed,
		Forest:      forest,
		MinAccuracy: t.MinAccuracy,
	}
}

func (c *DetectorConfig) SaveConfig(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filename, err)
	}

	return nil
}

func defaultDropColumns() []string {
	return []string{"src_ip", "dst_ip", "src_port", "dst_port"}
}

// defaultFeatures is the column order the model consumes. DNS metadata is
// structurally absent for most flows, so those columns default to zero when
// a caller does not supply them.
func defaultFeatures() []FeatureYAMLConfig {
	zero := 0.0
	return []FeatureYAMLConfig{
		{Name: "duration"},
		{Name: "src_bytes"},
		{Name: "dst_bytes"},
		{Name: "src_pkts"},
		{Name: "dst_pkts"},
		{Name: "proto", Lowercase: true},
		{Name: "service"},
		{Name: "conn_state"},
		{Name: "dns_query", Default: &zero},
		{Name: "dns_qclass", Default: &zero},
		{Name: "dns_qtype", Default: &zero},
		{Name: "dns_rcode", Default: &zero},
		{Name: "http_request_body_len"},
		{Name: "http_response_body_len"},
		{Name: "http_status_code"},
	}
}

// GetDefaultDetectorConfig returns a default DetectorConfig
func GetDefaultDetectorConfig() *DetectorConfig {
	c := &DetectorConfig{
		Alerting: AlertingYAMLConfig{
			Enabled: true,
			Channels: AlertChannelsYAML{
				Log:      true,
				Telegram: false,
			},
			Telegram: TelegramYAMLConfig{
				ParseMode: "Markdown",
			},
		},
		Logging: LoggingYAMLConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
	// Validate only fills defaults on an empty config.
	_ = c.Validate()
	return c
}
