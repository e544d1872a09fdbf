// Package config 加载并校验 YAML 配置
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"energyflow/logging"
	"energyflow/monitoring"
	"energyflow/pipeline"
)

// Config 应用配置
type Config struct {
	Log       logging.Config  `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	HTTP      HTTPConfig      `yaml:"http"`
	Source    SourceConfig    `yaml:"source"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Features  FeaturesConfig  `yaml:"features"`
	Models    ModelsConfig    `yaml:"models"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Export    ExportConfig    `yaml:"export"`
	Alerts    AlertsConfig    `yaml:"alerts"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type HTTPConfig struct {
	Port         int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxUploadMB  int           `yaml:"max_upload_mb" validate:"gte=0"`
}

// SourceConfig 数据源配置
type SourceConfig struct {
	Path       string            `yaml:"path"`
	Charset    string            `yaml:"charset"`
	CacheSize  int               `yaml:"cache_size" validate:"gte=0"`
	APIURL     string            `yaml:"api_url" validate:"omitempty,url"`
	APIHeaders map[string]string `yaml:"api_headers"`
}

// PipelineConfig 预处理配置
type PipelineConfig struct {
	Imputation       string         `yaml:"imputation" validate:"omitempty,oneof=median_mode mean_drop_essential"`
	Essential        []string       `yaml:"essential"`
	AnomalyColumn    string         `yaml:"anomaly_column"`
	AnomalyThreshold float64        `yaml:"anomaly_threshold" validate:"gte=0"`
	EncodeColumns    []string       `yaml:"encode_columns"`
	SkipEncoding     bool           `yaml:"skip_encoding"`
	NormalizeColumns []string       `yaml:"normalize_columns"`
	TimestampColumn  string         `yaml:"timestamp_column"`
	UsageColumn      string         `yaml:"usage_column"`
	Tiers            *pipeline.Bins `yaml:"tiers"`
}

// Processor converts the YAML section into a pipeline configuration.
func (p PipelineConfig) Processor() pipeline.Config {
	return pipeline.Config{
		Imputation: pipeline.ImputeOptions{
			Strategy:  pipeline.ImputationStrategy(p.Imputation),
			Essential: p.Essential,
		},
		AnomalyColumn:    p.AnomalyColumn,
		AnomalyThreshold: p.AnomalyThreshold,
		EncodeColumns:    p.EncodeColumns,
		SkipEncoding:     p.SkipEncoding,
		NormalizeColumns: p.NormalizeColumns,
		TimestampColumn:  p.TimestampColumn,
		UsageColumn:      p.UsageColumn,
		Tiers:            p.Tiers,
	}
}

type FeaturesConfig struct {
	HighUsageThreshold float64 `yaml:"high_usage_threshold" validate:"gte=0"`
	GroupColumn        string  `yaml:"group_column"`
}

// ModelsConfig 模型训练配置
type ModelsConfig struct {
	Dir                  string   `yaml:"dir" validate:"required"`
	Features             []string `yaml:"features" validate:"required,min=1"`
	RegressionTarget     string   `yaml:"regression_target" validate:"required"`
	ClassificationTarget string   `yaml:"classification_target" validate:"required"`
	TestRatio            float64  `yaml:"test_ratio" validate:"gt=0,lt=1"`
	Seed                 int64    `yaml:"seed"`
	Trees                int      `yaml:"trees" validate:"min=1"`
	MaxDepth             int      `yaml:"max_depth" validate:"min=1"`
}

type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval" validate:"required_if=Enabled true"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ExportConfig struct {
	CSVPath   string `yaml:"csv_path"`
	ExcelPath string `yaml:"excel_path"`
	Sheet     string `yaml:"sheet"`
}

// AlertsConfig 告警渠道；为空时不发送
type AlertsConfig struct {
	Webhooks  []monitoring.Webhook `yaml:"webhooks" validate:"dive"`
	RateLimit monitoring.RateLimit `yaml:"rate_limit"`
}

// Default returns the configuration used for keys absent from the file.
func Default() *Config {
	return &Config{
		Log:      logging.Config{Level: "info", Format: "json"},
		Database: DatabaseConfig{Path: "energyflow.db"},
		HTTP: HTTPConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			MaxUploadMB:  32,
		},
		Source: SourceConfig{CacheSize: 8},
		Pipeline: PipelineConfig{
			Imputation:       string(pipeline.MedianMode),
			AnomalyColumn:    "energy_usage",
			AnomalyThreshold: pipeline.DefaultZScoreThreshold,
			SkipEncoding:     true,
			TimestampColumn:  "timestamp",
			UsageColumn:      "energy_usage",
			Tiers: &pipeline.Bins{
				Edges:  []float64{0, 50, 150, 500},
				Labels: []string{"Low", "Medium", "High"},
			},
		},
		Features: FeaturesConfig{HighUsageThreshold: 150, GroupColumn: "appliance"},
		Models: ModelsConfig{
			Dir:                  "models",
			Features:             []string{pipeline.HourColumn, "temperature"},
			RegressionTarget:     "energy_usage",
			ClassificationTarget: pipeline.HighUsageFlagColumn,
			TestRatio:            0.2,
			Seed:                 42,
			Trees:                100,
			MaxDepth:             10,
		},
		Scheduler: SchedulerConfig{Interval: 24 * time.Hour, Timeout: 30 * time.Minute},
		Export:    ExportConfig{CSVPath: "dashboard_data.csv", Sheet: "usage"},
		Alerts:    AlertsConfig{RateLimit: monitoring.RateLimit{MaxPerHour: 10, Cooldown: 5 * time.Minute}},
	}
}

var validate = validator.New()

// Validate checks struct tags and the pipeline's own consistency rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := c.Pipeline.Processor().Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}
	return nil
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load 从文件加载配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}
