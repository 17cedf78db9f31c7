package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

// Config is the complete runtime configuration.
type Config struct {
	General GeneralConfig `yaml:"general"`
	Alerts  AlertConfig   `yaml:"alerts"`
	Trends  TrendConfig   `yaml:"trends"`
	GPU     GPUConfig     `yaml:"gpu"`
	Report  ReportConfig  `yaml:"report"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`

	// Path is the file the configuration was loaded from.
	Path string `yaml:"-"`
}

// GeneralConfig controls sampling and history depth.
type GeneralConfig struct {
	RefreshIntervalMs uint64 `yaml:"refresh_interval_ms" validate:"gte=100,lte=3600000"`
	HistorySamples    int    `yaml:"history_samples" validate:"gte=3,lte=86400"`
	ProcessCount      int    `yaml:"process_count" validate:"gte=1"`
}

// AlertConfig controls threshold detection and notification cadence.
type AlertConfig struct {
	Enabled       bool            `yaml:"enabled"`
	Notifications bool            `yaml:"notifications"`
	CooldownSecs  uint64          `yaml:"cooldown_secs"`
	Thresholds    AlertThresholds `yaml:"thresholds"`
	Email         EmailConfig     `yaml:"email"`
}

// EmailConfig delivers alert notifications over SMTP in addition to the log.
type EmailConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Host     string   `yaml:"host" validate:"required_if=Enabled true"`
	Port     int      `yaml:"port" validate:"gte=0,lte=65535"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from" validate:"omitempty,email"`
	To       []string `yaml:"to" validate:"required_if=Enabled true,dive,email"`
}

// AlertThresholds are percentages, except GPUTemp which is °C.
type AlertThresholds struct {
	CPU     float64 `yaml:"cpu" validate:"gte=0,lte=100"`
	Memory  float64 `yaml:"memory" validate:"gte=0,lte=100"`
	Swap    float64 `yaml:"swap" validate:"gte=0,lte=100"`
	GPUTemp float64 `yaml:"gpu_temp" validate:"gte=0,lte=150"`
	GPUUtil float64 `yaml:"gpu_util" validate:"gte=0,lte=100"`
	GPUMem  float64 `yaml:"gpu_mem" validate:"gte=0,lte=100"`
}

// TrendConfig controls the trend analyzer.
type TrendConfig struct {
	Enabled            bool    `yaml:"enabled"`
	SampleIntervalSecs uint64  `yaml:"sample_interval_secs" validate:"gte=1"`
	MinConfidence      float64 `yaml:"min_confidence" validate:"gte=0,lte=1"`
	ShowStableTrends   bool    `yaml:"show_stable_trends"`
}

// GPUConfig controls vendor discovery.
type GPUConfig struct {
	DisableNVML bool   `yaml:"disable_nvml"`
	RescanMin   string `yaml:"rescan_min" validate:"required"` // hot-plug rescan backoff bounds
	RescanMax   string `yaml:"rescan_max" validate:"required"`
}

// ReportConfig controls the periodic status report and history dump.
type ReportConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Interval     string `yaml:"interval" validate:"required"`
	Template     string `yaml:"template"` // fasttemplate with {placeholders}
	ExportDir    string `yaml:"export_dir"`
	ExportFormat string `yaml:"export_format" validate:"oneof=csv json"`
}

// HTTPConfig controls the local status API.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen" validate:"hostname_port"`
	Token   string `yaml:"token"` // bearer token, empty disables auth
}

// LogConfig controls the log sink and rotation.
type LogConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`    // MB
	MaxBackups int    `yaml:"max_backups"` // rotated files kept
	MaxAge     int    `yaml:"max_age"`     // days
	Compress   bool   `yaml:"compress"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			RefreshIntervalMs: 1000,
			HistorySamples:    60,
			ProcessCount:      10,
		},
		Alerts: AlertConfig{
			Enabled:       true,
			Notifications: true,
			CooldownSecs:  60,
			Thresholds: AlertThresholds{
				CPU:     85,
				Memory:  90,
				Swap:    80,
				GPUTemp: 75,
				GPUUtil: 95,
				GPUMem:  90,
			},
			Email: EmailConfig{
				Port: 587,
			},
		},
		Trends: TrendConfig{
			Enabled:            true,
			SampleIntervalSecs: 1,
			MinConfidence:      0.7,
			ShowStableTrends:   true,
		},
		GPU: GPUConfig{
			RescanMin: "30s",
			RescanMax: "10m",
		},
		HTTP: HTTPConfig{
			Listen: "127.0.0.1:9494",
		},
		Report: ReportConfig{
			Enabled:      true,
			Interval:     "5m",
			Template:     "cpu={cpu}% mem={memory}% ({mem_used}/{mem_total}) swap={swap}% gpus={gpus} alerts={alerts} critical={critical} warning={warning} trends={trends}",
			ExportFormat: "json",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

var (
	validate = validator.New(validator.WithRequiredStructEnabled())
	trans    ut.Translator
)

func init() {
	english := en.New()
	trans, _ = ut.New(english, english).GetTranslator("en")
	_ = entranslations.RegisterDefaultTranslations(validate, trans)
	// report fields by their yaml names
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate checks field ranges and duration strings.
func (c *Config) Validate() error {
	c.Log.Level = strings.ToLower(c.Log.Level)
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fe.Translate(trans))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	for name, value := range map[string]string{
		"gpu.rescan_min":  c.GPU.RescanMin,
		"gpu.rescan_max":  c.GPU.RescanMax,
		"report.interval": c.Report.Interval,
	} {
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return fmt.Errorf("invalid config: %s: %q is not a positive duration", name, value)
		}
	}
	if c.RescanMin() > c.RescanMax() {
		return fmt.Errorf("invalid config: gpu.rescan_min %s exceeds gpu.rescan_max %s", c.GPU.RescanMin, c.GPU.RescanMax)
	}
	return nil
}

// RefreshInterval returns the sampling period.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.General.RefreshIntervalMs) * time.Millisecond
}

// Cooldown returns the minimum spacing between notifications for one alert key.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Alerts.CooldownSecs) * time.Second
}

// RescanMin is the first GPU rescan delay.
func (c *Config) RescanMin() time.Duration {
	d, _ := time.ParseDuration(c.GPU.RescanMin)
	return d
}

// RescanMax caps the GPU rescan backoff.
func (c *Config) RescanMax() time.Duration {
	d, _ := time.ParseDuration(c.GPU.RescanMax)
	return d
}

// ReportInterval returns the report and export period.
func (c *Config) ReportInterval() time.Duration {
	d, _ := time.ParseDuration(c.Report.Interval)
	return d
}
