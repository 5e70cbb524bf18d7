package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the JSON config file looked up in the config directory.
const ConfigFileName = "anchor.cfg.json"

// CalibrationConfig selects where the marker calibration table is read from.
type CalibrationConfig struct {
	Source string `json:"source" mapstructure:"source"` // embedded|yaml|sqlite|postgres
	Path   string `json:"path" mapstructure:"path"`
	DSN    string `json:"dsn" mapstructure:"dsn"`
}

// EngineConfig holds the anchor engine tuning.
type EngineConfig struct {
	Threshold float64 `json:"threshold" mapstructure:"threshold"` // meters
}

// TraceConfig holds replay trace export settings
type TraceConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./anchorlogs")

	viper.SetDefault("calibration.source", "embedded")
	viper.SetDefault("calibration.path", "")
	viper.SetDefault("calibration.dsn", "")

	viper.SetDefault("engine.threshold", 0.03)

	viper.SetDefault("trace.outputDir", "./traces")
	viper.SetDefault("trace.compressOutput", true)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "anchor-engine")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// LoadDefaults sets default values without reading a file.
func LoadDefaults() {
	setDefaults()
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetFloat64 returns a float config value.
func GetFloat64(key string) float64 {
	return viper.GetFloat64(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetCalibrationConfig returns the calibration source configuration.
func GetCalibrationConfig() CalibrationConfig {
	return CalibrationConfig{
		Source: viper.GetString("calibration.source"),
		Path:   viper.GetString("calibration.path"),
		DSN:    viper.GetString("calibration.dsn"),
	}
}

// GetEngineConfig returns engine tuning, rejecting a non-positive threshold.
func GetEngineConfig() (EngineConfig, error) {
	cfg := EngineConfig{Threshold: viper.GetFloat64("engine.threshold")}
	if cfg.Threshold <= 0 {
		return cfg, fmt.Errorf("engine.threshold must be greater than 0, got %v", cfg.Threshold)
	}
	return cfg, nil
}

// GetTraceConfig returns replay trace export configuration.
func GetTraceConfig() TraceConfig {
	return TraceConfig{
		OutputDir:      viper.GetString("trace.outputDir"),
		CompressOutput: viper.GetBool("trace.compressOutput"),
	}
}

// GetOTelConfig returns OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
