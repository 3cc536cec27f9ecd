// Package config provides configuration management for datascope viewer operations
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the configuration of a viewer service instance
type Config struct {
	// Paging Configuration
	PageSize         uint64 `json:"page_size" yaml:"page_size"`                 // Rows per page
	ProgressInterval uint64 `json:"progress_interval" yaml:"progress_interval"` // Rows between progress events
	SniffBytes       int    `json:"sniff_bytes" yaml:"sniff_bytes"`             // Bytes inspected for delimiter detection

	// Thumbnail Configuration
	ThumbnailSamples  int     `json:"thumbnail_samples" yaml:"thumbnail_samples"`     // Point budget per page
	NumericSampleRows int     `json:"numeric_sample_rows" yaml:"numeric_sample_rows"` // Rows inspected for numeric column detection
	NumericThreshold  float64 `json:"numeric_threshold" yaml:"numeric_threshold"`     // Minimum numeric fraction (0.0-1.0)

	// Execution Configuration
	WorkerPoolSize int `json:"worker_pool_size" yaml:"worker_pool_size"` // Background workers (0 = auto-detect)

	// Conversion Configuration
	ConvertCompression string `json:"convert_compression" yaml:"convert_compression"` // zstd, snappy, gzip, lz4, uncompressed
	InferSchemaRows    int    `json:"infer_schema_rows" yaml:"infer_schema_rows"`     // Records sampled for CSV schema inference
	ConvertBatchRows   int    `json:"convert_batch_rows" yaml:"convert_batch_rows"`   // Records per Arrow batch while converting

	// Observability Configuration
	Log               LogConfig `json:"log" yaml:"log"`
	MetricsCollection bool      `json:"metrics_collection" yaml:"metrics_collection"` // Enable metrics collection
	ListenAddr        string    `json:"listen_addr" yaml:"listen_addr"`               // HTTP listen address for serve mode
}

// LogConfig configures the structured logger
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`             // debug, info, warn, error
	Format     string `json:"format" yaml:"format"`           // console or json
	Filename   string `json:"filename" yaml:"filename"`       // Empty means stderr
	MaxSize    int    `json:"max_size" yaml:"max_size"`       // Megabytes before rotation
	MaxDays    int    `json:"max_days" yaml:"max_days"`       // Days to retain rotated files
	MaxBackups int    `json:"max_backups" yaml:"max_backups"` // Rotated files to retain
}

// SystemInfo contains system information for configuration validation
type SystemInfo struct {
	CPUCount     int
	Architecture string
	OSType       string
}

// ConfigValidator validates and provides recommendations for configuration
type ConfigValidator struct {
	systemInfo SystemInfo
}

// Default configuration values
const (
	DefaultPageSize           = 200_000
	DefaultProgressInterval   = 2000
	DefaultSniffBytes         = 2000
	DefaultThumbnailSamples   = 1000
	DefaultNumericSampleRows  = 100
	DefaultNumericThreshold   = 0.7
	DefaultConvertCompression = "zstd"
	DefaultInferSchemaRows    = 1000
	DefaultConvertBatchRows   = 64 * 1024
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "console"
	DefaultLogMaxSize         = 512
	DefaultListenAddr         = "127.0.0.1:7878"
)

var supportedCompressions = []string{"zstd", "snappy", "gzip", "lz4", "uncompressed"}

// NewConfig creates a new configuration with default values
func NewConfig() Config {
	return Config{
		PageSize:         DefaultPageSize,
		ProgressInterval: DefaultProgressInterval,
		SniffBytes:       DefaultSniffBytes,

		ThumbnailSamples:  DefaultThumbnailSamples,
		NumericSampleRows: DefaultNumericSampleRows,
		NumericThreshold:  DefaultNumericThreshold,

		WorkerPoolSize: 0, // Auto-detect

		ConvertCompression: DefaultConvertCompression,
		InferSchemaRows:    DefaultInferSchemaRows,
		ConvertBatchRows:   DefaultConvertBatchRows,

		Log: LogConfig{
			Level:   DefaultLogLevel,
			Format:  DefaultLogFormat,
			MaxSize: DefaultLogMaxSize,
		},
		MetricsCollection: false,
		ListenAddr:        DefaultListenAddr,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.PageSize == 0 {
		return fmt.Errorf("PageSize must be positive, got %d", c.PageSize)
	}

	if c.ProgressInterval == 0 {
		return fmt.Errorf("ProgressInterval must be positive, got %d", c.ProgressInterval)
	}

	if c.SniffBytes <= 0 {
		return fmt.Errorf("SniffBytes must be positive, got %d", c.SniffBytes)
	}

	if c.ThumbnailSamples <= 0 {
		return fmt.Errorf("ThumbnailSamples must be positive, got %d", c.ThumbnailSamples)
	}

	if c.NumericSampleRows <= 0 {
		return fmt.Errorf("NumericSampleRows must be positive, got %d", c.NumericSampleRows)
	}

	if c.NumericThreshold <= 0.0 || c.NumericThreshold > 1.0 {
		return fmt.Errorf("NumericThreshold must be in (0, 1], got %f", c.NumericThreshold)
	}

	if c.WorkerPoolSize < 0 {
		return fmt.Errorf("WorkerPoolSize must be non-negative, got %d", c.WorkerPoolSize)
	}

	if !isSupportedCompression(c.ConvertCompression) {
		return fmt.Errorf("ConvertCompression must be one of %s, got %q",
			strings.Join(supportedCompressions, ", "), c.ConvertCompression)
	}

	if c.InferSchemaRows <= 0 {
		return fmt.Errorf("InferSchemaRows must be positive, got %d", c.InferSchemaRows)
	}

	if c.ConvertBatchRows <= 0 {
		return fmt.Errorf("ConvertBatchRows must be positive, got %d", c.ConvertBatchRows)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("Log.Format must be console or json, got %q", c.Log.Format)
	}

	return nil
}

// WithDefaults returns a new configuration with default values filled in for zero values
func (c Config) WithDefaults() Config {
	defaults := NewConfig()

	if c.PageSize == 0 {
		c.PageSize = defaults.PageSize
	}
	if c.ProgressInterval == 0 {
		c.ProgressInterval = defaults.ProgressInterval
	}
	if c.SniffBytes == 0 {
		c.SniffBytes = defaults.SniffBytes
	}
	if c.ThumbnailSamples == 0 {
		c.ThumbnailSamples = defaults.ThumbnailSamples
	}
	if c.NumericSampleRows == 0 {
		c.NumericSampleRows = defaults.NumericSampleRows
	}
	if c.NumericThreshold == 0.0 {
		c.NumericThreshold = defaults.NumericThreshold
	}
	if c.ConvertCompression == "" {
		c.ConvertCompression = defaults.ConvertCompression
	}
	if c.InferSchemaRows == 0 {
		c.InferSchemaRows = defaults.InferSchemaRows
	}
	if c.ConvertBatchRows == 0 {
		c.ConvertBatchRows = defaults.ConvertBatchRows
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = defaults.Log.MaxSize
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaults.ListenAddr
	}

	// Note: MetricsCollection is intentionally not defaulted here
	// so an explicit false survives a round trip through a file

	return c
}

// LoadFromJSON loads configuration from JSON data
func LoadFromJSON(data []byte) (Config, error) {
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing JSON configuration: %w", err)
	}
	return config.WithDefaults(), nil
}

// LoadFromFile loads configuration from a file (supports JSON and YAML)
func LoadFromFile(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", filename, err)
	}

	var config Config
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".json":
		err = json.Unmarshal(data, &config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		return Config{}, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", filename, err)
	}

	return config.WithDefaults(), nil
}

// LoadFromEnv overlays DATASCOPE_* environment variables onto base.
// Unparseable values are ignored.
func LoadFromEnv(base Config) Config {
	config := base

	if val := os.Getenv("DATASCOPE_PAGE_SIZE"); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 64); err == nil {
			config.PageSize = parsed
		}
	}

	if val := os.Getenv("DATASCOPE_PROGRESS_INTERVAL"); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 64); err == nil {
			config.ProgressInterval = parsed
		}
	}

	if val := os.Getenv("DATASCOPE_THUMBNAIL_SAMPLES"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.ThumbnailSamples = parsed
		}
	}

	if val := os.Getenv("DATASCOPE_WORKER_POOL_SIZE"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.WorkerPoolSize = parsed
		}
	}

	if val := os.Getenv("DATASCOPE_CONVERT_COMPRESSION"); val != "" {
		config.ConvertCompression = strings.ToLower(val)
	}

	if val := os.Getenv("DATASCOPE_INFER_SCHEMA_ROWS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.InferSchemaRows = parsed
		}
	}

	if val := os.Getenv("DATASCOPE_LOG_LEVEL"); val != "" {
		config.Log.Level = val
	}

	if val := os.Getenv("DATASCOPE_LOG_FORMAT"); val != "" {
		config.Log.Format = val
	}

	if val := os.Getenv("DATASCOPE_LOG_FILE"); val != "" {
		config.Log.Filename = val
	}

	if val := os.Getenv("DATASCOPE_METRICS_COLLECTION"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.MetricsCollection = parsed
		}
	}

	if val := os.Getenv("DATASCOPE_LISTEN_ADDR"); val != "" {
		config.ListenAddr = val
	}

	return config
}

// GetSystemInfo returns system information for configuration validation
func GetSystemInfo() SystemInfo {
	return SystemInfo{
		CPUCount:     runtime.NumCPU(),
		Architecture: runtime.GOARCH,
		OSType:       runtime.GOOS,
	}
}

// NewConfigValidator creates a new configuration validator
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		systemInfo: GetSystemInfo(),
	}
}

// Validate validates a configuration and provides recommendations
func (cv *ConfigValidator) Validate(config Config) (Config, []string, error) {
	var warnings []string
	validated := config

	if err := config.Validate(); err != nil {
		return Config{}, warnings, err
	}

	if config.WorkerPoolSize > cv.systemInfo.CPUCount*4 {
		warnings = append(warnings,
			fmt.Sprintf("Worker pool size (%d) exceeds 4x CPU count (%d), page loads will contend for CPU",
				config.WorkerPoolSize, cv.systemInfo.CPUCount))
	}

	if config.ThumbnailSamples > int(min(config.PageSize, uint64(1<<31-1))) {
		warnings = append(warnings,
			fmt.Sprintf("Thumbnail samples (%d) exceed page size (%d), every row will be sampled",
				config.ThumbnailSamples, config.PageSize))
	}

	// Auto-adjust unset values
	if config.WorkerPoolSize == 0 {
		validated.WorkerPoolSize = cv.systemInfo.CPUCount
		warnings = append(warnings,
			fmt.Sprintf("Auto-setting worker pool size to %d (CPU count)",
				validated.WorkerPoolSize))
	}

	return validated, warnings, nil
}

func isSupportedCompression(name string) bool {
	for _, c := range supportedCompressions {
		if c == name {
			return true
		}
	}
	return false
}
