package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"aiservices/internal/logger"
)

const (
	// DefaultMaxUploadBytes is the per-image size limit (16 MiB).
	DefaultMaxUploadBytes = 16 * 1024 * 1024

	// DefaultMaxRequestBytes caps a whole request body, batch uploads included.
	DefaultMaxRequestBytes = 64 * 1024 * 1024
)

type Config struct {
	// HTTP Server Configuration
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	GinMode         string        `yaml:"gin_mode"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Upload Configuration
	UploadFolder    string `yaml:"upload_folder"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes"`
	MaxRequestBytes int64  `yaml:"max_request_bytes"`

	// NSFW Configuration
	NSFWThreshold     float64 `yaml:"nsfw_threshold"`
	NSFWPositiveLabel string  `yaml:"nsfw_positive_label"`

	// OCR Configuration
	OCRMaxLength           int      `yaml:"ocr_max_length"`
	OCRPrimary             string   `yaml:"ocr_primary"`
	OCRFallbacks           []string `yaml:"ocr_fallbacks"`
	OCRFallbackOnError     bool     `yaml:"ocr_fallback_on_error"`
	OCRFallbackUnavailable bool     `yaml:"ocr_fallback_on_unavailable"`
	OCRFallbackOnEmpty     bool     `yaml:"ocr_fallback_on_empty"`

	// ID Card Configuration
	IDCardExtractData       bool     `yaml:"idcard_extract_data"`
	IDCardCropPadding       int      `yaml:"idcard_crop_padding"`
	IDCardMinDetectionScore float64  `yaml:"idcard_min_detection_score"`
	IDCardObjectLabels      []string `yaml:"idcard_object_labels"`

	// Google Cloud Configuration
	GoogleCloudProject         string `yaml:"google_cloud_project"`
	GoogleCloudLocation        string `yaml:"google_cloud_location"`
	DocumentAIProcessorID      string `yaml:"document_ai_processor_id"`
	DocumentAIProcessorVersion string `yaml:"document_ai_processor_version"`

	// OpenAI Configuration
	OpenAIAPIKey      string `yaml:"-"`
	OpenAIVisionModel string `yaml:"openai_vision_model"`

	// Ollama Configuration
	OllamaURL         string `yaml:"ollama_url"`
	OllamaVisionModel string `yaml:"ollama_vision_model"`

	// Google Sheets Audit Configuration
	AuditSheetURL       string `yaml:"idcard_audit_sheet_url"`
	AuditSheetWorksheet string `yaml:"idcard_audit_worksheet"`

	// Logging Configuration
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	LogTimeFormat string `yaml:"log_time_format"`
	LogOutput     string `yaml:"log_output"`
}

// Default returns the configuration used when neither a file nor the
// environment overrides a key.
func Default() *Config {
	return &Config{
		Host:                    "0.0.0.0",
		Port:                    "5000",
		GinMode:                 "release",
		ShutdownTimeout:         15 * time.Second,
		UploadFolder:            "uploads",
		MaxUploadBytes:          DefaultMaxUploadBytes,
		MaxRequestBytes:         DefaultMaxRequestBytes,
		NSFWThreshold:           0.5,
		NSFWPositiveLabel:       "nsfw",
		OCRMaxLength:            512,
		OCRPrimary:              "google-vision",
		OCRFallbacks:            []string{"documentai", "openai", "ollama"},
		OCRFallbackOnError:      true,
		OCRFallbackUnavailable:  true,
		OCRFallbackOnEmpty:      false,
		IDCardExtractData:       true,
		IDCardCropPadding:       10,
		IDCardMinDetectionScore: 0.3,
		GoogleCloudLocation:     "us",
		OpenAIVisionModel:       "gpt-4o-mini",
		OllamaVisionModel:       "llama3.2-vision",
		AuditSheetWorksheet:     "IDCard_Audit",
		LogLevel:                "info",
		LogFormat:               "console",
		LogTimeFormat:           "2006-01-02T15:04:05Z07:00",
		LogOutput:               "stdout",
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and finally the environment.
func Load() (*Config, error) {
	config := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.loadEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.Host = getEnv("HOST", c.Host)
	c.Port = getEnv("PORT", c.Port)
	c.GinMode = getEnv("GIN_MODE", c.GinMode)
	c.UploadFolder = getEnv("UPLOAD_FOLDER", c.UploadFolder)
	c.NSFWPositiveLabel = getEnv("NSFW_POSITIVE_LABEL", c.NSFWPositiveLabel)
	c.OCRPrimary = getEnv("OCR_PRIMARY", c.OCRPrimary)
	c.OCRFallbacks = getEnvList("OCR_FALLBACKS", c.OCRFallbacks)
	c.IDCardObjectLabels = getEnvList("IDCARD_OBJECT_LABELS", c.IDCardObjectLabels)
	c.GoogleCloudProject = getEnv("GOOGLE_CLOUD_PROJECT", c.GoogleCloudProject)
	c.GoogleCloudLocation = getEnv("GOOGLE_CLOUD_LOCATION", c.GoogleCloudLocation)
	c.DocumentAIProcessorID = getEnv("DOCUMENT_AI_PROCESSOR_ID", c.DocumentAIProcessorID)
	c.DocumentAIProcessorVersion = getEnv("DOCUMENT_AI_PROCESSOR_VERSION", c.DocumentAIProcessorVersion)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIVisionModel = getEnv("OPENAI_VISION_MODEL", c.OpenAIVisionModel)
	c.OllamaURL = getEnv("OLLAMA_URL", c.OllamaURL)
	c.OllamaVisionModel = getEnv("OLLAMA_VISION_MODEL", c.OllamaVisionModel)
	c.AuditSheetURL = getEnv("IDCARD_AUDIT_SHEET_URL", c.AuditSheetURL)
	c.AuditSheetWorksheet = getEnv("IDCARD_AUDIT_WORKSHEET", c.AuditSheetWorksheet)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogTimeFormat = getEnv("LOG_TIME_FORMAT", c.LogTimeFormat)
	c.LogOutput = getEnv("LOG_OUTPUT", c.LogOutput)

	var err error
	if c.MaxUploadBytes, err = getEnvInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes); err != nil {
		return err
	}
	if c.MaxRequestBytes, err = getEnvInt64("MAX_REQUEST_BYTES", c.MaxRequestBytes); err != nil {
		return err
	}
	if c.NSFWThreshold, err = getEnvFloat("NSFW_THRESHOLD", c.NSFWThreshold); err != nil {
		return err
	}
	if c.IDCardMinDetectionScore, err = getEnvFloat("IDCARD_MIN_DETECTION_SCORE", c.IDCardMinDetectionScore); err != nil {
		return err
	}
	if c.OCRMaxLength, err = getEnvInt("OCR_MAX_LENGTH", c.OCRMaxLength); err != nil {
		return err
	}
	if c.IDCardCropPadding, err = getEnvInt("IDCARD_CROP_PADDING", c.IDCardCropPadding); err != nil {
		return err
	}
	if c.OCRFallbackOnError, err = getEnvBool("OCR_FALLBACK_ON_ERROR", c.OCRFallbackOnError); err != nil {
		return err
	}
	if c.OCRFallbackUnavailable, err = getEnvBool("OCR_FALLBACK_ON_UNAVAILABLE", c.OCRFallbackUnavailable); err != nil {
		return err
	}
	if c.OCRFallbackOnEmpty, err = getEnvBool("OCR_FALLBACK_ON_EMPTY", c.OCRFallbackOnEmpty); err != nil {
		return err
	}
	if c.IDCardExtractData, err = getEnvBool("IDCARD_EXTRACT_DATA", c.IDCardExtractData); err != nil {
		return err
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
		}
		c.ShutdownTimeout = d
	}

	return nil
}

// Validate rejects values no service can run with. Missing credentials are
// not an error here; the affected model is reported unavailable instead.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.MaxRequestBytes < c.MaxUploadBytes {
		return fmt.Errorf("MAX_REQUEST_BYTES (%d) must not be smaller than MAX_UPLOAD_BYTES (%d)", c.MaxRequestBytes, c.MaxUploadBytes)
	}
	if c.NSFWThreshold < 0 || c.NSFWThreshold > 1 {
		return fmt.Errorf("NSFW_THRESHOLD must be within [0,1], got %v", c.NSFWThreshold)
	}
	if c.IDCardMinDetectionScore < 0 || c.IDCardMinDetectionScore > 1 {
		return fmt.Errorf("IDCARD_MIN_DETECTION_SCORE must be within [0,1], got %v", c.IDCardMinDetectionScore)
	}
	if c.OCRMaxLength <= 0 {
		return fmt.Errorf("OCR_MAX_LENGTH must be positive, got %d", c.OCRMaxLength)
	}
	if c.IDCardCropPadding < 0 {
		return fmt.Errorf("IDCARD_CROP_PADDING must not be negative, got %d", c.IDCardCropPadding)
	}
	if c.OCRPrimary == "" {
		return fmt.Errorf("OCR_PRIMARY is required")
	}
	if c.UploadFolder == "" {
		return fmt.Errorf("UPLOAD_FOLDER is required")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList reads a comma separated list. An explicitly empty variable is
// not distinguishable from an unset one and keeps the default.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, value)
	}
	return n, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, value)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, value)
	}
	return f, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, value)
	}
	return b, nil
}
