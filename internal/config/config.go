package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	MinerU    MinerUConfig
	Zhipu     ZhipuConfig
	Pipeline  PipelineConfig
	Artifacts ArtifactsConfig
	CORS      CORSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MinerUConfig holds settings for the MinerU document-parsing service.
// Polling interval and timeout are deliberately configuration inputs:
// completion latency is highly variable and outside this system's control.
type MinerUConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	Token            string `mapstructure:"token"`
	PollIntervalSecs int    `mapstructure:"poll_interval_secs"`
	PollTimeoutSecs  int    `mapstructure:"poll_timeout_secs"`
	EnableOCR        bool   `mapstructure:"enable_ocr"`
	Language         string `mapstructure:"language"`
}

// ZhipuConfig holds settings for the Zhipu GLM structuring service.
type ZhipuConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	TimeoutSecs int     `mapstructure:"timeout_secs"`
}

// PipelineConfig holds conversion pipeline settings.
type PipelineConfig struct {
	Concurrency   int   `mapstructure:"concurrency"`
	MaxFileSizeMB int64 `mapstructure:"max_file_size_mb"`
}

// ArtifactsConfig holds artifact store settings. Backend is "memory" or "s3".
type ArtifactsConfig struct {
	Backend   string `mapstructure:"backend"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads configuration from environment variables with the MEDBILL_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MEDBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.environment", "development")

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// MinerU defaults
	v.SetDefault("mineru.base_url", "https://mineru.net/api/v4")
	v.SetDefault("mineru.token", "")
	v.SetDefault("mineru.poll_interval_secs", 5)
	v.SetDefault("mineru.poll_timeout_secs", 600)
	v.SetDefault("mineru.enable_ocr", true)
	v.SetDefault("mineru.language", "ch")

	// Zhipu defaults
	v.SetDefault("zhipu.api_key", "")
	v.SetDefault("zhipu.model", "glm-4-flash")
	v.SetDefault("zhipu.base_url", "https://open.bigmodel.cn/api/paas/v4")
	v.SetDefault("zhipu.temperature", 0.1)
	v.SetDefault("zhipu.timeout_secs", 120)

	// Pipeline defaults
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.max_file_size_mb", 20)

	// Artifacts defaults
	v.SetDefault("artifacts.backend", "memory")
	v.SetDefault("artifacts.region", "us-east-1")
	v.SetDefault("artifacts.bucket", "medbill-artifacts")
	v.SetDefault("artifacts.endpoint", "")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":               "MEDBILL_SERVER_PORT",
		"server.read_timeout":       "MEDBILL_SERVER_READ_TIMEOUT",
		"server.write_timeout":      "MEDBILL_SERVER_WRITE_TIMEOUT",
		"server.environment":        "MEDBILL_SERVER_ENVIRONMENT",
		"log.level":                 "MEDBILL_LOG_LEVEL",
		"log.format":                "MEDBILL_LOG_FORMAT",
		"mineru.base_url":           "MEDBILL_MINERU_BASE_URL",
		"mineru.token":              "MEDBILL_MINERU_TOKEN",
		"mineru.poll_interval_secs": "MEDBILL_MINERU_POLL_INTERVAL_SECS",
		"mineru.poll_timeout_secs":  "MEDBILL_MINERU_POLL_TIMEOUT_SECS",
		"mineru.enable_ocr":         "MEDBILL_MINERU_ENABLE_OCR",
		"mineru.language":           "MEDBILL_MINERU_LANGUAGE",
		"zhipu.api_key":             "MEDBILL_ZHIPU_API_KEY",
		"zhipu.model":               "MEDBILL_ZHIPU_MODEL",
		"zhipu.base_url":            "MEDBILL_ZHIPU_BASE_URL",
		"zhipu.temperature":         "MEDBILL_ZHIPU_TEMPERATURE",
		"zhipu.timeout_secs":        "MEDBILL_ZHIPU_TIMEOUT_SECS",
		"pipeline.concurrency":      "MEDBILL_PIPELINE_CONCURRENCY",
		"pipeline.max_file_size_mb": "MEDBILL_PIPELINE_MAX_FILE_SIZE_MB",
		"artifacts.backend":         "MEDBILL_ARTIFACTS_BACKEND",
		"artifacts.region":          "MEDBILL_ARTIFACTS_REGION",
		"artifacts.bucket":          "MEDBILL_ARTIFACTS_BUCKET",
		"artifacts.endpoint":        "MEDBILL_ARTIFACTS_ENDPOINT",
		"artifacts.access_key":      "MEDBILL_ARTIFACTS_ACCESS_KEY",
		"artifacts.secret_key":      "MEDBILL_ARTIFACTS_SECRET_KEY",
		"cors.allowed_origins":      "MEDBILL_CORS_ALLOWED_ORIGINS",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if MEDBILL_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("MEDBILL_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.MinerU = MinerUConfig{
		BaseURL:          v.GetString("mineru.base_url"),
		Token:            v.GetString("mineru.token"),
		PollIntervalSecs: v.GetInt("mineru.poll_interval_secs"),
		PollTimeoutSecs:  v.GetInt("mineru.poll_timeout_secs"),
		EnableOCR:        v.GetBool("mineru.enable_ocr"),
		Language:         v.GetString("mineru.language"),
	}
	cfg.Zhipu = ZhipuConfig{
		APIKey:      v.GetString("zhipu.api_key"),
		Model:       v.GetString("zhipu.model"),
		BaseURL:     v.GetString("zhipu.base_url"),
		Temperature: v.GetFloat64("zhipu.temperature"),
		TimeoutSecs: v.GetInt("zhipu.timeout_secs"),
	}
	cfg.Pipeline = PipelineConfig{
		Concurrency:   v.GetInt("pipeline.concurrency"),
		MaxFileSizeMB: v.GetInt64("pipeline.max_file_size_mb"),
	}
	cfg.Artifacts = ArtifactsConfig{
		Backend:   v.GetString("artifacts.backend"),
		Region:    v.GetString("artifacts.region"),
		Bucket:    v.GetString("artifacts.bucket"),
		Endpoint:  v.GetString("artifacts.endpoint"),
		AccessKey: v.GetString("artifacts.access_key"),
		SecretKey: v.GetString("artifacts.secret_key"),
	}

	// Parse CORS allowed origins from comma-separated string
	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{AllowedOrigins: corsOrigins}

	return cfg, nil
}
