// Copyright 2024 OpsPilot Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads application configuration from a YAML file and
// environment variables. Environment variables take precedence over file
// values.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the complete application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Backend      BackendConfig      `mapstructure:"backend"`
	Provider     ProviderConfig     `mapstructure:"provider"`
	Gemini       GeminiConfig       `mapstructure:"gemini"`
	OpenAI       OpenAIConfig       `mapstructure:"openai"`
	Classifier   ClassifierConfig   `mapstructure:"classifier"`
	Images       ImagesConfig       `mapstructure:"images"`
	TraceStorage TraceStorageConfig `mapstructure:"trace_storage"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// BackendConfig contains the triage backend connection settings.
type BackendConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ProviderConfig selects the direct model provider.
type ProviderConfig struct {
	Kind string `mapstructure:"kind"`
}

// GeminiConfig contains Gemini API settings.
type GeminiConfig struct {
	APIKey         string `mapstructure:"apikey"`
	Endpoint       string `mapstructure:"endpoint"`
	Model          string `mapstructure:"model"`
	SecondaryModel string `mapstructure:"secondary_model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// OpenAIConfig contains settings for the OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"apikey"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// ClassifierConfig contains keyword classifier settings.
type ClassifierConfig struct {
	TopCategoryLimit int `mapstructure:"top_category_limit"`
}

// ImagesConfig bounds inbound image payloads.
type ImagesConfig struct {
	MaxBytes int `mapstructure:"max_bytes"`
}

// TraceStorageConfig contains trace store settings. An empty DBPath
// disables the durable mirror.
type TraceStorageConfig struct {
	MaxEntries int    `mapstructure:"max_entries"`
	DBPath     string `mapstructure:"db_path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Provider kinds.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// Load reads configuration from the given path, falling back to the default
// locations, and applies environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	setConfigFile(v, configPath)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("OPSPILOT")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults carry it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setEnvironmentMappings(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("backend.url", "http://localhost:8000")
	v.SetDefault("backend.timeout_seconds", 30)

	v.SetDefault("provider.kind", ProviderGemini)

	v.SetDefault("gemini.endpoint", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.model", "gemini-2.5-pro-preview-05-06")
	v.SetDefault("gemini.secondary_model", "gemini-1.5-pro")
	v.SetDefault("gemini.timeout_seconds", 60)

	v.SetDefault("openai.model", "gpt-4o")

	v.SetDefault("classifier.top_category_limit", 3)

	v.SetDefault("images.max_bytes", 2*1024*1024)

	v.SetDefault("trace_storage.max_entries", 1000)
	v.SetDefault("trace_storage.db_path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func setConfigFile(v *viper.Viper, configPath string) {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		v.SetConfigFile(envPath)
		return
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
}

// setEnvironmentMappings maps bare environment variables that do not carry
// the OPSPILOT_ prefix onto config keys.
func setEnvironmentMappings(v *viper.Viper) {
	envMappings := map[string]string{
		"GEMINI_API_KEY": "gemini.apikey",
		"OPENAI_API_KEY": "openai.apikey",
		"BACKEND_URL":    "backend.url",
		"LOG_LEVEL":      "logging.level",
		"LOG_FORMAT":     "logging.format",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}
}

// validate checks field values and reports every problem at once. A missing
// provider API key is deliberately not an error here; the pipeline treats
// it as a runtime fall-through condition.
func validate(cfg *Config) error {
	var errs []ValidationError

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	if cfg.Backend.URL == "" {
		errs = append(errs, ValidationError{
			Field:   "backend.url",
			Message: "backend URL is required. Set via config file or BACKEND_URL environment variable",
		})
	}
	if cfg.Backend.TimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "backend.timeout_seconds",
			Message: "timeout must be greater than 0",
		})
	}

	if cfg.Provider.Kind != ProviderGemini && cfg.Provider.Kind != ProviderOpenAI {
		errs = append(errs, ValidationError{
			Field:   "provider.kind",
			Message: fmt.Sprintf("provider kind must be one of: %s, %s", ProviderGemini, ProviderOpenAI),
		})
	}

	if cfg.Classifier.TopCategoryLimit <= 0 {
		errs = append(errs, ValidationError{
			Field:   "classifier.top_category_limit",
			Message: "top_category_limit must be greater than 0",
		})
	}

	if cfg.Images.MaxBytes <= 0 {
		errs = append(errs, ValidationError{
			Field:   "images.max_bytes",
			Message: "max_bytes must be greater than 0",
		})
	}

	if cfg.TraceStorage.MaxEntries <= 0 {
		errs = append(errs, ValidationError{
			Field:   "trace_storage.max_entries",
			Message: "max_entries must be greater than 0",
		})
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, cfg.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, cfg.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	if len(errs) > 0 {
		messages := make([]string, len(errs))
		for i, err := range errs {
			messages[i] = err.Error()
		}
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(messages, "\n"))
	}
	return nil
}

// MaskSensitiveValues returns a copy of the config with credentials masked
// for safe logging.
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c
	if masked.Gemini.APIKey != "" {
		masked.Gemini.APIKey = maskValue(masked.Gemini.APIKey)
	}
	if masked.OpenAI.APIKey != "" {
		masked.OpenAI.APIKey = maskValue(masked.OpenAI.APIKey)
	}
	return &masked
}

func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// WatchConfig reloads and revalidates configuration when the file changes.
// Invalid edits are reported and skipped; the previous config stays live.
func WatchConfig(configPath string, onChange func(*Config), onError func(error)) {
	v := viper.New()
	setConfigFile(v, configPath)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Load(configPath)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reloading config after change to %s: %w", e.Name, err))
			}
			return
		}
		onChange(cfg)
	})
}
