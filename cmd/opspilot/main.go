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

// opspilot serves the IT issue resolution pipeline over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/your-org/opspilot/internal/backend"
	"github.com/your-org/opspilot/internal/classifier"
	"github.com/your-org/opspilot/internal/config"
	"github.com/your-org/opspilot/internal/health"
	"github.com/your-org/opspilot/internal/orchestrator"
	"github.com/your-org/opspilot/internal/provider"
	"github.com/your-org/opspilot/internal/server"
	"github.com/your-org/opspilot/internal/synthesis"
	"github.com/your-org/opspilot/internal/trace"
)

// Version is set at build time.
var Version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "opspilot",
		Short: "Tiered IT issue resolution service",
		Long: "opspilot resolves IT support requests through a tiered pipeline: " +
			"a triage backend, a direct model provider, and local keyword synthesis.",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.Any("config", cfg.MaskSensitiveValues()))

	store, err := trace.NewStore(trace.Config{
		MaxEntries: cfg.TraceStorage.MaxEntries,
		DBPath:     cfg.TraceStorage.DBPath,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing trace store: %w", err)
	}
	defer func() { _ = store.Close() }()

	keywordClassifier := classifier.NewKeywordClassifier(cfg.Classifier.TopCategoryLimit)
	synthesizer := synthesis.NewSynthesizer()
	normalizer := provider.NewNormalizer(keywordClassifier, synthesizer, logger)

	modelProvider, credentialPresent := buildProvider(cfg, normalizer, logger)

	backendClient := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.URL,
		Timeout: time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
	}, logger)

	pipeline := orchestrator.New(
		orchestrator.Config{MaxImageBytes: cfg.Images.MaxBytes},
		backendClient,
		modelProvider,
		keywordClassifier,
		synthesizer,
		store,
		logger,
	)

	healthManager := health.NewManager("opspilot", Version, logger)
	healthManager.AddChecker("backend", health.BackendChecker(cfg.Backend.URL, nil))
	healthManager.AddChecker("provider_credential",
		health.CredentialChecker(cfg.Provider.Kind+" api key", credentialPresent))
	healthManager.AddChecker("trace_store", health.StoreChecker(func(ctx context.Context) error {
		_, err := store.Get(ctx, "health-probe")
		if errors.Is(err, trace.ErrNotFound) {
			return nil
		}
		return err
	}))

	config.WatchConfig(configPath,
		func(updated *config.Config) {
			logger.Info("configuration file changed; restart to apply",
				zap.Any("config", updated.MaskSensitiveValues()))
		},
		func(err error) {
			logger.Warn("configuration reload failed", zap.Error(err))
		},
	)

	srv := server.New(pipeline, healthManager, logger)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	logger.Info("starting server",
		zap.String("addr", addr),
		zap.String("provider", modelProvider.Name()),
		zap.String("backend_url", cfg.Backend.URL))

	if err := srv.Router().Run(addr); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

// buildProvider selects the direct model client from configuration and
// returns it with a credential presence probe for health reporting.
func buildProvider(cfg *config.Config, normalizer *provider.Normalizer, logger *zap.Logger) (provider.Provider, func() bool) {
	if cfg.Provider.Kind == config.ProviderOpenAI {
		client := provider.NewOpenAIClient(provider.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
		}, normalizer, logger)
		return client, func() bool { return cfg.OpenAI.APIKey != "" }
	}

	client := provider.NewGeminiClient(provider.GeminiConfig{
		Endpoint:       cfg.Gemini.Endpoint,
		APIKey:         cfg.Gemini.APIKey,
		Model:          cfg.Gemini.Model,
		SecondaryModel: cfg.Gemini.SecondaryModel,
		Timeout:        time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second,
	}, normalizer, logger)
	return client, func() bool { return cfg.Gemini.APIKey != "" }
}

// newLogger builds the process logger from logging config.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Format == "text" {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	return zapCfg.Build()
}
