package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is built once at startup and handed to constructors by value.
type Config struct {
	App        AppConfig
	DB         DBConfig
	Worker     WorkerConfig
	Storage    StorageConfig
	Analysis   AnalysisConfig
	Gemini     GeminiConfig
	OpenRouter OpenRouterConfig
}

// Load parses the process environment. Callers load any .env file beforehand.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var problems []string
	if c.Worker.PollIntervalSeconds <= 0 {
		problems = append(problems, "POLL_INTERVAL_SECONDS must be positive")
	}
	if c.Worker.MaxAttempts < 1 {
		problems = append(problems, "MAX_ATTEMPTS must be at least 1")
	}
	if c.Worker.StaleLockSeconds <= 0 {
		problems = append(problems, "STALE_LOCK_SECONDS must be positive")
	}
	if strings.TrimSpace(c.Storage.BasePath) == "" {
		problems = append(problems, "STORAGE_BASE_PATH must not be empty")
	}
	switch c.Analysis.Provider {
	case ProviderGemini, ProviderOpenRouter:
	default:
		problems = append(problems, fmt.Sprintf("ANALYSIS_PROVIDER %q is not supported", c.Analysis.Provider))
	}
	if c.Analysis.MaxInputChars <= 0 {
		problems = append(problems, "ANALYSIS_MAX_INPUT_CHARS must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
