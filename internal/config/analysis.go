package config

import "time"

const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
)

type AnalysisConfig struct {
	Provider      string        `env:"ANALYSIS_PROVIDER" envDefault:"gemini"`
	Model         string        `env:"ANALYSIS_MODEL"`
	MaxInputChars int           `env:"ANALYSIS_MAX_INPUT_CHARS" envDefault:"1000000"`
	Timeout       time.Duration `env:"ANALYSIS_TIMEOUT" envDefault:"90s"`
}

// ModelName returns the configured model or the provider's default.
func (c AnalysisConfig) ModelName() string {
	if c.Model != "" {
		return c.Model
	}
	switch c.Provider {
	case ProviderOpenRouter:
		return "openai/gpt-4o-mini"
	default:
		return "gemini-2.5-flash"
	}
}
