package config

type OpenRouterConfig struct {
	APIKey  string `env:"OPENROUTER_API_KEY"`
	BaseURL string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
}
