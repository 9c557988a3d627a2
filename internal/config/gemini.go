package config

type GeminiConfig struct {
	APIKey string `env:"GEMINI_API_KEY"`
}
