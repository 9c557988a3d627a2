package config

type AppConfig struct {
	Name     string `env:"APP_NAME" envDefault:"bioreport-worker"`
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// HTTPAddr enables the status endpoints when set, e.g. ":8080".
	HTTPAddr string `env:"HTTP_ADDR"`
}

func (c AppConfig) IsProduction() bool {
	return c.Env == "production"
}
