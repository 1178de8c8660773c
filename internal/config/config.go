package config

import "github.com/caarlos0/env/v9"

type Config struct {
	Port       string `env:"PORT" envDefault:"8080"`
	DBUser     string `env:"DB_USER,required"`
	DBPassword string `env:"DB_PASSWORD,required"`
	DBHost     string `env:"DB_HOST,required"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName     string `env:"DB_NAME,required"`
	DBPort     string `env:"DB_PORT" envDefault:"3306"`

	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`

	// Source platform credentials. A missing credential fails only the
	// transactions that need it, never the process.
	RapidAPIKey      string `env:"RAPIDAPI_KEY"`
	HuggingFaceToken string `env:"HUGGINGFACE_TOKEN"`

	StripeSecretKey string `env:"STRIPE_SECRET_KEY"`

	// FulfillmentWorkers bounds concurrent fulfillment executions.
	FulfillmentWorkers int `env:"FULFILLMENT_WORKERS" envDefault:"4"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
