package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		// Level defaults per environment in Load: debug in development,
		// info otherwise.
		Level  string `env:"LOG_LEVEL"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Engine struct {
		MaxTrials         int           `env:"TUNE_MAX_TRIALS" envDefault:"50"`
		NumInitialPoints  int           `env:"TUNE_INITIAL_POINTS" envDefault:"10"`
		MaxParallelTrials int           `env:"TUNE_MAX_PARALLEL" envDefault:"3"`
		PoolSize          int           `env:"TUNE_POOL_SIZE" envDefault:"1000"`
		Acquisition       string        `env:"TUNE_ACQUISITION" envDefault:"ei"`
		ExplorationFactor float64       `env:"TUNE_EXPLORATION_FACTOR" envDefault:"0.1"`
		EvalTimeout       time.Duration `env:"TUNE_EVAL_TIMEOUT" envDefault:"0s"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		} else {
			cfg.Logging.Level = "info"
		}
	}

	return cfg, nil
}
