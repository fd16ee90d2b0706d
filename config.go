// config.go
//
// Typed environment configuration. A .env file is loaded first when
// present (development), then the struct is parsed from the process
// environment.

package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type config struct {
	Port         string        `env:"PORT" envDefault:"5180"`
	DBPath       string        `env:"DB_PATH" envDefault:"./data/soundguess.db"`
	CatalogFile  string        `env:"CATALOG_FILE"`  // empty → embedded default table
	AssetDir     string        `env:"ASSET_DIR" envDefault:"./resources"`
	OutboundURL  string        `env:"OUTBOUND_URL"`  // empty → drop outbound messages
	JWTSecret    string        `env:"JWT_SECRET" envDefault:"dev_secret_change_me"`
	RoundTimeout time.Duration `env:"ROUND_TIMEOUT" envDefault:"60s"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	ScoresOff    bool          `env:"SCORES_DISABLED" envDefault:"false"`
}

func loadConfig() (config, error) {
	_ = godotenv.Load()
	var c config
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse env config: %w", err)
	}
	return c, nil
}
