// main.go
//
// Process entry point. Wires configuration, storage, the answer catalog
// and matcher, the asset-backed variants, and the HTTP gateway together.

package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/okazari/soundguess/internal/catalog"
	"github.com/okazari/soundguess/internal/httpserver"
	"github.com/okazari/soundguess/internal/match"
	"github.com/okazari/soundguess/internal/provider"
	"github.com/okazari/soundguess/internal/round"
	"github.com/okazari/soundguess/internal/score"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.CatalogFile).Msg("load catalog")
	}
	log.Info().Int("answers", cat.Len()).Msg("catalog loaded")

	lib := provider.NewDirLibrary(cfg.AssetDir)
	variants := []provider.Variant{
		provider.NewJacket(cat, lib),
		provider.NewJacketGray(cat, lib),
		provider.NewJacketHard(cat, lib),
		provider.NewClip(cat, lib),
		provider.NewClipReverse(cat, lib),
	}

	var scores score.Store
	if !cfg.ScoresOff {
		db, err := openDB(cfg.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open db")
		}
		defer db.Close()
		if err := migrate(db); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
		scores = score.NewSQLStore(db)
	} else {
		log.Warn().Msg("scoring disabled, rankings unavailable")
	}

	engine := round.NewEngine(round.Config{
		Matcher:  match.New(cat),
		Sender:   httpserver.NewWebhookSender(cfg.OutboundURL),
		Scores:   scores,
		Variants: variants,
		Timeout:  cfg.RoundTimeout,
	})

	srv := httpserver.New(engine, scores, cfg.JWTSecret)
	log.Info().Str("port", cfg.Port).Msg("soundguess listening")
	if err := srv.Start(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
}
