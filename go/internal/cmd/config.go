package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aeroduel/arena/go/internal/config"
)

func loadConfig() (config.Config, error) {
	return config.Load()
}

// setupLogging applies the configured level and output format to the
// global logger.
func setupLogging(cfg config.Config) {
	level, err := cfg.LogLevel()
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
