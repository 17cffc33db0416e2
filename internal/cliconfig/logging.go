package cliconfig

import (
	"os"

	"github.com/rs/zerolog"

	logAdapter "github.com/bft-labs/dropship/internal/adapters/log"
)

// Logger returns the stderr logger for cfg's level and format.
func Logger(cfg Config) zerolog.Logger {
	return logAdapter.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}
