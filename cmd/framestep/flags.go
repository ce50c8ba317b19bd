package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/framestep/internal/logger"
)

var (
	configFile string
	logLevel   string
	logFormat  string
	debug      bool
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default $FRAMESTEP_CONFIG or the user config dir)",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (auto, pretty, json, text)",
			Value:       "auto",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// openLogger builds the stderr logger from the logging flags. Call it after
// applyLoggingConfig.
func openLogger() (logger.Logger, error) {
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	format := logFormat
	if format == "" || format == "auto" {
		format = logger.FormatText
		if stderrIsTTY() {
			format = logger.FormatPretty
		}
	}
	return logger.Open(format, os.Stderr, level)
}
