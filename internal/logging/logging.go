// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"gitlab.com/d21d3q/gosml/internal/config"
)

// Configure returns a logger with the configured level, formatter and
// output. A file output is opened in append mode and stays open for the life
// of the logger.
func Configure(cfg config.Logging) (*logrus.Logger, error) {
	log := logrus.New()

	level := logrus.InfoLevel
	if cfg.Level != "" {
		lvl, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = lvl
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	if cfg.File == "" {
		log.SetOutput(os.Stdout)
		return log, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", cfg.File, err)
	}
	log.SetOutput(f)
	return log, nil
}
