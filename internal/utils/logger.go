package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Format     string `yaml:"format"`      // console or json
	OutputFile string `yaml:"output_file"` // Optional; empty logs to stderr only
	MaxSize    int    `yaml:"max_size"`    // Megabytes before rotation
	MaxBackups int    `yaml:"max_backups"` //
	MaxAge     int    `yaml:"max_age"`     // Days
	Compress   bool   `yaml:"compress"`    //
}

// SetupLogger configures the global zerolog logger and returns it. Output
// goes to stderr, human readable unless the format is json, and is
// duplicated as JSON into a rotating file when one is configured.
func SetupLogger(cfg LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var console io.Writer = os.Stderr
	if cfg.Format != "json" {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "06-01-02 15:04:05"}
	}

	writers := []io.Writer{console}
	if cfg.OutputFile != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}
