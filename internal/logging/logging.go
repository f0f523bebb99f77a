// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Options selects level and output format.
type Options struct {
	Level string // debug, info, warn, error
	JSON  bool
	Out   io.Writer
}

// New returns a logger writing to stdout unless Out is set.
func New(opts Options) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if opts.JSON {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	}
	log.SetLevel(ParseLevel(opts.Level))
	if opts.Out != nil {
		log.SetOutput(opts.Out)
	} else {
		log.SetOutput(os.Stdout)
	}
	return log
}

// ParseLevel maps a level name to logrus, defaulting to info.
func ParseLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Component tags log lines with the emitting component.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
