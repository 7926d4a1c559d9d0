package logger

import (
	"os"

	"github.com/sirupsen/logrus"

	"medbill/internal/config"
)

// Setup configures the process-wide logrus logger from LogConfig.
// Format "json" emits structured JSON; anything else uses a console
// text formatter.
func Setup(cfg *config.LogConfig) {
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// WithComponent returns an entry tagged with the originating component.
func WithComponent(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
