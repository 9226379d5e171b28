package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

// log is the process-wide structured logger. Per-bot entries carry a
// "bot" field (account username) via botLog.
var log = logrus.New()

// InitLogging configures the global logger per Config, matching
// ipadev88-proxy-checker-api's cmd/main.go setup (JSON in production,
// text when explicitly requested for interactive use).
func InitLogging(cfg *Config) {
	log.SetOutput(os.Stdout)

	if cfg.LogFormat == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
}

func botLog(username string) *logrus.Entry {
	return log.WithField("bot", username)
}
