// Package common contains helpers shared by the CLI and services.
package common

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// LogSetup returns a logger writing to stdout, as JSON or text.
func LogSetup(json bool, logLevel string) (*logrus.Entry, error) {
	return newLogger(os.Stdout, json, logLevel)
}

func newLogger(out io.Writer, json bool, logLevel string) (*logrus.Entry, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	if json {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if logLevel != "" {
		lvl, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		logger.SetLevel(lvl)
	}

	return logrus.NewEntry(logger), nil
}
