package logger

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger shared by every component of the proxy.
var Logger *logrus.Logger

const (
	FormatText = "text"
	FormatJSON = "json"
)

func init() {
	Logger = logrus.New()
	Logger.SetOutput(os.Stdout)
	Logger.SetFormatter(formatter(FormatText))
	Logger.SetLevel(logrus.InfoLevel)

	// LOG_LEVEL / LOG_FORMAT apply before the config file is read; main re-applies the config values.
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		if parsed, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
			Logger.SetLevel(parsed)
		}
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		_ = SetFormat(format)
	}
}

func formatter(format string) logrus.Formatter {
	if format == FormatJSON {
		return &logrus.JSONFormatter{}
	}
	return &logrus.TextFormatter{FullTimestamp: true}
}

// WithComponent adds a component field to the logger
func WithComponent(component string) *logrus.Entry {
	return Logger.WithField("component", component)
}

// WithRequest tags an entry with the intercepted request line.
func WithRequest(component string, r *http.Request) *logrus.Entry {
	return WithComponent(component).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	})
}

// SetLevel parses level and applies it, falling back to info when it is not a valid logrus level.
// It returns the level actually applied.
func SetLevel(level string) (logrus.Level, error) {
	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		Logger.SetLevel(logrus.InfoLevel)
		return logrus.InfoLevel, err
	}
	Logger.SetLevel(parsed)
	return parsed, nil
}

// SetFormat switches between the text and json formatters. Unknown formats leave the logger as is.
func SetFormat(format string) error {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case FormatText, FormatJSON:
		Logger.SetFormatter(formatter(format))
		return nil
	default:
		return fmt.Errorf("unknown log format %q (valid: text, json)", format)
	}
}
