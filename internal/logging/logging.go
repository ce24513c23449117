// Package logging builds the service logger and the gin request logger on top of it.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// New configures a logger writing to w. format is one of text, logfmt or json.
func New(w io.Writer, level, format string) (*charmLog.Logger, error) {
	lvl, err := charmLog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", level, err)
	}

	var formatter charmLog.Formatter
	switch strings.ToLower(format) {
	case "", "text":
		formatter = charmLog.TextFormatter
	case "logfmt":
		formatter = charmLog.LogfmtFormatter
	case "json":
		formatter = charmLog.JSONFormatter
	default:
		return nil, fmt.Errorf("unknown logging format %q", format)
	}

	if w == nil {
		w = io.Discard
	}
	return charmLog.NewWithOptions(w, charmLog.Options{
		Level:           lvl,
		Prefix:          "lapor",
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       formatter,
	}), nil
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *charmLog.Logger {
	return charmLog.NewWithOptions(io.Discard, charmLog.Options{})
}

// GinLogger logs one line per request. Server errors log at error level,
// client errors at warn.
func GinLogger(logger *charmLog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start).Round(time.Microsecond),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
