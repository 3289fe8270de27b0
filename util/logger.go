// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Output formats accepted by SetFormat.
const (
	FormatCLI  = "cli"
	FormatText = "text"
	FormatJSON = "json"
)

// Logger is the process logger: levelled printf-style helpers on top of
// an apex/log handler.  The same handler serves structured entries from
// the ssl package once Install has been called.
type Logger struct {
	mu         sync.Mutex
	level      LogLevel
	output     io.Writer
	format     string
	timestamps bool // text handler, which carries elapsed time
	apex       *log.Logger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		format:     FormatCLI,
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
	l.rebuild()
	return l
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) { l.timestamps = on; l.rebuild() }

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) { l.output = w; l.rebuild() }

// SetFormat selects the handler: "cli" (default), "text" or "json".
func (l *Logger) SetFormat(format string) error {
	switch format {
	case FormatCLI, FormatText, FormatJSON:
	case "":
		format = FormatCLI
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	l.format = format
	l.rebuild()
	return nil
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// Interface exposes the structured logger for libraries taking a
// log.Interface.
func (l *Logger) Interface() log.Interface {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.apex
}

// WithFields starts a structured entry.
func (l *Logger) WithFields(fields log.Fielder) *log.Entry {
	return l.Interface().WithFields(fields)
}

// Install makes this logger's handler and level the process default, so
// packages logging through log.Log end up in the same place.
func (l *Logger) Install() {
	l.mu.Lock()
	defer l.mu.Unlock()
	log.SetHandler(l.apex.Handler)
	log.SetLevel(l.apex.Level)
}

// Info prints when verbosity ≥ 1.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.Interface().Infof(format, args...)
	}
}

// Warn prints when verbosity ≥ 1.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.Interface().Warnf(format, args...)
	}
}

// Verbose prints when verbosity ≥ 2, at info severity.
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.Interface().Infof(format, args...)
	}
}

// Debug prints when verbosity ≥ 3.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.Interface().Debugf(format, args...)
	}
}

// Error always prints regardless of verbosity.
func (l *Logger) Error(format string, args ...interface{}) {
	l.Interface().Errorf(format, args...)
}

func (l *Logger) rebuild() {
	l.mu.Lock()
	defer l.mu.Unlock()

	var h log.Handler
	switch {
	case l.format == FormatJSON:
		h = json.New(l.output)
	case l.format == FormatText || l.timestamps:
		h = text.New(l.output)
	default:
		h = cli.New(l.output)
	}
	l.apex = &log.Logger{Handler: h, Level: apexLevel(l.level)}
}

// apexLevel maps verbosity onto the handler threshold.  Verbose already
// lets the library's debug entries through.
func apexLevel(v LogLevel) log.Level {
	switch {
	case v <= LogQuiet:
		return log.ErrorLevel
	case v == LogNormal:
		return log.InfoLevel
	default:
		return log.DebugLevel
	}
}
