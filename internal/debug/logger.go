package debug

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a debug-only logger. When disabled every method is a no-op, so
// callers never need a nil check.
type Logger struct {
	enabled bool
	log     zerolog.Logger
}

// NewLogger opens a rotating debug log at path when enabled.
func NewLogger(enabled bool, path string) *Logger {
	if !enabled {
		return &Logger{}
	}

	var w io.Writer = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
	}

	log := zerolog.New(w).With().Timestamp().Logger()
	log.Info().Msg("debug mode enabled")

	return &Logger{enabled: true, log: log}
}

func (d *Logger) Printf(format string, args ...interface{}) {
	if d == nil || !d.enabled {
		return
	}
	d.log.Debug().Msg(fmt.Sprintf(format, args...))
}

func (d *Logger) Println(args ...interface{}) {
	if d == nil || !d.enabled {
		return
	}
	d.log.Debug().Msg(fmt.Sprint(args...))
}

// Enabled reports whether debug output is active.
func (d *Logger) Enabled() bool {
	return d != nil && d.enabled
}
