package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tbourn/go-prompt-manager/internal/config"
)

// LogOptions selects how the process logs.
type LogOptions struct {
	Level  string
	Pretty bool
	File   config.LogFileConfig
	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetupLogging installs the global zerolog logger. Records always go to
// Stdout (as console output when Pretty) and, when File.Path is set, also as
// JSON to a size-rotated file. The returned Closer releases the file.
//
// The logger also becomes zerolog.DefaultContextLogger so log.Ctx on a
// context without a request-scoped logger still writes somewhere useful.
func SetupLogging(opts LogOptions) io.Closer {
	level, known := SetLogLevel(opts.Level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	if p := strings.TrimSpace(opts.File.Path); p != "" {
		lj := &lumberjack.Logger{
			Filename:   p,
			MaxSize:    opts.File.MaxSizeMB,
			MaxBackups: opts.File.MaxBackups,
			MaxAge:     opts.File.MaxAgeDays,
			Compress:   opts.File.Compress,
		}
		out = zerolog.MultiLevelWriter(out, lj)
		closer = lj
	}

	l := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = l
	zerolog.DefaultContextLogger = &log.Logger
	if !known {
		log.Warn().Str("requested", opts.Level).Str("using", level.String()).Msg("unknown log level")
	}
	return closer
}
