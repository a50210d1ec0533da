// Package sysutil holds process-level helpers shared by the promptd commands:
// log setup and small environment parsing utilities.
package sysutil

import (
	"strings"

	"github.com/rs/zerolog"
)

// SetLogLevel applies lvl as the global zerolog level and returns it.
// Matching is case-insensitive and accepts "warning" for warn. Empty or
// unknown values fall back to info; ok is false only for unknown values.
func SetLogLevel(lvl string) (level zerolog.Level, ok bool) {
	s := strings.ToLower(strings.TrimSpace(lvl))
	if s == "warning" {
		s = "warn"
	}
	level, ok = zerolog.InfoLevel, true
	if s != "" {
		parsed, err := zerolog.ParseLevel(s)
		switch {
		case err != nil, parsed == zerolog.NoLevel:
			ok = false
		default:
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	return level, ok
}

// IsTruthy reports whether v reads as an enabled flag ("1", "true", "yes", "y", "on").
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// FirstNonEmpty returns the first value that is not blank, unmodified.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
