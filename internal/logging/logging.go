// Package logging builds the loggers used across assetsync.
//
// Components take a *log.Logger with a bracketed prefix ("[sync] ",
// "[oauth] ", ...) and default to stderr when given nil. Setup wires an
// optional rotating file sink alongside stderr.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup returns a logger writing to stderr, and to a rotating log file when
// file is non-empty. The file rotates at 10 MB, keeping 3 backups for up to
// 28 days.
func Setup(prefix, file string) *log.Logger {
	var w io.Writer = os.Stderr

	if file != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}

	return log.New(w, prefix, log.LstdFlags)
}

// Child returns a logger sharing parent's sink under a different prefix.
// A nil parent yields a stderr logger.
func Child(parent *log.Logger, prefix string) *log.Logger {
	if parent == nil {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}
	return log.New(parent.Writer(), prefix, parent.Flags())
}
