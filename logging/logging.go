// Package logging centralises logrus setup for the server and client
// binaries, following the teacher's preference for a single place that
// decides the logger's format rather than every call site constructing its
// own.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logrus.Logger writing to stderr with a text formatter that
// includes full timestamps, suitable for both interactive use and log
// aggregation.
func New(debug bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if debug {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}
