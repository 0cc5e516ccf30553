// Package logging configures the module's single logrus logger. The engine
// and CLI layers call through package-level helpers so structured fields
// travel with the message instead of a hand-formatted Fprintf string.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
}

// Setup adjusts the logger's verbosity; verbose turns on Debug-level
// output, matching the CLI's --verbose flag.
func Setup(verbose bool) {
	if verbose {
		log.SetLevel(logrus.DebugLevel)
		return
	}
	log.SetLevel(logrus.InfoLevel)
}

// Logger returns the package's shared *logrus.Logger for callers that want
// to build their own field-scoped entry (engine.New does this per dialect).
func Logger() *logrus.Logger { return log }

func WithField(key string, value any) *logrus.Entry   { return log.WithField(key, value) }
func WithFields(fields logrus.Fields) *logrus.Entry    { return log.WithFields(fields) }
func WithError(err error) *logrus.Entry                { return log.WithError(err) }

func Debugf(format string, args ...any) { log.Debugf(format, args...) }
func Infof(format string, args ...any)  { log.Infof(format, args...) }
func Warnf(format string, args ...any)  { log.Warnf(format, args...) }
func Errorf(format string, args ...any) { log.Errorf(format, args...) }
