// Package telemetry provides the package-level structured logger shared by
// every component of the replica. It mirrors the teacher's package-level
// "logger" convention (see consensus/scope_accept.go, manager_prepare.go)
// but backs it with logrus instead of a hand-rolled logger.
package telemetry

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the shared structured logger. Components call Log.WithField(...)
// to attach context (replica id, instance, message type) the way the
// teacher's logger calls carried printf-style context inline.
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel parses and applies a level name, defaulting to info on a bad
// name instead of failing startup over a logging flag.
func SetLevel(name string) {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		Log.WithField("requested", name).Warn("unknown log level, defaulting to info")
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)
}

// Replica returns a logger scoped to a replica id, the most common piece of
// context every consensus/execution log line needs.
func Replica(id string) *logrus.Entry {
	return Log.WithField("replica", id)
}
