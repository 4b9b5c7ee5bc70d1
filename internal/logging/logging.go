// Package logging supplies the structured logger used everywhere the
// teacher repo reached for fmt.Printf/log.Panic, and a
// github.com/dgraph-io/badger/v4-compatible Logger adapter so the store
// and the rest of the node share one sink. Grounded on the teacher's
// opts.WithLogger(nil) calls in blockchain.go (badger's logging is
// disabled there entirely); this repo plugs in logrus instead of
// disabling it.
package logging

import (
	"github.com/sirupsen/logrus"
)

// New returns a logrus.Logger configured with the text formatter the
// rest of the example pack's services use for local/dev output.
func New() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

// BadgerLogger adapts a logrus.FieldLogger to badger's Logger interface
// (Errorf/Warningf/Infof/Debugf), so badger.Options.WithLogger can take
// this repo's own logger instead of the teacher's opts.WithLogger(nil).
type BadgerLogger struct {
	Entry logrus.FieldLogger
}

func NewBadgerLogger(entry logrus.FieldLogger) BadgerLogger {
	return BadgerLogger{Entry: entry}
}

func (b BadgerLogger) Errorf(format string, args ...any)   { b.Entry.Errorf(format, args...) }
func (b BadgerLogger) Warningf(format string, args ...any) { b.Entry.Warnf(format, args...) }
func (b BadgerLogger) Infof(format string, args ...any)    { b.Entry.Infof(format, args...) }
func (b BadgerLogger) Debugf(format string, args ...any)   { b.Entry.Debugf(format, args...) }
