package log

import "github.com/sirupsen/logrus"

// BadgerLogrusAdapter implements badger.Logger using logrus.
// Badger's info-level chatter (compaction, table loads) is logged at debug
// so it stays out of normal crawl output.
type BadgerLogrusAdapter struct {
	entry *logrus.Entry
}

// NewBadgerLogrusAdapter creates a new adapter tagged with component=badgerdb
func NewBadgerLogrusAdapter(entry *logrus.Entry) *BadgerLogrusAdapter {
	return &BadgerLogrusAdapter{entry: entry.WithField("component", "badgerdb")}
}

// Errorf logs an error message
func (l *BadgerLogrusAdapter) Errorf(f string, v ...interface{}) { l.entry.Errorf(f, v...) }

// Warningf logs a warning message
func (l *BadgerLogrusAdapter) Warningf(f string, v ...interface{}) { l.entry.Warnf(f, v...) }

// Infof logs at debug level
func (l *BadgerLogrusAdapter) Infof(f string, v ...interface{}) { l.entry.Debugf(f, v...) }

// Debugf logs at trace level
func (l *BadgerLogrusAdapter) Debugf(f string, v ...interface{}) { l.entry.Tracef(f, v...) }
