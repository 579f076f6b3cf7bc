package mplsgos

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// simLog holds the entry the simulator writes through.  Elements look it up
// each time they log, so SetLogger also reaches topologies already built
var simLog atomic.Pointer[logrus.Entry]

func init() {
	SetLogger(logrus.StandardLogger())
}

// SetLogger replaces the logger the simulator writes through
func SetLogger(logger *logrus.Logger) {
	simLog.Store(logrus.NewEntry(logger).WithField("module", "mplsgos"))
}

// logger returns the entry in use
func logger() *logrus.Entry {
	return simLog.Load()
}
