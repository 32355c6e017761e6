// Package logging provides the daemon's component loggers, all derived from a
// single root logrus logger.
package logging

import (
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// ComponentField names the daemon component that emitted the entry.
	ComponentField = "component"
	// SubComponentField names the part of a component that emitted the entry.
	SubComponentField = "subcomponent"
	// CodeField carries the operational message id of a log point.
	CodeField = "code"
	// TagField identifies the module on whose behalf entries are logged.
	TagField = "tag"
)

// Tag is attached to every component logger.
const Tag = "wazuh-modulesd:agent-upgrade"

// Setter configures the root logger.
type Setter func(*logrus.Logger) error

// Logger is handed to components that log.
type Logger interface {
	logrus.FieldLogger
}

var (
	rootMu sync.Mutex
	root   = newRoot()
)

func newRoot() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return l
}

// New returns a logger for component after applying setters to the root.
func New(component string, setters ...Setter) Logger {
	for _, setter := range setters {
		// Setters are best effort when creating a logger.
		_ = Set(setter)
	}
	return root.WithFields(logrus.Fields{
		ComponentField: component,
		TagField:       Tag,
	})
}

// Sub narrows log to a named part of its component.
func Sub(log Logger, name string) Logger {
	return log.WithField(SubComponentField, name)
}

// WithCode tags log with the operational message id of a log point.
func WithCode(log Logger, code int) Logger {
	return log.WithField(CodeField, code)
}

// Set applies setter to the root logger.
func Set(setter Setter) error {
	rootMu.Lock()
	defer rootMu.Unlock()
	return setter(root)
}

// Level sets the root level by name. Unknown names enable debug logging so
// that a typo in configuration never hides messages.
func Level(lvl string) Setter {
	l, err := logrus.ParseLevel(lvl)
	if err != nil {
		root.WithError(err).Errorf("unable to parse provided level %q", lvl)
		l = logrus.DebugLevel
	}
	return func(r *logrus.Logger) error {
		r.SetLevel(l)
		return nil
	}
}
