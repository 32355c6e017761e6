package testoutput

import (
	"io"
	"os"
	"sync"
	"testing"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/sirupsen/logrus"
)

// New returns a writer that writes strings (assuming lines) to the testing
// logger.
func New(t testing.TB) io.Writer {
	return &testoutput{t: t}
}

// Logger wraps a logger at the call point to collect its downstream calls.
func Logger(t testing.TB, logger logging.Logger) logging.Logger {
	l := logger.WithFields(logrus.Fields{})
	l.Logger.SetOutput(New(t))
	l.Logger.SetLevel(logrus.DebugLevel)
	return l
}

// Setter may be given to logging to configure the output to be sent to the
// testing facade to be interlaced with test output. Parallel tests would write
// to each other's output with this set.
func Setter(t testing.TB) logging.Setter {
	return func(l *logrus.Logger) error {
		l.SetOutput(New(t))
		l.SetLevel(logrus.DebugLevel)
		return nil
	}
}

// Revert restores the logger output to write to stderr.
func Revert() logging.Setter {
	return func(l *logrus.Logger) error {
		l.SetOutput(os.Stderr)
		l.SetLevel(logrus.InfoLevel)
		return nil
	}
}

// Recorder collects entries emitted while installed so tests can assert on
// the log points of a call.
type Recorder struct {
	mu      sync.Mutex
	entries []*logrus.Entry
}

// Record installs a Recorder on the root logger for the duration of the test.
func Record(t testing.TB) *Recorder {
	rec := &Recorder{}
	logging.Set(func(l *logrus.Logger) error {
		l.SetOutput(New(t))
		l.SetLevel(logrus.DebugLevel)
		l.AddHook(rec)
		return nil
	})
	t.Cleanup(func() {
		logging.Set(func(l *logrus.Logger) error {
			l.ReplaceHooks(make(logrus.LevelHooks))
			return Revert()(l)
		})
	})
	return rec
}

// Levels implements logrus.Hook.
func (r *Recorder) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (r *Recorder) Fire(entry *logrus.Entry) error {
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
	return nil
}

// Codes returns the code field of every recorded entry at the given level, in
// order of emission.
func (r *Recorder) Codes(level logrus.Level) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var codes []int
	for _, e := range r.entries {
		if e.Level != level {
			continue
		}
		if code, ok := e.Data[logging.CodeField].(int); ok {
			codes = append(codes, code)
		}
	}
	return codes
}

// Field returns the value of key on every recorded entry at the given level
// that carries it.
func (r *Recorder) Field(level logrus.Level, key string) []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var values []interface{}
	for _, e := range r.entries {
		if e.Level != level {
			continue
		}
		if v, ok := e.Data[key]; ok {
			values = append(values, v)
		}
	}
	return values
}

// Messages returns the messages recorded at the given level.
func (r *Recorder) Messages(level logrus.Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var msgs []string
	for _, e := range r.entries {
		if e.Level == level {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

type testoutput struct {
	t testing.TB
}

func (l *testoutput) Write(p []byte) (n int, err error) {
	l.t.Logf("%s", p)
	return len(p), nil
}
