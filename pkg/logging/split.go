package logging

import (
	"io"
	"io/ioutil"

	"github.com/sirupsen/logrus"
)

// SplitHook directs matched levels to its configured output.
type SplitHook struct {
	output io.Writer
	levels []logrus.Level
}

// NewSplitHook creates a hook writing entries of the given levels to output.
func NewSplitHook(output io.Writer, levels ...logrus.Level) *SplitHook {
	return &SplitHook{output: output, levels: levels}
}

// Fire is invoked when logrus tries to log any message.
func (hook *SplitHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	for _, level := range hook.levels {
		if level == entry.Level {
			_, err := hook.output.Write([]byte(line))
			return err
		}
	}
	return nil
}

// Levels returns the log levels this hook is being applied to.
func (hook *SplitHook) Levels() []logrus.Level {
	return hook.levels
}

// Split dispatches warning and lower severities to stdout and errors to
// stderr instead of writing every level to a single stream.
func Split(stdout, stderr io.Writer) Setter {
	return func(r *logrus.Logger) error {
		r.SetOutput(ioutil.Discard)
		r.AddHook(NewSplitHook(stdout,
			logrus.WarnLevel, logrus.InfoLevel, logrus.DebugLevel, logrus.TraceLevel))
		r.AddHook(NewSplitHook(stderr,
			logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel))
		return nil
	}
}
