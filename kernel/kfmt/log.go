// Package kfmt provides the kernel's logging and console output facilities.
//
// All output is routed through a single sink. Until a sink is attached via
// SetOutputSink, output is captured by a ring buffer whose contents are
// replayed to the sink once it becomes available.
package kfmt

import (
	"fmt"
	"io"

	"pagemap/kernel"
	"pagemap/kernel/sync"

	"github.com/sirupsen/logrus"
)

var (
	// sinkLock serializes writes to the output sink and the early buffer.
	sinkLock sync.Spinlock

	// earlyPrintBuffer is a ring buffer that stores output before an
	// output sink is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is an io.Writer where all output is sent. If set to nil,
	// output is redirected to the earlyPrintBuffer.
	outputSink io.Writer

	logger = newLogger()

	errUnknownLogLevel = &kernel.Error{Module: "kfmt", Message: "unknown log level"}
)

// sinkWriter forwards writes to the active output sink.
type sinkWriter struct{}

// Write implements io.Writer.
func (sinkWriter) Write(p []byte) (int, error) {
	sinkLock.Acquire()
	defer sinkLock.Release()

	if outputSink == nil {
		return earlyPrintBuffer.Write(p)
	}

	return outputSink.Write(p)
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(sinkWriter{})
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:    true,
		DisableTimestamp: true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetOutputSink sets the target for all log and Printf output to w and copies
// any data accumulated in the early print buffer to it.
func SetOutputSink(w io.Writer) {
	sinkLock.Acquire()
	defer sinkLock.Release()

	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// SetLevel sets the minimum level for log entries emitted via Logger. Valid
// names are the ones accepted by logrus (e.g. "debug", "info", "warn").
func SetLevel(name string) *kernel.Error {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return errUnknownLogLevel
	}

	logger.SetLevel(level)
	return nil
}

// Logger returns a structured logger whose entries are tagged with the
// supplied module name.
func Logger(module string) *logrus.Entry {
	return logger.WithField("module", module)
}

// Printf formats according to a format specifier and writes the result to the
// active output sink.
func Printf(format string, args ...interface{}) {
	Fprintf(sinkWriter{}, format, args...)
}

// Fprintf behaves like fmt.Fprintf but never reports an error; console output
// is best-effort.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}
