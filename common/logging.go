// Package common provides the shared logging and error-classification
// infrastructure used by every relay-inventory service.
//
// The logging system is built on logrus with a custom output splitter that
// routes error-level messages to stderr and everything else to stdout, so
// containerized deployments can handle the two streams independently.
package common

import (
	"bytes"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted log lines to stdout or stderr based on
// their level. Error-level entries go to stderr so orchestrators and log
// aggregators can treat them with higher priority.
type OutputSplitter struct{}

// Write implements io.Writer. It inspects the formatted entry for the
// logrus error-level marker and picks the stream accordingly.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the global logger instance shared by the API server, the worker
// and the CLI commands. Services may adjust the formatter and level after
// startup (JSON in production, text for local runs).
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}

// LogEvent emits a structured event entry. Run lifecycle events
// (run_started, run_failed, run_succeeded, poison_job, ...) all flow
// through here so every entry carries an event name and a timestamp and
// stays machine-parseable.
func LogEvent(logger *logrus.Logger, event string, fields map[string]interface{}) {
	if logger == nil {
		logger = Logger
	}
	entryFields := logrus.Fields{
		"event":     event,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		entryFields[k] = v
	}
	logger.WithFields(entryFields).Info(event)
}
