// internal/transport/dryrun.go
package transport

import (
	"time"

	"github.com/sirupsen/logrus"
)

// DryRunTransport substitutes writes with structured log entries and
// returns empty on reads, for offline validation without touching
// hardware (spec.md §4.1).
type DryRunTransport struct {
	PrinterID string
	Log       *logrus.Logger
}

var _ Transport = (*DryRunTransport)(nil)

func (t *DryRunTransport) Open() error  { return nil }
func (t *DryRunTransport) Close() error { return nil }

func (t *DryRunTransport) Write(b []byte) error {
	t.logger().WithFields(logrus.Fields{
		"printer_id": t.PrinterID,
		"bytes":      len(b),
		"frame":      formatHex(b),
	}).Info("dry-run: write suppressed")
	return nil
}

func (t *DryRunTransport) Read(n int, timeout time.Duration) ([]byte, error) {
	t.logger().WithFields(logrus.Fields{
		"printer_id": t.PrinterID,
		"requested":  n,
	}).Debug("dry-run: read returns empty")
	return nil, nil
}

func (t *DryRunTransport) logger() *logrus.Logger {
	if t.Log != nil {
		return t.Log
	}
	return logrus.StandardLogger()
}

func formatHex(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, hexdigits[c>>4], hexdigits[c&0x0f])
	}
	return string(out)
}
