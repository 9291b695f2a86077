// internal/transport/serial.go
package transport

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"

	"fiscalgw/internal/model"
)

// SerialTransport opens a real UART. Opening is idempotent: a second Open
// on an already-open port is a no-op, per spec.md §4.1.
type SerialTransport struct {
	Path    string
	Params  model.SerialParams
	Timeout time.Duration

	mu   sync.Mutex
	port *serial.Port
}

var _ Transport = (*SerialTransport)(nil)

func (t *SerialTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		return nil
	}

	cfg := &serial.Config{
		Name:        t.Path,
		Baud:        t.Params.BaudRate,
		Size:        byte(t.Params.DataBits),
		Parity:      parseParity(t.Params.Parity),
		StopBits:    parseStopBits(t.Params.StopBits),
		ReadTimeout: t.Timeout,
	}

	p, err := serial.OpenPort(cfg)
	if err != nil {
		return classifyOpenErr(t.Path, err)
	}
	t.port = p
	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

func (t *SerialTransport) Write(b []byte) error {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return ErrClosed
	}
	// tarm/serial has no independent write deadline; on a real UART a
	// write to the driver's ring buffer does not block for the duration
	// of a device timeout, so the shared read/write timeout from spec.md
	// §4.1 is enforced on the read side only.
	_, err := port.Write(b)
	return err
}

func (t *SerialTransport) Read(n int, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return nil, ErrClosed
	}

	buf := make([]byte, n)
	read := 0
	deadline := time.Now().Add(timeout)
	for read < n {
		if time.Now().After(deadline) {
			break
		}
		k, err := port.Read(buf[read:])
		if k > 0 {
			read += k
		}
		if err != nil {
			if read > 0 {
				break
			}
			return nil, err
		}
		if k == 0 {
			// tarm/serial returns (0, nil) on read timeout.
			break
		}
	}
	return buf[:read], nil
}

func parseParity(p string) serial.Parity {
	switch strings.ToUpper(p) {
	case "E":
		return serial.ParityEven
	case "O":
		return serial.ParityOdd
	case "M":
		return serial.ParityMark
	case "S":
		return serial.ParitySpace
	default:
		return serial.ParityNone
	}
}

func parseStopBits(s string) serial.StopBits {
	switch s {
	case "1.5":
		return serial.Stop1Half
	case "2":
		return serial.Stop2
	default:
		return serial.Stop1
	}
}

func classifyOpenErr(path string, err error) error {
	if os.IsNotExist(err) {
		return &OpenError{Kind: KindPortMissing, Err: err}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "busy") || strings.Contains(msg, "resource temporarily unavailable") {
		return &OpenError{Kind: KindPortBusy, Err: err}
	}
	return &OpenError{Kind: KindPortMissing, Err: fmt.Errorf("open %s: %w", path, err)}
}
