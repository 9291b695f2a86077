package fiscalsession

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"fiscalgw/internal/transport"
	"fiscalgw/pkg/datecs"
)

// readFrame accumulates bytes from tr until a complete PRE..EOT frame is
// assembled, honouring the NAK/SYN control-byte semantics of spec.md §4.2:
// a NAK observed before any preamble aborts immediately; a SYN resets the
// read deadline without being appended to the buffer.
func readFrame(tr transport.Transport, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	var buf []byte
	started := false

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, newErr(KindProtocolTimeout, "no complete frame before deadline", nil)
		}
		chunk, err := tr.Read(1, remaining)
		if err != nil {
			return nil, newErr(KindTransport, "read failed", err)
		}
		if len(chunk) == 0 {
			continue
		}
		b := chunk[0]

		switch {
		case b == datecs.SYN:
			deadline = time.Now().Add(timeout)
			continue
		case !started && b == datecs.NAK:
			return nil, datecs.ErrNAK
		case !started && b != datecs.PRE:
			continue
		}

		if !started {
			started = true
			buf = []byte{b}
			continue
		}
		buf = append(buf, b)
		if b == datecs.EOT {
			return buf, nil
		}
	}
}

// exchange sends one request and returns its parsed response, retrying up
// to two additional times on a malformed response, a NAK, or a read
// timeout — always with the same sequence byte (spec.md §4.2
// "Send-with-retry").
func exchange(tr transport.Transport, dialect datecs.Dialect, statusLen int, cmd int, data []byte, seq byte, timeout time.Duration, log *logrus.Entry) (*datecs.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		frame := datecs.BuildRequest(dialect, cmd, data, seq)
		if err := tr.Write(frame); err != nil {
			return nil, newErr(KindTransport, "write failed", err)
		}

		raw, err := readFrame(tr, timeout)
		if err != nil {
			if errors.Is(err, datecs.ErrNAK) {
				log.WithField("attempt", attempt).Warn("datecs: NAK received, retrying")
				lastErr = err
				continue
			}
			var fe *Error
			if errors.As(err, &fe) && fe.Kind == KindProtocolTimeout {
				log.WithField("attempt", attempt).Warn("datecs: read timeout, retrying")
				lastErr = err
				continue
			}
			return nil, err
		}

		resp, perr := datecs.ParseResponse(dialect, raw, statusLen)
		if perr != nil {
			log.WithError(perr).WithField("attempt", attempt).Warn("datecs: framing error, retrying")
			lastErr = newErr(KindFraming, "malformed response", perr)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}
