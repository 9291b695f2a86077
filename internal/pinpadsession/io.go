package pinpadsession

import (
	"time"

	"fiscalgw/internal/transport"
	"fiscalgw/pkg/pinpad"
)

// readExact accumulates exactly n bytes from tr before the deadline.
func readExact(tr transport.Transport, n int, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 0, n)
	for len(buf) < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, newErr(KindProtocolTimeout, "incomplete packet before deadline", nil)
		}
		chunk, err := tr.Read(n-len(buf), remaining)
		if err != nil {
			return nil, newErr(KindTransport, "read failed", err)
		}
		if len(chunk) == 0 {
			continue
		}
		buf = append(buf, chunk...)
	}
	return buf, nil
}

// readPacket reads one complete pinpad frame, discovering its total length
// from the header before reading the payload+XOR (spec.md §4.3).
func readPacket(tr transport.Transport, timeout time.Duration) (*pinpad.Packet, error) {
	header, err := readExact(tr, 3, timeout)
	if err != nil {
		return nil, err
	}
	if header[0] != pinpad.PRE {
		return nil, newErr(KindFraming, "missing preamble", nil)
	}

	var full []byte
	switch header[1] {
	case pinpad.TypeResponse:
		rest, err := readExact(tr, 3, timeout)
		if err != nil {
			return nil, err
		}
		length := int(rest[1])<<8 | int(rest[2])
		payload, err := readExact(tr, length+1, timeout)
		if err != nil {
			return nil, err
		}
		full = append(append(append([]byte{}, header...), rest...), payload...)
	default:
		rest, err := readExact(tr, 2, timeout)
		if err != nil {
			return nil, err
		}
		length := int(rest[0])<<8 | int(rest[1])
		payload, err := readExact(tr, length+1, timeout)
		if err != nil {
			return nil, err
		}
		full = append(append(append([]byte{}, header...), rest...), payload...)
	}

	pkt, err := pinpad.ParsePacket(full)
	if err != nil {
		return nil, newErr(KindFraming, "malformed packet", err)
	}
	return pkt, nil
}

// stream owns the byte transport for one transaction and demultiplexes
// responses from volunteered events (spec.md §9 "Event-vs-response on the
// same channel"). It is never shared across sessions.
type stream struct {
	tr      transport.Transport
	pending []*pinpad.Packet
}

func newStream(tr transport.Transport) *stream {
	return &stream{tr: tr}
}

// sendCommand writes a request and blocks for its matching response,
// queueing any event observed first into the pending buffer (spec.md
// §4.3).
func (s *stream) sendCommand(typ byte, subCmd byte, params []byte, timeout time.Duration) (*pinpad.Packet, error) {
	frame := pinpad.BuildRequest(typ, subCmd, params)
	if err := s.tr.Write(frame); err != nil {
		return nil, newErr(KindTransport, "write failed", err)
	}
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, newErr(KindProtocolTimeout, "no response before deadline", nil)
		}
		pkt, err := readPacket(s.tr, remaining)
		if err != nil {
			return nil, err
		}
		if pkt.Kind == pinpad.KindEvent {
			s.pending = append(s.pending, pkt)
			continue
		}
		return pkt, nil
	}
}

// drainPending removes and returns every queued event, oldest first
// (spec.md §4.6 step 1 "Drain pending events").
func (s *stream) drainPending() []*pinpad.Packet {
	if len(s.pending) == 0 {
		return nil
	}
	out := s.pending
	s.pending = nil
	return out
}

// readNext returns the next packet: a pending event if one is queued,
// otherwise a fresh read from the wire (spec.md §4.6 step 3).
func (s *stream) readNext(timeout time.Duration) (*pinpad.Packet, error) {
	if len(s.pending) > 0 {
		pkt := s.pending[0]
		s.pending = s.pending[1:]
		return pkt, nil
	}
	return readPacket(s.tr, timeout)
}
