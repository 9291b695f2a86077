// internal/transport/factory.go
package transport

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"fiscalgw/internal/model"
)

// New builds the transport a printer record calls for: dry-run overrides
// everything else, then transport kind selects serial or TCP.
func New(p *model.Printer, log *logrus.Logger) (Transport, error) {
	if p.DryRun {
		return &DryRunTransport{PrinterID: p.ID, Log: log}, nil
	}
	switch p.Transport {
	case model.TransportSerial:
		if p.Serial == nil {
			return nil, fmt.Errorf("printer %s: transport=serial requires serial params", p.ID)
		}
		return &SerialTransport{
			Path:    p.Config["serial_path"],
			Params:  *p.Serial,
			Timeout: p.Timeout,
		}, nil
	case model.TransportLAN:
		if p.LAN == nil {
			return nil, fmt.Errorf("printer %s: transport=lan requires a LAN endpoint", p.ID)
		}
		return &TCPTransport{
			Host:    p.LAN.Host,
			Port:    p.LAN.Port,
			Timeout: p.Timeout,
		}, nil
	default:
		return nil, fmt.Errorf("printer %s: unknown transport kind %q", p.ID, p.Transport)
	}
}
