// internal/model/printer.go
// Package model holds the durable record types shared by the store, the
// job queue, and the protocol sessions.
package model

import "time"

// TransportKind selects which byte transport a printer is reached through.
type TransportKind string

const (
	TransportSerial TransportKind = "serial"
	TransportLAN    TransportKind = "lan"
)

// Dialect is the on-wire Datecs framing variant a model key resolves to.
type Dialect string

const (
	DialectHexNibble Dialect = "hex" // 8-byte status, 4-ASCII-hex length/cmd/BCC
	DialectByte      Dialect = "byte" // 6-byte status, single-byte length/cmd
)

// BuilderFamily is the payload-builder variant a model key resolves to.
type BuilderFamily string

const (
	BuilderTab     BuilderFamily = "tab"
	BuilderCompact BuilderFamily = "compact"
)

// ModelProfile is the closed variant the design notes call for: a lookup
// from a printer's model key to the fixed set of protocol facts that key
// implies. It never varies per-printer beyond what ModelKey selects.
type ModelProfile struct {
	Builder     BuilderFamily
	Dialect     Dialect
	StatusBytes int // 6 or 8
	Encoding    string
}

// SerialParams mirrors the parameters a real UART needs.
type SerialParams struct {
	BaudRate int
	DataBits int    // 5,6,7,8
	Parity   string // N,E,O,M,S
	StopBits string // "1", "1.5", "2"
}

// LANEndpoint is a host:port pair for LAN-attached devices.
type LANEndpoint struct {
	Host string
	Port int
}

// Printer is the durable printer record (spec.md §3).
type Printer struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	ModelKey  string        `json:"model_key"`
	Transport TransportKind `json:"transport"`
	Serial    *SerialParams `json:"serial,omitempty"`
	LAN       *LANEndpoint  `json:"lan,omitempty"`
	Timeout   time.Duration `json:"timeout"`
	Enabled   bool          `json:"enabled"`
	DryRun    bool          `json:"dry_run"`

	// Config carries operator credentials, a tax-code map, encoding
	// overrides, and a command table override. Deliberately untyped: the
	// set of keys is per-model and the core never interprets it beyond
	// passing named values to the builders and session layer.
	Config map[string]string `json:"config,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
