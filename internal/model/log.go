// internal/model/log.go
package model

import "time"

// LogLevel mirrors the levels the gateway's logger emits.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogRecord is an append-only durable log entry (spec.md §3).
type LogRecord struct {
	ID        string            `json:"id"`
	Level     LogLevel          `json:"level"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
