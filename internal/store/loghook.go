package store

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fiscalgw/internal/model"
)

// LogHook fans every logrus entry out to the durable log table, on top of
// whatever stderr formatter the caller already attached (spec.md §5
// "Loggers are process-wide... fan out to both stderr and the durable log
// table").
type LogHook struct {
	Store *Store
}

// NewLogHook builds a hook writing into s.
func NewLogHook(s *Store) *LogHook {
	return &LogHook{Store: s}
}

func (h *LogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *LogHook) Fire(entry *logrus.Entry) error {
	ctx := make(map[string]string, len(entry.Data))
	for k, v := range entry.Data {
		ctx[k] = toLogContextString(v)
	}
	record := &model.LogRecord{
		ID:        uuid.NewString(),
		Level:     toModelLevel(entry.Level),
		Message:   entry.Message,
		Context:   ctx,
		Timestamp: entry.Time,
	}
	if code, ok := entry.Data["code"]; ok {
		record.Code, _ = code.(string)
	}
	return h.Store.AppendLog(record)
}

func toModelLevel(l logrus.Level) model.LogLevel {
	switch l {
	case logrus.DebugLevel, logrus.TraceLevel:
		return model.LogDebug
	case logrus.InfoLevel:
		return model.LogInfo
	case logrus.WarnLevel:
		return model.LogWarn
	default:
		return model.LogError
	}
}

func toLogContextString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	case fmtStringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

type fmtStringer interface {
	String() string
}
