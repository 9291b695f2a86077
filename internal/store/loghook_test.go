package store

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogHookFiresIntoStore(t *testing.T) {
	s := openTestStore(t)
	log := logrus.New()
	log.AddHook(NewLogHook(s))
	log.SetOutput(io.Discard)

	log.WithError(errors.New("boom")).WithField("code", "E_TEST").Warn("something failed")

	logs, err := s.ListLogs()
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "something failed", logs[0].Message)
	assert.Equal(t, "E_TEST", logs[0].Code)
	assert.Equal(t, "boom", logs[0].Context["error"])
}

func TestToModelLevelMapsLogrusLevels(t *testing.T) {
	assert.Equal(t, toModelLevel(logrus.DebugLevel), toModelLevel(logrus.TraceLevel))
	assert.NotEqual(t, toModelLevel(logrus.InfoLevel), toModelLevel(logrus.ErrorLevel))
}
