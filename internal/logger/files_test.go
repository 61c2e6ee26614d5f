package logger

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerLogsNewestFirstAndCapped(t *testing.T) {
	logs := NewWorkerLogs(t.TempDir(), 3)

	log, closeFn, err := logs.Open(NopLogger(), "chan-1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		log.Infow(fmt.Sprintf("line %d", i))
	}
	require.NoError(t, closeFn())

	entries, err := logs.Read("chan-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "line 4", entries[0]["message"])
	assert.Equal(t, "line 2", entries[2]["message"])
	assert.Equal(t, "chan-1", entries[0]["worker"])

	entries, err = logs.Read("chan-1", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "line 4", entries[0]["message"])

	entries, err = logs.Read("chan-1", AllLogs)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = logs.Read("chan-1", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWorkerLogsUnknownWorker(t *testing.T) {
	logs := NewWorkerLogs(t.TempDir(), 10)

	entries, err := logs.Read("missing", 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWorkerLogsWithoutDirectory(t *testing.T) {
	logs := NewWorkerLogs("", 10)
	base := NopLogger()

	log, closeFn, err := logs.Open(base, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, base, log)
	assert.NoError(t, closeFn())

	entries, err := logs.Read("chan-1", 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
