package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coredb/coredb/internal/txn"
)

type fakeFlushable struct{ flushes int }

func (f *fakeFlushable) FlushAll() error {
	f.flushes++
	return nil
}

func TestConfig_NewBackgroundFlusher_Disabled(t *testing.T) {
	cfg := &Config{Flusher: FlusherConfig{Enabled: false}}

	flusher, err := cfg.NewBackgroundFlusher(&fakeFlushable{})
	require.NoError(t, err)
	require.Nil(t, flusher)
}

func TestConfig_NewBackgroundFlusher_BuildsCronSchedule(t *testing.T) {
	cfg := &Config{Flusher: FlusherConfig{Enabled: true, Interval: 5 * time.Second}}

	flusher, err := cfg.NewBackgroundFlusher(&fakeFlushable{})
	require.NoError(t, err)
	require.NotNil(t, flusher)

	flusher.Start()
	flusher.Stop()
}

func TestConfig_DefaultIsolationLevel_FallsBackToRepeatableRead(t *testing.T) {
	cfg := &Config{}
	require.Equal(t, txn.RepeatableRead, cfg.DefaultIsolationLevel())

	cfg.Transaction.DefaultIsolation = "read_committed"
	require.Equal(t, txn.ReadCommitted, cfg.DefaultIsolationLevel())

	cfg.Transaction.DefaultIsolation = "not_a_real_level"
	require.Equal(t, txn.RepeatableRead, cfg.DefaultIsolationLevel())
}
