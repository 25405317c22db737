package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after), "got %v", got)
}

func TestClockDrivesElapsedEstimates(t *testing.T) {
	t.Parallel()

	clk := New()
	started := clk.Now()
	time.Sleep(5 * time.Millisecond)
	require.GreaterOrEqual(t, clk.Now().Sub(started), 5*time.Millisecond)
}
