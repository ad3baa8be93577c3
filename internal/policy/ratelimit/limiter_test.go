package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterWaitDelaysSecondRequest(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1: the second token arrives after ~100ms.
	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://malegislature.gov/api/Committees"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://malegislature.gov/api/Hearings"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example/1"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterDisabledByDefault(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for range 50 {
		require.NoError(t, l.Wait(ctx, "https://malegislature.gov/api/Documents"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterRespectsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.example"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://slow.example"))
}
