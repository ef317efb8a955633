package engine

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBWLimiter(t *testing.T) {
	t.Parallel()

	t.Run("unlimited", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, NewBWLimiter(0))
		assert.Nil(t, NewBWLimiter(-5))
	})

	t.Run("burst capped to rate when rate < 1MB", func(t *testing.T) {
		t.Parallel()
		lim := NewBWLimiter(1024)
		assert.Equal(t, 1024, lim.Burst())
	})

	t.Run("burst is 1MB when rate >= 1MB", func(t *testing.T) {
		t.Parallel()
		lim := NewBWLimiter(10 * 1024 * 1024)
		assert.Equal(t, 1<<20, lim.Burst())
	})
}

func TestRateLimitedReader(t *testing.T) {
	t.Parallel()

	t.Run("reads all data", func(t *testing.T) {
		t.Parallel()
		data := bytes.Repeat([]byte("x"), 4096)
		rl := newRateLimitedReader(context.Background(), bytes.NewReader(data), NewBWLimiter(1<<20))

		got, err := io.ReadAll(rl)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("reads larger than burst are split", func(t *testing.T) {
		t.Parallel()
		data := bytes.Repeat([]byte("y"), 2048)
		rl := newRateLimitedReader(context.Background(), bytes.NewReader(data), NewBWLimiter(1024))

		buf := make([]byte, 4096)
		n, err := rl.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, 1024, n)
	})

	t.Run("enforces rate limit", func(t *testing.T) {
		t.Parallel()
		// 10 KB at 5 KB/s: the burst absorbs the first 5 KB.
		data := bytes.Repeat([]byte("a"), 10*1024)
		rl := newRateLimitedReader(context.Background(), bytes.NewReader(data), NewBWLimiter(5*1024))

		start := time.Now()
		got, err := io.ReadAll(rl)
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.Len(t, got, len(data))
		assert.Greater(t, elapsed, 500*time.Millisecond)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()
		data := bytes.Repeat([]byte("b"), 1<<20)
		ctx, cancel := context.WithCancel(context.Background())
		rl := newRateLimitedReader(ctx, bytes.NewReader(data), NewBWLimiter(1024))
		cancel()

		buf := make([]byte, 4096)
		for range 100 {
			if _, err := rl.Read(buf); err != nil {
				return
			}
		}
		t.Fatal("expected context cancellation error")
	})
}
