package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(50))
	assert.Equal(t, int64(50), c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	// Limit exceeded, usage unchanged
	assert.ErrorIs(t, c.AcquireMemory(20), ErrMemoryLimitExceeded)
	assert.Equal(t, int64(90), c.MemoryUsage())

	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(20))
	assert.Equal(t, int64(60), c.MemoryUsage())
	assert.Equal(t, int64(90), c.PeakMemoryUsage())
	assert.Equal(t, int64(100), c.MemoryLimit())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireMemory(1000))
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())

	// Non-positive amounts are ignored
	require.NoError(t, c.AcquireMemory(0))
	c.ReleaseMemory(-1)
	assert.Equal(t, int64(500), c.MemoryUsage())
}

func TestController_Copy(t *testing.T) {
	c := NewController(Config{CopyLimitBytesPerSec: 1000})

	// Burst is available immediately
	assert.True(t, c.TryAcquireCopy(1000))
	assert.False(t, c.TryAcquireCopy(1000))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireCopy(ctx, 1000))

	assert.Equal(t, int64(1000), c.CopiedBytes())
}

func TestController_CopyUnlimited(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireCopy(context.Background(), 1<<30))
	assert.True(t, c.TryAcquireCopy(1<<30))
	assert.Equal(t, int64(2<<30), c.CopiedBytes())
}

func TestController_Nil(t *testing.T) {
	var c *Controller

	require.NoError(t, c.AcquireMemory(100))
	c.ReleaseMemory(100)
	assert.Equal(t, int64(0), c.MemoryUsage())
	assert.Equal(t, int64(0), c.PeakMemoryUsage())
	assert.Equal(t, int64(0), c.MemoryLimit())
	require.NoError(t, c.AcquireCopy(context.Background(), 100))
	assert.True(t, c.TryAcquireCopy(100))
	assert.Equal(t, int64(0), c.CopiedBytes())
}
