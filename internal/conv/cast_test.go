//go:build amd64 || arm64

package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntToUint32(t *testing.T) {
	t.Run("valid zero", func(t *testing.T) {
		got, err := IntToUint32(0)
		assert.NoError(t, err)
		assert.Equal(t, uint32(0), got)
	})

	t.Run("valid positive", func(t *testing.T) {
		got, err := IntToUint32(123)
		assert.NoError(t, err)
		assert.Equal(t, uint32(123), got)
	})

	t.Run("invalid negative", func(t *testing.T) {
		_, err := IntToUint32(-1)
		assert.Error(t, err)
	})

	t.Run("invalid too large", func(t *testing.T) {
		_, err := IntToUint32(math.MaxUint32 + 1)
		assert.Error(t, err)
	})
}

func TestIntToUint64(t *testing.T) {
	got, err := IntToUint64(42)
	assert.NoError(t, err)
	assert.Equal(t, uint64(42), got)

	_, err = IntToUint64(-1)
	assert.Error(t, err)
}

func TestUint64ToInt(t *testing.T) {
	got, err := Uint64ToInt(42)
	assert.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = Uint64ToInt(math.MaxUint64)
	assert.Error(t, err)
}

func TestClampUint64ToInt(t *testing.T) {
	assert.Equal(t, 7, ClampUint64ToInt(7))
	assert.Equal(t, math.MaxInt, ClampUint64ToInt(math.MaxUint64))
}

func TestBytesFor(t *testing.T) {
	got, err := BytesFor(10, 8)
	assert.NoError(t, err)
	assert.Equal(t, int64(80), got)

	got, err = BytesFor(10, 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), got)

	_, err = BytesFor(-1, 8)
	assert.Error(t, err)

	_, err = BytesFor(math.MaxInt, 16)
	assert.Error(t, err)
}
