package conv

import (
	"fmt"
	"math"
)

// IntToUint32 converts int to uint32 safely.
func IntToUint32(v int) (uint32, error) {
	if v < 0 {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to uint32 (negative)", v)
	}
	// On 64-bit systems, int can exceed uint32 max; on 32-bit, this is always false
	if uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to uint32 (too large)", v)
	}
	return uint32(v), nil
}

// IntToUint64 converts int to uint64 safely.
func IntToUint64(v int) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to uint64 (negative)", v)
	}
	return uint64(v), nil
}

// Uint64ToInt converts uint64 to int safely.
func Uint64ToInt(v uint64) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to int (too large)", v)
	}
	return int(v), nil
}

// ClampUint64ToInt converts v to int, saturating at math.MaxInt.
// Use it for upper bounds where "larger than any int" and MaxInt mean the same.
func ClampUint64ToInt(v uint64) int {
	if v > uint64(math.MaxInt) {
		return math.MaxInt
	}
	return int(v)
}

// BytesFor returns n*size as int64, failing on overflow.
func BytesFor(n, size int) (int64, error) {
	if n < 0 || size < 0 {
		return 0, fmt.Errorf("integer overflow: %d*%d (negative)", n, size)
	}
	if size != 0 && n > math.MaxInt64/size {
		return 0, fmt.Errorf("integer overflow: %d*%d exceeds int64", n, size)
	}
	return int64(n) * int64(size), nil
}
