package safeconv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMustUint32ToInt(t *testing.T) {
	t.Parallel()

	t.Run("normal_value", func(t *testing.T) {
		t.Parallel()

		got := MustUint32ToInt(42)
		assert.Equal(t, 42, got)
	})

	t.Run("zero", func(t *testing.T) {
		t.Parallel()

		got := MustUint32ToInt(0)
		assert.Equal(t, 0, got)
	})

	t.Run("max_uint32", func(t *testing.T) {
		t.Parallel()

		if uint64(math.MaxUint32) > uint64(MaxInt) {
			t.Skip("32-bit platform")
		}

		got := MustUint32ToInt(math.MaxUint32)
		assert.Equal(t, int(int64(math.MaxUint32)), got)
	})
}

func TestMustIntToUint32(t *testing.T) {
	t.Parallel()

	t.Run("normal_value", func(t *testing.T) {
		t.Parallel()

		got := MustIntToUint32(42)
		assert.Equal(t, uint32(42), got)
	})

	t.Run("zero", func(t *testing.T) {
		t.Parallel()

		got := MustIntToUint32(0)
		assert.Equal(t, uint32(0), got)
	})

	t.Run("negative_panics", func(t *testing.T) {
		t.Parallel()

		assert.PanicsWithValue(t, "safeconv: int to uint32 out of bounds", func() {
			MustIntToUint32(-1)
		})
	})
}
