package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddUint64(t *testing.T) {
	sum, err := AddUint64(2, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), sum)

	sum, err = AddUint64(math.MaxUint64-1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), sum)

	_, err = AddUint64(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestSubUint64(t *testing.T) {
	diff, err := SubUint64(10, 10)
	require.NoError(t, err)
	assert.Zero(t, diff)

	_, err = SubUint64(9, 10)
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestWeightedSum(t *testing.T) {
	weights := []uint64{30, 25, 20, 25}

	got, err := WeightedSum([]uint64{2, 0, 0, 0}, weights)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), got)

	got, err = WeightedSum([]uint64{3, 1, 4, 1}, weights)
	require.NoError(t, err)
	assert.Equal(t, uint64(3*30+25+4*20+25), got)

	t.Run("product beyond 64 bits overflows", func(t *testing.T) {
		_, err := WeightedSum([]uint64{math.MaxUint64, 0, 0, 0}, weights)
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("sum beyond 64 bits overflows", func(t *testing.T) {
		half := uint64(math.MaxUint64/2 + 1)
		_, err := WeightedSum([]uint64{half, half}, []uint64{1, 1})
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("exact max fits", func(t *testing.T) {
		got, err := WeightedSum([]uint64{math.MaxUint64, 0}, []uint64{1, 7})
		require.NoError(t, err)
		assert.Equal(t, uint64(math.MaxUint64), got)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := WeightedSum([]uint64{1}, weights)
		assert.Error(t, err)
	})
}
