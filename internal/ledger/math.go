package ledger

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow reports a result that does not fit in 64 bits.
	ErrOverflow = errors.New("uint64 overflow")
	// ErrUnderflow reports a subtraction below zero.
	ErrUnderflow = errors.New("uint64 underflow")
)

// AddUint64 returns a+b or ErrOverflow. It never wraps.
func AddUint64(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, ErrOverflow
	}
	return sum.Uint64(), nil
}

// SubUint64 returns a-b or ErrUnderflow.
func SubUint64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// WeightedSum returns Σ values[i]*weights[i] computed with 256-bit
// intermediates, or ErrOverflow when the result exceeds 64 bits. The slices
// must have equal length.
func WeightedSum(values, weights []uint64) (uint64, error) {
	if len(values) != len(weights) {
		return 0, errors.New("weighted sum: length mismatch")
	}
	total := new(uint256.Int)
	term := new(uint256.Int)
	for i := range values {
		if _, overflow := term.MulOverflow(uint256.NewInt(values[i]), uint256.NewInt(weights[i])); overflow {
			return 0, ErrOverflow
		}
		if _, overflow := total.AddOverflow(total, term); overflow {
			return 0, ErrOverflow
		}
	}
	if !total.IsUint64() {
		return 0, ErrOverflow
	}
	return total.Uint64(), nil
}
