package ipctypes

import (
	"errors"
	"math/big"
)

// ErrTokenOverflow is returned when a token amount does not fit a uint256.
var ErrTokenOverflow = errors.New("ipctypes: token amount does not fit in 256 bits")

var maxU256 = new(big.Int).Lsh(big.NewInt(1), 256)

// TokenAmount is a non-negative integer amount of attoFIL (1e-18 FIL).
type TokenAmount struct {
	atto *big.Int
}

// NewTokenAmount wraps a non-negative attoFIL amount. Negative values are
// clamped to zero, mirroring the non-negativity invariant in spec §3.
func NewTokenAmount(atto *big.Int) TokenAmount {
	if atto == nil || atto.Sign() < 0 {
		return TokenAmount{atto: big.NewInt(0)}
	}
	return TokenAmount{atto: new(big.Int).Set(atto)}
}

// Zero is the zero TokenAmount.
func Zero() TokenAmount { return NewTokenAmount(big.NewInt(0)) }

// Atto returns the underlying attoFIL integer. The returned value must not
// be mutated by callers.
func (t TokenAmount) Atto() *big.Int {
	if t.atto == nil {
		return big.NewInt(0)
	}
	return t.atto
}

// Cmp compares two token amounts.
func (t TokenAmount) Cmp(o TokenAmount) int { return t.Atto().Cmp(o.Atto()) }

// Add returns t + o.
func (t TokenAmount) Add(o TokenAmount) TokenAmount {
	return NewTokenAmount(new(big.Int).Add(t.Atto(), o.Atto()))
}
