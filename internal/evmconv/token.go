package evmconv

import (
	"github.com/holiman/uint256"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

// TokenToU256 converts t to a 256-bit unsigned integer, failing if t is
// too large to fit.
func TokenToU256(t ipctypes.TokenAmount) (*uint256.Int, error) {
	u, overflow := uint256.FromBig(t.Atto())
	if overflow {
		return nil, ipctypes.ErrTokenOverflow
	}
	return u, nil
}

// U256ToToken converts a 256-bit unsigned integer back to a TokenAmount.
func U256ToToken(u *uint256.Int) ipctypes.TokenAmount {
	return ipctypes.NewTokenAmount(u.ToBig())
}
