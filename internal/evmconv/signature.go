package evmconv

import "github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"

// EthSignature is the 65-byte (r, s, v) triple as legacy Solidity
// ECDSA.sol checks expect it.
type EthSignature struct {
	R [32]byte
	S [32]byte
	V byte
}

// FVMSignatureToEth converts an FVM signature to Ethereum form. When
// normalized is false the recovery id is shifted by 27 to match the
// legacy convention used by Solidity's ECDSA.sol; when true, v passes
// through unchanged.
func FVMSignatureToEth(sig ipctypes.Signature, normalized bool) EthSignature {
	v := sig.V
	if !normalized {
		v += 27
	}
	return EthSignature{R: sig.R, S: sig.S, V: v}
}
