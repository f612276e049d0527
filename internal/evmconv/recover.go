package evmconv

import (
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// ErrInvalidSignature is returned when a signature does not recover to a
// valid public key over the given hash.
var ErrInvalidSignature = errors.New("evmconv: invalid signature")

// RecoverSender recovers the 20-byte Ethereum address that produced sig
// over hash, following the same compact-signature recovery convention
// Ethereum's yParity uses (v normalized to 0/1, or the legacy 27/28 form).
func RecoverSender(hash [32]byte, sig EthSignature) ([20]byte, error) {
	recID := sig.V
	if recID >= 27 {
		recID -= 27
	}
	if recID > 1 {
		return [20]byte{}, ErrInvalidSignature
	}

	var compact [65]byte
	compact[0] = 27 + recID
	copy(compact[1:33], sig.R[:])
	copy(compact[33:65], sig.S[:])

	pub, _, err := ecdsa.RecoverCompact(compact[:], hash[:])
	if err != nil {
		return [20]byte{}, ErrInvalidSignature
	}
	return pubkeyToAddress(pub), nil
}

// pubkeyToAddress derives the Ethereum address from an uncompressed
// secp256k1 public key: the low 20 bytes of keccak256(X || Y).
func pubkeyToAddress(pub *secp256k1.PublicKey) [20]byte {
	uncompressed := pub.SerializeUncompressed()
	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	sum := h.Sum(nil)
	var addr [20]byte
	copy(addr[:], sum[12:])
	return addr
}
