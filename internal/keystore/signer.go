package keystore

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	cbor "github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/sha3"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

// CheckpointDomainTag domain-separates the checkpoint signing preimage
// from every other signed payload in the system.
const CheckpointDomainTag = "/ipc/checkpoint-record"

var canonicalMode cbor.EncMode

func init() {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("keystore: building canonical cbor mode: %v", err))
	}
	canonicalMode = m
}

// CanonicalCheckpointHash is the keccak256 of the domain-tagged
// canonical-CBOR encoding of a checkpoint, the value a validator signs
// and the gateway contract verifies against the registered public key.
func CanonicalCheckpointHash(c ipctypes.BottomUpCheckpoint) ([32]byte, error) {
	body, err := canonicalMode.Marshal(c)
	if err != nil {
		return [32]byte{}, fmt.Errorf("keystore: encoding checkpoint: %w", err)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(CheckpointDomainTag))
	h.Write(body)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// CheckpointSigner signs bottom-up checkpoints with a secp256k1 key held
// in memory, implementing checkpoint.Signer.
type CheckpointSigner struct {
	key       *btcec.PrivateKey
	publicKey []byte
}

// NewCheckpointSigner wraps key for checkpoint signing.
func NewCheckpointSigner(key *btcec.PrivateKey) *CheckpointSigner {
	return &CheckpointSigner{key: key, publicKey: key.PubKey().SerializeCompressed()}
}

// PublicKey returns the compressed secp256k1 public key identifying this
// validator in the power table.
func (s *CheckpointSigner) PublicKey() []byte { return s.publicKey }

// Sign produces a detached (r, s, v) signature over the checkpoint's
// canonical hash.
func (s *CheckpointSigner) Sign(checkpoint ipctypes.BottomUpCheckpoint) (ipctypes.Signature, error) {
	hash, err := CanonicalCheckpointHash(checkpoint)
	if err != nil {
		return ipctypes.Signature{}, err
	}
	compact := btcecdsa.SignCompact(s.key, hash[:], false)
	var out ipctypes.Signature
	copy(out.R[:], compact[1:33])
	copy(out.S[:], compact[33:65])
	out.V = compact[0] - 27
	return out, nil
}
