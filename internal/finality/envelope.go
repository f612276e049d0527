package finality

import (
	"fmt"

	cbor "github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/sha3"
)

var canonicalMode cbor.EncMode

func init() {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("finality: building canonical cbor mode: %v", err))
	}
	canonicalMode = m
}

// EncodeVoteEnvelope returns the domain-tagged canonical-CBOR payload a
// validator signs over for v: "/ipc/vote-record" || canonical-cbor(v).
func EncodeVoteEnvelope(v Vote) ([]byte, error) {
	body, err := canonicalMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("finality: encode vote: %w", err)
	}
	return append([]byte(VoteDomainTag), body...), nil
}

// VoteDigest is the keccak256 of the vote envelope: the value a
// validator actually signs and a verifier checks against the sender's
// registered public key.
func VoteDigest(v Vote) ([32]byte, error) {
	payload, err := EncodeVoteEnvelope(v)
	if err != nil {
		return [32]byte{}, err
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(payload)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}
