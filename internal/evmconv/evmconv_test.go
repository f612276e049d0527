package evmconv

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/holiman/uint256"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

func btcecdsaSignCompact(key *btcec.PrivateKey, hash [32]byte) []byte {
	return btcecdsa.SignCompact(key, hash[:], false)
}

func TestIDAddressRoundTrip(t *testing.T) {
	// S2: id_address(1) serializes to 0xff00000000000000000000000000000000000001.
	addr := ipctypes.NewIDAddress(1)
	eth, err := FVMToEth(addr)
	if err != nil {
		t.Fatalf("fvm_to_eth: %v", err)
	}
	want, _ := hex.DecodeString("ff00000000000000000000000000000000000001")
	if hex.EncodeToString(eth[:]) != hex.EncodeToString(want) {
		t.Fatalf("got %x, want %x", eth, want)
	}

	back := EthToFVM(eth)
	if back.Protocol != ipctypes.ProtocolID || back.ID != 1 {
		t.Fatalf("round trip = %+v, want id=1", back)
	}
}

func TestIDAddressRoundTripExhaustiveSample(t *testing.T) {
	for _, id := range []uint64{0, 1, 2, 255, 256, 1 << 32, ^uint64(0)} {
		eth, err := FVMToEth(ipctypes.NewIDAddress(id))
		if err != nil {
			t.Fatalf("fvm_to_eth(%d): %v", id, err)
		}
		back := EthToFVM(eth)
		if back.Protocol != ipctypes.ProtocolID || back.ID != id {
			t.Fatalf("round trip for id=%d gave %+v", id, back)
		}
	}
}

func TestDelegatedEAMAddressRoundTrip(t *testing.T) {
	sub := make([]byte, 20)
	sub[19] = 0xAB
	addr := ipctypes.NewDelegatedAddress(ipctypes.EAMNamespace, sub)

	eth, err := FVMToEth(addr)
	if err != nil {
		t.Fatalf("fvm_to_eth: %v", err)
	}
	if eth[19] != 0xAB {
		t.Fatalf("expected identity mapping of subaddress, got %x", eth)
	}

	back := EthToFVM(eth)
	if back.Protocol != ipctypes.ProtocolDelegated || back.Namespace != ipctypes.EAMNamespace {
		t.Fatalf("round trip = %+v", back)
	}
}

func TestUnsupportedAddressErrors(t *testing.T) {
	addr := ipctypes.Address{Protocol: ipctypes.ProtocolSecp256k1, Hash: make([]byte, 20)}
	if _, err := FVMToEth(addr); err != ErrUnsupportedAddress {
		t.Fatalf("expected ErrUnsupportedAddress, got %v", err)
	}
}

func TestTokenU256RoundTrip(t *testing.T) {
	amounts := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		new(big.Int).Lsh(big.NewInt(1), 200),
	}
	for _, a := range amounts {
		tok := ipctypes.NewTokenAmount(a)
		u, err := TokenToU256(tok)
		if err != nil {
			t.Fatalf("token_to_u256(%s): %v", a, err)
		}
		back := U256ToToken(u)
		if back.Cmp(tok) != 0 {
			t.Fatalf("round trip for %s gave %s", a, back.Atto())
		}
	}
}

func TestTokenOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 256) // exactly 2^256, out of range
	tok := ipctypes.NewTokenAmount(huge)
	if _, err := TokenToU256(tok); err != ipctypes.ErrTokenOverflow {
		t.Fatalf("expected overflow error, got %v", err)
	}
}

func TestU256MaxRoundTrips(t *testing.T) {
	max := uint256.NewInt(0).Not(uint256.NewInt(0))
	tok := U256ToToken(max)
	back, err := TokenToU256(tok)
	if err != nil {
		t.Fatalf("token_to_u256: %v", err)
	}
	if back.Cmp(max) != 0 {
		t.Fatalf("round trip mismatch for max uint256")
	}
}

func TestFVMSignatureToEthNormalization(t *testing.T) {
	sig := ipctypes.Signature{V: 0}
	notNorm := FVMSignatureToEth(sig, false)
	if notNorm.V != 27 {
		t.Fatalf("unnormalized v=0 should map to 27, got %d", notNorm.V)
	}
	norm := FVMSignatureToEth(sig, true)
	if norm.V != 0 {
		t.Fatalf("normalized v=0 should pass through, got %d", norm.V)
	}
}

func TestToFVMContractCreation(t *testing.T) {
	tx := EthTx1559{ChainID: 314159, Nonce: 0, Value: big.NewInt(0), Data: []byte{0xde, 0xad}}
	msg := ToFVM(tx, ipctypes.NewIDAddress(100))
	if msg.Method != ipctypes.MethodCreateExternal {
		t.Fatalf("nil to= should map to CreateExternal, got %v", msg.Method)
	}
}

func TestToFVMContractCall(t *testing.T) {
	var to [20]byte
	to[19] = 0x42
	tx := EthTx1559{ChainID: 314159, Nonce: 1, Value: big.NewInt(0), To: &to}
	msg := ToFVM(tx, ipctypes.NewIDAddress(100))
	if msg.Method != ipctypes.MethodInvokeContract {
		t.Fatalf("non-nil to= should map to InvokeContract, got %v", msg.Method)
	}
}

func TestRecoverSenderMatchesSigner(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	tx := EthTx1559{
		ChainID:              314159,
		Nonce:                3,
		MaxPriorityFeePerGas: big.NewInt(1000),
		MaxFeePerGas:         big.NewInt(2000),
		GasLimit:             21000,
		Value:                big.NewInt(5),
	}
	hash := SigningHash(tx)
	compact := btcecdsaSignCompact(priv, hash)
	tx.Signature = EthSignature{V: compact[0] - 27}
	copy(tx.Signature.R[:], compact[1:33])
	copy(tx.Signature.S[:], compact[33:65])

	want := pubkeyToAddress(priv.PubKey())
	got, err := RecoverSender(hash, tx.Signature)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if got != want {
		t.Fatalf("recovered %x, want %x", got, want)
	}
}

func TestToFVMThenFromFVMRoundTripsModuloSignature(t *testing.T) {
	var to [20]byte
	to[19] = 0x42
	tx := EthTx1559{
		ChainID:              314159,
		Nonce:                5,
		MaxPriorityFeePerGas: big.NewInt(100),
		MaxFeePerGas:         big.NewInt(200),
		GasLimit:             30000,
		To:                   &to,
		Value:                big.NewInt(777),
		Data:                 []byte{0x01, 0x02, 0x03},
	}
	msg := ToFVM(tx, ipctypes.NewIDAddress(9))
	sm := ipctypes.SignedMessage{Message: msg, ChainID: tx.ChainID}

	back, err := FromFVM(sm)
	if err != nil {
		t.Fatalf("from_fvm: %v", err)
	}
	if back.ChainID != tx.ChainID || back.Nonce != tx.Nonce || back.GasLimit != tx.GasLimit {
		t.Fatalf("round trip mismatch: %+v vs %+v", back, tx)
	}
	if back.Value.Cmp(tx.Value) != 0 {
		t.Fatalf("value mismatch: %s vs %s", back.Value, tx.Value)
	}
	if back.To == nil || *back.To != to {
		t.Fatalf("to mismatch: %+v", back.To)
	}
	if string(back.Data) != string(tx.Data) {
		t.Fatalf("data mismatch: %x vs %x", back.Data, tx.Data)
	}
}

func TestDomainHashIsDeterministic(t *testing.T) {
	tx := EthTx1559{
		ChainID:              314159,
		Nonce:                7,
		MaxPriorityFeePerGas: big.NewInt(1000),
		MaxFeePerGas:         big.NewInt(2000),
		GasLimit:             21000,
		Value:                big.NewInt(1),
		Signature:            EthSignature{V: 1},
	}
	h1 := DomainHash(tx)
	h2 := DomainHash(tx)
	if h1 != h2 {
		t.Fatalf("domain hash must be deterministic for identical input")
	}

	tx2 := tx
	tx2.Nonce = 8
	if DomainHash(tx2) == h1 {
		t.Fatalf("domain hash must change when any signed field changes")
	}
}
