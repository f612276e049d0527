package keystore

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

func TestPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ks, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	addr := ipctypes.NewIDAddress(7)

	if err := ks.Put(addr, priv); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := ks.Get(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Serialize()) != string(priv.Serialize()) {
		t.Fatalf("round-tripped key does not match original")
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	ks, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := ks.Get(ipctypes.NewIDAddress(1)); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDefaultAddress(t *testing.T) {
	ks, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	addr := ipctypes.NewIDAddress(42)
	if err := ks.SetDefault(addr); err != nil {
		t.Fatalf("set default: %v", err)
	}
	got, err := ks.GetDefault()
	if err != nil {
		t.Fatalf("get default: %v", err)
	}
	if !got.Equal(addr) {
		t.Fatalf("default = %+v, want %+v", got, addr)
	}
}

func TestListReturnsPutAddresses(t *testing.T) {
	ks, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	a1, a2 := ipctypes.NewIDAddress(1), ipctypes.NewIDAddress(2)
	k1, _ := btcec.NewPrivateKey()
	k2, _ := btcec.NewPrivateKey()
	if err := ks.Put(a1, k1); err != nil {
		t.Fatalf("put a1: %v", err)
	}
	if err := ks.Put(a2, k2); err != nil {
		t.Fatalf("put a2: %v", err)
	}
	list, err := ks.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(list))
	}
}

func TestRemoveDeletesKey(t *testing.T) {
	ks, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	addr := ipctypes.NewIDAddress(9)
	k, _ := btcec.NewPrivateKey()
	if err := ks.Put(addr, k); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := ks.Remove(addr); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := ks.Get(addr); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestCheckpointSignerProducesVerifiableSignature(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	signer := NewCheckpointSigner(priv)
	ck := ipctypes.BottomUpCheckpoint{
		SubnetID:    ipctypes.NewRootSubnetID(1),
		BlockHeight: 10,
		BlockHash:   ipctypes.BlockHash{0x01, 0x02},
	}
	sig, err := signer.Sign(ck)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sig.R == ([32]byte{}) || sig.S == ([32]byte{}) {
		t.Fatalf("signature components must be non-zero")
	}
}

func TestCanonicalCheckpointHashIsDeterministic(t *testing.T) {
	ck := ipctypes.BottomUpCheckpoint{
		SubnetID:    ipctypes.NewRootSubnetID(7),
		BlockHeight: 3,
	}
	h1, err := CanonicalCheckpointHash(ck)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := CanonicalCheckpointHash(ck)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("checkpoint hash must be deterministic")
	}
}
