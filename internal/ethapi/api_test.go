package ethapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/evmconv"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/txcache"
)

type fakeBackend struct {
	chainID   uint64
	submitted [][]byte
	receipts  map[[32]byte]Receipt
}

func (b *fakeBackend) ChainID() uint64 { return b.chainID }
func (b *fakeBackend) LatestHeight(ctx context.Context) (uint64, error) { return 100, nil }
func (b *fakeBackend) GetTransactionReceipt(ctx context.Context, hash [32]byte) (Receipt, bool, error) {
	r, ok := b.receipts[hash]
	return r, ok, nil
}
func (b *fakeBackend) GetTransactionByHash(ctx context.Context, hash [32]byte) (evmconv.EthTx1559, bool, error) {
	return evmconv.EthTx1559{}, false, nil
}
func (b *fakeBackend) Call(ctx context.Context, args CallArgs) ([]byte, error) { return []byte{0x01}, nil }
func (b *fakeBackend) EstimateGas(ctx context.Context, args CallArgs) (uint64, error) {
	return 21000, nil
}
func (b *fakeBackend) SubmitTransaction(ctx context.Context, raw []byte) ([32]byte, error) {
	b.submitted = append(b.submitted, raw)
	var h [32]byte
	h[0] = byte(len(b.submitted))
	return h, nil
}

func TestChainIdReturnsHex(t *testing.T) {
	api := New(&fakeBackend{chainID: 314159}, nil, nil, nil)
	got, err := api.ChainId(context.Background())
	if err != nil {
		t.Fatalf("chain id: %v", err)
	}
	if got != "0x4cb2f" {
		t.Fatalf("chain id = %s, want 0x4cb2f", got)
	}
}

func TestGetTransactionByHashFallsBackToTxCache(t *testing.T) {
	cache, err := txcache.NewCache(10)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	msg := ipctypes.Message{
		Nonce:      3,
		Value:      ipctypes.NewTokenAmount(big.NewInt(5)),
		Method:     ipctypes.MethodInvokeContract,
		GasLimit:   21000,
		GasFeeCap:  ipctypes.NewTokenAmount(big.NewInt(2)),
		GasPremium: ipctypes.NewTokenAmount(big.NewInt(1)),
	}
	sm := ipctypes.SignedMessage{Message: msg, ChainID: 314159}
	var hash [32]byte
	hash[0] = 0xAB
	cache.Put(txcache.Hash(hash), sm)

	api := New(&fakeBackend{chainID: 314159}, cache, nil, nil)
	tx, err := api.GetTransactionByHash(context.Background(), "0x"+hex.EncodeToString(hash[:]))
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if tx == nil {
		t.Fatalf("expected a tx-cache hit")
	}
	if tx.Nonce != 3 {
		t.Fatalf("nonce = %d, want 3", tx.Nonce)
	}
}

func TestGetTransactionByHashMissReturnsNil(t *testing.T) {
	api := New(&fakeBackend{chainID: 1}, nil, nil, nil)
	var hash [32]byte
	tx, err := api.GetTransactionByHash(context.Background(), "0x"+hex.EncodeToString(hash[:]))
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if tx != nil {
		t.Fatalf("expected nil for unknown hash")
	}
}

func TestSendRawTransactionRejectsMalformedInput(t *testing.T) {
	api := New(&fakeBackend{chainID: 1}, nil, nil, nil)
	_, err := api.SendRawTransaction(context.Background(), "0xdeadbeef")
	if err == nil {
		t.Fatalf("expected error for malformed transaction")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok || rpcErr.Code != CodeInvalidParams {
		t.Fatalf("expected CodeInvalidParams, got %v", err)
	}
}

func TestDecodeRevertReason(t *testing.T) {
	// Error(string) selector + offset(32) + length(32) + "bad input" padded.
	reason := "bad input"
	payload := append([]byte{}, errorSelector[:]...)
	offset := make([]byte, 32)
	offset[31] = 32
	payload = append(payload, offset...)
	length := make([]byte, 32)
	length[31] = byte(len(reason))
	payload = append(payload, length...)
	data := make([]byte, 32)
	copy(data, reason)
	payload = append(payload, data...)

	got, ok := decodeRevertReason(payload)
	if !ok {
		t.Fatalf("expected a decodable revert reason")
	}
	if got != reason {
		t.Fatalf("reason = %q, want %q", got, reason)
	}
}

func TestDecodeRevertReasonRejectsNonStandardSelector(t *testing.T) {
	if _, ok := decodeRevertReason([]byte{0x01, 0x02, 0x03, 0x04}); ok {
		t.Fatalf("expected non-Error(string) payload to be rejected")
	}
}

func TestCallArgsHexRoundTrip(t *testing.T) {
	gas := HexUint64(21000)
	args := CallArgs{Gas: &gas, Data: HexBytes{0xde, 0xad}}
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back CallArgs
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Gas == nil || *back.Gas != 21000 {
		t.Fatalf("gas round trip failed: %+v", back.Gas)
	}
	if hex.EncodeToString(back.Data) != "dead" {
		t.Fatalf("data round trip failed: %x", back.Data)
	}
}
