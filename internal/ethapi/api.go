package ethapi

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/evmconv"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/txcache"
)

// API implements the Ethereum JSON-RPC facade described in §6, one
// method per RPC, receiver-style the way the teacher's own eth
// namespace is organized.
type API struct {
	backend Backend
	cache   *txcache.Cache
	buffer  *txcache.Buffer
	addrs   *AddressCache
}

// New returns an API serving reads from backend, falling back to cache
// and buffer for not-yet-committed transactions.
func New(backend Backend, cache *txcache.Cache, buffer *txcache.Buffer, addrs *AddressCache) *API {
	return &API{backend: backend, cache: cache, buffer: buffer, addrs: addrs}
}

// ChainId implements eth_chainId.
func (a *API) ChainId(ctx context.Context) (string, error) {
	return hexUint64(a.backend.ChainID()), nil
}

// BlockNumber implements eth_blockNumber.
func (a *API) BlockNumber(ctx context.Context) (string, error) {
	h, err := a.backend.LatestHeight(ctx)
	if err != nil {
		return "", err
	}
	return hexUint64(h), nil
}

// SendRawTransaction implements eth_sendRawTransaction: decodes the RLP
// envelope, recovers the sender, and hands the raw bytes to the backend
// (which threads them through the mempool buffer, §4.5).
func (a *API) SendRawTransaction(ctx context.Context, rawHex string) (string, error) {
	raw, err := decodeHexBytes(rawHex)
	if err != nil {
		return "", &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}
	tx, err := evmconv.DecodeEthTx1559(raw)
	if err != nil {
		return "", &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("decoding transaction: %v", err)}
	}
	if _, err := evmconv.RecoverSender(evmconv.SigningHash(tx), tx.Signature); err != nil {
		return "", &RPCError{Code: CodeInvalidParams, Message: "invalid signature"}
	}

	hash, err := a.backend.SubmitTransaction(ctx, raw)
	if err != nil {
		return "", &RPCError{Code: CodeTransactionRejected, Message: err.Error()}
	}
	return "0x" + hex.EncodeToString(hash[:]), nil
}

// GetTransactionByHash implements eth_getTransactionByHash, consulting
// the tx-cache on miss in the backend's committed index (§6).
func (a *API) GetTransactionByHash(ctx context.Context, hashHex string) (*evmconv.EthTx1559, error) {
	hash, err := decodeHash(hashHex)
	if err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}

	if tx, ok, err := a.backend.GetTransactionByHash(ctx, hash); err != nil {
		return nil, err
	} else if ok {
		return &tx, nil
	}

	if a.cache != nil {
		if sm, ok := a.cache.Get(txcache.Hash(hash)); ok {
			tx, err := evmconv.FromFVM(sm)
			if err != nil {
				return nil, err
			}
			return &tx, nil
		}
	}
	return nil, nil
}

// ReceiptView is the JSON-facing receipt shape: Receipt plus the decoded
// revert reason (§6: "revert payloads are decoded into a human-readable
// reason when present and returned in the data field as hex").
type ReceiptView struct {
	Receipt
	RevertReason string `json:"revertReason,omitempty"`
	ReturnDataHex string `json:"returnData,omitempty"`
}

// GetTransactionReceipt implements eth_getTransactionReceipt.
func (a *API) GetTransactionReceipt(ctx context.Context, hashHex string) (*ReceiptView, error) {
	hash, err := decodeHash(hashHex)
	if err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}
	receipt, ok, err := a.backend.GetTransactionReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	view := ReceiptView{Receipt: receipt}
	if receipt.Status == 0 && len(receipt.ReturnData) > 0 {
		view.ReturnDataHex = "0x" + hex.EncodeToString(receipt.ReturnData)
		if reason, ok := decodeRevertReason(receipt.ReturnData); ok {
			view.RevertReason = reason
		}
	}
	return &view, nil
}

// Call implements eth_call. Backend errors, reverts included, are
// returned as the backend produced them; no revert reason is decoded here.
func (a *API) Call(ctx context.Context, args CallArgs) (string, error) {
	out, err := a.backend.Call(ctx, args)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(out), nil
}

// EstimateGas implements eth_estimateGas.
func (a *API) EstimateGas(ctx context.Context, args CallArgs) (string, error) {
	gas, err := a.backend.EstimateGas(ctx, args)
	if err != nil {
		return "", err
	}
	return hexUint64(gas), nil
}

// NewFilter answers eth_newFilter with a method-not-found error; no
// filters are kept. The WebSocket subscription path in server.go offers
// newHeads only, so log filtering is not available there either.
func (a *API) NewFilter(ctx context.Context) (string, error) {
	return "", &RPCError{Code: CodeMethodNotFound, Message: "eth_newFilter: use eth_subscribe over websocket"}
}

func hexUint64(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

func decodeHexBytes(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func decodeHash(s string) ([32]byte, error) {
	raw, err := decodeHexBytes(s)
	if err != nil || len(raw) != 32 {
		return [32]byte{}, fmt.Errorf("ethapi: malformed hash %q", s)
	}
	var h [32]byte
	copy(h[:], raw)
	return h, nil
}
