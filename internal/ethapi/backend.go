// Package ethapi exposes the standard Ethereum JSON-RPC facade over
// HTTP and WebSocket (§6): eth_chainId, eth_sendRawTransaction,
// eth_getTransactionByHash, eth_getTransactionReceipt, eth_call,
// eth_estimateGas, and newHeads subscriptions over WebSocket.
// eth_newFilter answers method-not-found, and log subscriptions are not
// offered.
package ethapi

import (
	"context"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/evmconv"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipclog"
)

var log = ipclog.New("ethapi")

// Log is a single EVM event log entry.
type Log struct {
	Address [20]byte
	Topics  [][32]byte
	Data    []byte
}

// Receipt is the committed outcome of a transaction.
type Receipt struct {
	TransactionHash [32]byte
	Status          uint64 // 1 success, 0 failure
	GasUsed         uint64
	ContractAddress *[20]byte
	Logs            []Log
	ReturnData      []byte // raw revert payload, if Status == 0
}

// CallArgs is the standard eth_call / eth_estimateGas parameter set.
type CallArgs struct {
	From     *HexAddress `json:"from,omitempty"`
	To       *HexAddress `json:"to,omitempty"`
	Gas      *HexUint64  `json:"gas,omitempty"`
	GasPrice *HexUint64  `json:"gasPrice,omitempty"`
	Value    *HexUint64  `json:"value,omitempty"`
	Data     HexBytes    `json:"data,omitempty"`
}

// Backend is the execution/state surface the facade calls into; it is
// satisfied by the node's ABCI application and query index.
type Backend interface {
	ChainID() uint64
	LatestHeight(ctx context.Context) (uint64, error)
	// GetTransactionReceipt looks up a committed receipt. found=false
	// with a nil error means "not yet committed", not "unknown hash".
	GetTransactionReceipt(ctx context.Context, hash [32]byte) (Receipt, bool, error)
	// GetTransactionByHash returns the committed transaction, if any.
	GetTransactionByHash(ctx context.Context, hash [32]byte) (evmconv.EthTx1559, bool, error)
	Call(ctx context.Context, args CallArgs) ([]byte, error)
	EstimateGas(ctx context.Context, args CallArgs) (uint64, error)
	// SubmitTransaction admits raw to the mempool buffer / BFT mempool
	// and returns its domain hash.
	SubmitTransaction(ctx context.Context, raw []byte) ([32]byte, error)
}
