// Package rpcclient implements parentclient.Client and childclient.Client
// against a generic JSON-RPC 2.0 endpoint, using the snake_case method
// names named in §6 directly (chain_head, genesis_epoch, ...). This is
// not the Ethereum JSON-RPC dialect the node's own facade (ethapi)
// speaks to external wallets; it is the private wire format between a
// subnet node and its parent/child chain's own RPC endpoint, so no
// ecosystem client library in the retrieval pack already speaks it.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/childclient"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/parentclient"
)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client is a JSON-RPC client satisfying both parentclient.Client and
// childclient.Client against a single RPC endpoint.
type Client struct {
	url string
	hc  *http.Client
}

// New returns a Client dialing url, with a request timeout.
func New(url string, timeout time.Duration) *Client {
	return &Client{url: url, hc: &http.Client{Timeout: timeout}}
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(request{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("rpcclient: encoding %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("rpcclient: building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("rpcclient: calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("rpcclient: decoding %s response: %w", method, err)
	}
	if r.Error != nil {
		return fmt.Errorf("rpcclient: %s: %s (code %d)", method, r.Error.Message, r.Error.Code)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(r.Result, out)
}

func hexBytes(b []byte) string { return "0x" + hex.EncodeToString(b) }

// ChainHead implements parentclient.Client.
func (c *Client) ChainHead(ctx context.Context) (uint64, error) {
	var h uint64
	err := c.call(ctx, "chain_head", nil, &h)
	return h, err
}

// GenesisEpoch implements parentclient.Client.
func (c *Client) GenesisEpoch(ctx context.Context, child ipctypes.SubnetID) (uint64, error) {
	var h uint64
	err := c.call(ctx, "genesis_epoch", []any{child.String()}, &h)
	return h, err
}

// BlockHash implements parentclient.Client.
func (c *Client) BlockHash(ctx context.Context, height uint64) (ipctypes.BlockHash, bool, error) {
	var out struct {
		Hash string `json:"hash"`
		Null bool   `json:"null"`
	}
	if err := c.call(ctx, "block_hash", []any{height}, &out); err != nil {
		return nil, false, err
	}
	if out.Null {
		return nil, true, nil
	}
	raw, err := hex.DecodeString(out.Hash)
	if err != nil {
		return nil, false, fmt.Errorf("rpcclient: decoding block hash: %w", err)
	}
	return ipctypes.BlockHash(raw), false, nil
}

// TopDownMsgs implements parentclient.Client. The wire shape is left
// abstract here: decoding cross-subnet message payloads into
// ipctypes.TopDownMessage requires the counterparty's actor ABI, which
// is out of this module's scope (§1 Non-goals); callers needing live
// values wire a concrete decoder at the RPC boundary.
func (c *Client) TopDownMsgs(ctx context.Context, child ipctypes.SubnetID, height uint64) ([]ipctypes.TopDownMessage, ipctypes.BlockHash, error) {
	var out struct {
		Messages  []ipctypes.TopDownMessage `json:"messages"`
		BlockHash string                    `json:"block_hash"`
	}
	if err := c.call(ctx, "top_down_msgs", []any{child.String(), height}, &out); err != nil {
		return nil, nil, err
	}
	hash, err := hex.DecodeString(out.BlockHash)
	if err != nil {
		return nil, nil, fmt.Errorf("rpcclient: decoding block hash: %w", err)
	}
	return out.Messages, ipctypes.BlockHash(hash), nil
}

// ValidatorChangeset implements parentclient.Client.
func (c *Client) ValidatorChangeset(ctx context.Context, child ipctypes.SubnetID, height uint64) ([]ipctypes.ValidatorChange, ipctypes.BlockHash, error) {
	var out struct {
		Changes   []ipctypes.ValidatorChange `json:"changes"`
		BlockHash string                     `json:"block_hash"`
	}
	if err := c.call(ctx, "validator_changeset", []any{child.String(), height}, &out); err != nil {
		return nil, nil, err
	}
	hash, err := hex.DecodeString(out.BlockHash)
	if err != nil {
		return nil, nil, fmt.Errorf("rpcclient: decoding block hash: %w", err)
	}
	return out.Changes, ipctypes.BlockHash(hash), nil
}

// LastBottomUpCheckpointHeight implements parentclient.Client.
func (c *Client) LastBottomUpCheckpointHeight(ctx context.Context, child ipctypes.SubnetID) (uint64, error) {
	var h uint64
	err := c.call(ctx, "last_bottom_up_checkpoint_height", []any{child.String()}, &h)
	return h, err
}

// SubmitCheckpoint implements parentclient.Client.
func (c *Client) SubmitCheckpoint(ctx context.Context, submitter ipctypes.Address, checkpoint ipctypes.BottomUpCheckpoint, signatures, signatories [][]byte) ([]byte, error) {
	sigHex := make([]string, len(signatures))
	for i, s := range signatures {
		sigHex[i] = hexBytes(s)
	}
	pkHex := make([]string, len(signatories))
	for i, s := range signatories {
		pkHex[i] = hexBytes(s)
	}
	var txHash string
	err := c.call(ctx, "submit_checkpoint", []any{submitter.String(), checkpoint, sigHex, pkHex}, &txHash)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(txHash)
}

// CurrentEpoch implements childclient.Client.
func (c *Client) CurrentEpoch(ctx context.Context) (uint64, error) {
	var h uint64
	err := c.call(ctx, "current_epoch", nil, &h)
	return h, err
}

// CheckpointPeriod implements childclient.Client.
func (c *Client) CheckpointPeriod(ctx context.Context, child ipctypes.SubnetID) (uint64, error) {
	var p uint64
	err := c.call(ctx, "checkpoint_period", []any{child.String()}, &p)
	return p, err
}

// QuorumReachedEvents implements childclient.Client.
func (c *Client) QuorumReachedEvents(ctx context.Context, height uint64) ([]ipctypes.QuorumEvent, error) {
	var events []ipctypes.QuorumEvent
	err := c.call(ctx, "quorum_reached_events", []any{height}, &events)
	return events, err
}

// CheckpointBundleAt implements childclient.Client.
func (c *Client) CheckpointBundleAt(ctx context.Context, height uint64) (ipctypes.BottomUpCheckpointBundle, bool, error) {
	var out struct {
		Bundle *ipctypes.BottomUpCheckpointBundle `json:"bundle"`
	}
	if err := c.call(ctx, "checkpoint_bundle_at", []any{height}, &out); err != nil {
		return ipctypes.BottomUpCheckpointBundle{}, false, err
	}
	if out.Bundle == nil {
		return ipctypes.BottomUpCheckpointBundle{}, false, nil
	}
	return *out.Bundle, true, nil
}

var _ parentclient.Client = (*Client)(nil)
var _ childclient.Client = (*Client)(nil)
