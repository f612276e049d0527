// Package checkpoint implements C9, the checkpoint broadcaster: a
// validator-only end_block hook that signs and submits the node's
// outstanding, not-yet-signed bottom-up checkpoints to the BFT mempool.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipclog"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

var log = ipclog.New("checkpoint")

// Code classifies a submission failure; only CodeNonceRace is transient.
type Code int

const (
	CodeUnknown Code = iota
	CodeNonceRace
	CodeSenderInvalid
	CodeInsufficientFunds
	CodeOutOfGas
)

// SubmitError wraps a submission failure with its classified code.
type SubmitError struct {
	Code Code
	Err  error
}

func (e *SubmitError) Error() string { return e.Err.Error() }
func (e *SubmitError) Unwrap() error { return e.Err }

// Gateway is the gateway-contract collaborator.
type Gateway interface {
	IncompleteCheckpoints(ctx context.Context, validatorKey []byte) ([]ipctypes.BottomUpCheckpoint, error)
	EstimateSignatureGas(ctx context.Context, checkpoint ipctypes.BottomUpCheckpoint) (uint64, error)
}

// Signer produces a signature over a checkpoint's canonical hash.
type Signer interface {
	Sign(checkpoint ipctypes.BottomUpCheckpoint) (ipctypes.Signature, error)
	PublicKey() []byte
}

// Mempool accepts a signed checkpoint submission in sync mode (await
// check-tx, don't await inclusion).
type Mempool interface {
	BroadcastSync(ctx context.Context, checkpoint ipctypes.BottomUpCheckpoint, sig ipctypes.Signature, gasLimit uint64) error
}

// Config tunes retry behavior.
type Config struct {
	GasOverestimationRate float64 // e.g. 1.2 for +20%
	MaxRetries            int
	RetryDelay            time.Duration
}

// Broadcaster drives the C9 end_block hook.
type Broadcaster struct {
	cfg     Config
	gateway Gateway
	signer  Signer
	mempool Mempool
}

// New returns a broadcaster.
func New(cfg Config, gateway Gateway, signer Signer, mempool Mempool) *Broadcaster {
	return &Broadcaster{cfg: cfg, gateway: gateway, signer: signer, mempool: mempool}
}

// EndBlock is the per-block hook. current is the checkpoint just formed
// at this height, asserted (as a debug invariant) to be present among the
// gateway's reported incomplete checkpoints. If catchingUp, the hook is
// a no-op: resubmitting historical signatures while catching up would
// just waste mempool bandwidth.
func (b *Broadcaster) EndBlock(ctx context.Context, catchingUp bool, current ipctypes.BottomUpCheckpoint) error {
	if catchingUp {
		return nil
	}

	incomplete, err := b.gateway.IncompleteCheckpoints(ctx, b.signer.PublicKey())
	if err != nil {
		return fmt.Errorf("checkpoint: query incomplete checkpoints: %w", err)
	}

	if !containsIdentity(incomplete, current) {
		return fmt.Errorf("checkpoint: invariant violated: current checkpoint (%s, %d) missing from incomplete set",
			current.SubnetID, current.BlockHeight)
	}

	var firstErr error
	for _, ck := range incomplete {
		if err := b.submitOne(ctx, ck); err != nil {
			log.Warn("checkpoint submission failed", "height", ck.BlockHeight, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func containsIdentity(set []ipctypes.BottomUpCheckpoint, ck ipctypes.BottomUpCheckpoint) bool {
	wantSubnet, wantHeight := ck.Identity()
	for _, c := range set {
		if subnet, height := c.Identity(); subnet.Equal(wantSubnet) && height == wantHeight {
			return true
		}
	}
	return false
}

func (b *Broadcaster) submitOne(ctx context.Context, ck ipctypes.BottomUpCheckpoint) error {
	gas, err := b.gateway.EstimateSignatureGas(ctx, ck)
	if err != nil {
		return fmt.Errorf("checkpoint: estimate gas: %w", err)
	}
	gasLimit := uint64(float64(gas) * b.cfg.GasOverestimationRate)

	sig, err := b.signer.Sign(ck)
	if err != nil {
		return fmt.Errorf("checkpoint: sign: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		lastErr = b.mempool.BroadcastSync(ctx, ck, sig, gasLimit)
		if lastErr == nil {
			return nil
		}
		var subErr *SubmitError
		if !errors.As(lastErr, &subErr) || subErr.Code != CodeNonceRace {
			return lastErr // fail fast on non-transient codes
		}
		select {
		case <-time.After(b.cfg.RetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
