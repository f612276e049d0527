package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

type fakeGateway struct {
	incomplete []ipctypes.BottomUpCheckpoint
	gas        uint64
	gasErr     error
}

func (g *fakeGateway) IncompleteCheckpoints(ctx context.Context, key []byte) ([]ipctypes.BottomUpCheckpoint, error) {
	return g.incomplete, nil
}

func (g *fakeGateway) EstimateSignatureGas(ctx context.Context, ck ipctypes.BottomUpCheckpoint) (uint64, error) {
	return g.gas, g.gasErr
}

type fakeSigner struct{}

func (fakeSigner) Sign(ck ipctypes.BottomUpCheckpoint) (ipctypes.Signature, error) {
	return ipctypes.Signature{}, nil
}
func (fakeSigner) PublicKey() []byte { return []byte("validator-key") }

type fakeMempool struct {
	submissions []ipctypes.BlockHeight
	errs        map[ipctypes.BlockHeight][]error // sequence of errors to return before success
	calls       map[ipctypes.BlockHeight]int
}

func (m *fakeMempool) BroadcastSync(ctx context.Context, ck ipctypes.BottomUpCheckpoint, sig ipctypes.Signature, gasLimit uint64) error {
	if m.calls == nil {
		m.calls = make(map[ipctypes.BlockHeight]int)
	}
	idx := m.calls[ck.BlockHeight]
	m.calls[ck.BlockHeight]++
	if errs, ok := m.errs[ck.BlockHeight]; ok && idx < len(errs) {
		return errs[idx]
	}
	m.submissions = append(m.submissions, ck.BlockHeight)
	return nil
}

func TestEndBlockNoOpWhileCatchingUp(t *testing.T) {
	gw := &fakeGateway{incomplete: []ipctypes.BottomUpCheckpoint{{BlockHeight: 5}}}
	mp := &fakeMempool{}
	b := New(Config{GasOverestimationRate: 1.2, MaxRetries: 2, RetryDelay: time.Millisecond}, gw, fakeSigner{}, mp)

	if err := b.EndBlock(context.Background(), true, ipctypes.BottomUpCheckpoint{BlockHeight: 5}); err != nil {
		t.Fatalf("end_block: %v", err)
	}
	if len(mp.submissions) != 0 {
		t.Fatalf("should not submit anything while catching up")
	}
}

func TestEndBlockSubmitsIncompleteSet(t *testing.T) {
	ck := ipctypes.BottomUpCheckpoint{BlockHeight: 5}
	gw := &fakeGateway{incomplete: []ipctypes.BottomUpCheckpoint{ck, {BlockHeight: 6}}, gas: 1000}
	mp := &fakeMempool{}
	b := New(Config{GasOverestimationRate: 1.2, MaxRetries: 2, RetryDelay: time.Millisecond}, gw, fakeSigner{}, mp)

	if err := b.EndBlock(context.Background(), false, ck); err != nil {
		t.Fatalf("end_block: %v", err)
	}
	if len(mp.submissions) != 2 {
		t.Fatalf("expected both incomplete checkpoints submitted, got %v", mp.submissions)
	}
}

func TestEndBlockRejectsMissingCurrentCheckpoint(t *testing.T) {
	gw := &fakeGateway{incomplete: []ipctypes.BottomUpCheckpoint{{BlockHeight: 6}}}
	mp := &fakeMempool{}
	b := New(Config{GasOverestimationRate: 1.2, MaxRetries: 2, RetryDelay: time.Millisecond}, gw, fakeSigner{}, mp)

	err := b.EndBlock(context.Background(), false, ipctypes.BottomUpCheckpoint{BlockHeight: 5})
	if err == nil {
		t.Fatalf("expected invariant violation error when current checkpoint is absent from incomplete set")
	}
}

func TestSubmitRetriesOnlyOnNonceRace(t *testing.T) {
	ck := ipctypes.BottomUpCheckpoint{BlockHeight: 5}
	gw := &fakeGateway{incomplete: []ipctypes.BottomUpCheckpoint{ck}, gas: 1000}
	mp := &fakeMempool{errs: map[ipctypes.BlockHeight][]error{
		5: {&SubmitError{Code: CodeNonceRace, Err: errors.New("nonce race")}},
	}}
	b := New(Config{GasOverestimationRate: 1.2, MaxRetries: 2, RetryDelay: time.Millisecond}, gw, fakeSigner{}, mp)

	if err := b.EndBlock(context.Background(), false, ck); err != nil {
		t.Fatalf("expected eventual success after one nonce-race retry: %v", err)
	}
	if mp.calls[5] != 2 {
		t.Fatalf("expected 2 broadcast attempts, got %d", mp.calls[5])
	}
}

func TestSubmitFailsFastOnSenderInvalid(t *testing.T) {
	ck := ipctypes.BottomUpCheckpoint{BlockHeight: 5}
	gw := &fakeGateway{incomplete: []ipctypes.BottomUpCheckpoint{ck}, gas: 1000}
	mp := &fakeMempool{errs: map[ipctypes.BlockHeight][]error{
		5: {&SubmitError{Code: CodeSenderInvalid, Err: errors.New("invalid sender")}},
	}}
	b := New(Config{GasOverestimationRate: 1.2, MaxRetries: 5, RetryDelay: time.Millisecond}, gw, fakeSigner{}, mp)

	err := b.EndBlock(context.Background(), false, ck)
	if err == nil {
		t.Fatalf("expected fail-fast error")
	}
	if mp.calls[5] != 1 {
		t.Fatalf("expected exactly 1 attempt (no retry on sender-invalid), got %d", mp.calls[5])
	}
}

func TestSubmitAbortsOnGasEstimationFailure(t *testing.T) {
	ck := ipctypes.BottomUpCheckpoint{BlockHeight: 5}
	gw := &fakeGateway{incomplete: []ipctypes.BottomUpCheckpoint{ck}, gasErr: errors.New("estimation failed")}
	mp := &fakeMempool{}
	b := New(Config{GasOverestimationRate: 1.2, MaxRetries: 2, RetryDelay: time.Millisecond}, gw, fakeSigner{}, mp)

	if err := b.EndBlock(context.Background(), false, ck); err == nil {
		t.Fatalf("expected gas estimation failure to abort submission")
	}
	if len(mp.submissions) != 0 {
		t.Fatalf("should not broadcast after gas estimation failure")
	}
}
