package resolver

import (
	"context"
	"time"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipclog"
)

var log = ipclog.New("resolver")

// Fetcher starts an asynchronous fetch of the content named by key against
// the given subnet, returning once it succeeds or the context is done.
// Implementations typically dial a content-addressed transport (bitswap,
// IPFS HTTP gateway, etc.); none of that belongs to this package.
type Fetcher interface {
	Fetch(ctx context.Context, subnetID string, key Key) error
}

// WorkerConfig tunes the resolver worker loop.
type WorkerConfig struct {
	// RetryDelay is how long a worker waits before re-enqueuing a task
	// whose fetches all failed.
	RetryDelay time.Duration
	// LocalSubnetID is used for the "use_own_subnet" fallback fetch when
	// Directory is nil or has no live record for this node.
	LocalSubnetID string
	// Directory, when set, supplies the real set of subnets this node
	// currently provides (from gossiped provider records) for the
	// "use_own_subnet" fallback, in place of the single hardcoded
	// LocalSubnetID.
	Directory *ProviderDirectory
}

// ownSubnets returns the subnets a "use_own_subnet" fallback should try,
// preferring the live set from gossiped provider records over the static
// LocalSubnetID fallback.
func (cfg WorkerConfig) ownSubnets() []string {
	if cfg.Directory != nil {
		if self := cfg.Directory.Self(); len(self) > 0 {
			return self
		}
	}
	if cfg.LocalSubnetID != "" {
		return []string{cfg.LocalSubnetID}
	}
	return nil
}

// RunWorker drains tasks from pool until ctx is done or the pool closes.
// For each task it starts a fetch against the task's subnet and, if
// UseOwnSubnet is set, a second fetch against the local subnet; if either
// succeeds the key is marked resolved, otherwise the task is requeued
// after cfg.RetryDelay.
//
// A failure to obtain the next task (the pool has been closed and
// drained) ends the worker; this is not an error; it simply means the
// producer side has gone away.
func RunWorker(ctx context.Context, pool *Pool[any], fetcher Fetcher, cfg WorkerConfig) {
	for {
		task, ok := pool.Next()
		if !ok {
			return
		}
		if ctx.Err() != nil {
			return
		}
		resolveOne(ctx, pool, fetcher, cfg, task)
	}
}

func resolveOne(ctx context.Context, pool *Pool[any], fetcher Fetcher, cfg WorkerConfig, task Task[any]) {
	type result struct {
		err error
	}

	targets := []string{task.Key.SubnetID}
	if task.UseOwnSubnet {
		for _, s := range cfg.ownSubnets() {
			if s == "" || s == task.Key.SubnetID {
				continue
			}
			targets = append(targets, s)
		}
	}

	results := make(chan result, len(targets))
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, subnet := range targets {
		subnet := subnet
		go func() {
			results <- result{err: fetcher.Fetch(fetchCtx, subnet, task.Key)}
		}()
	}

	succeeded := false
	for range targets {
		r := <-results
		if r.err == nil {
			succeeded = true
		}
	}

	if succeeded {
		pool.MarkResolved(task.Key)
		return
	}

	log.Debug("resolve attempt failed on all targets, will retry",
		"subnet_id", task.Key.SubnetID, "content_id", task.Key.ContentID)

	select {
	case <-time.After(cfg.RetryDelay):
		pool.Requeue(task.Key)
	case <-ctx.Done():
	}
}
