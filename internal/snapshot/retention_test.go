package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestManifest(t *testing.T, dir string, height uint64) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	m := Manifest{BlockHeight: height, ChunksCount: 1, SHA256: "deadbeef", Version: ManifestVersion}
	if err := WriteManifest(dir, m); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	part := filepath.Join(dir, partFileName(0))
	if err := os.WriteFile(part, []byte("chunk-0"), 0o644); err != nil {
		t.Fatalf("write part: %v", err)
	}
}

func TestLoadStoreSkipsNonSnapshotDirs(t *testing.T) {
	base := t.TempDir()
	writeTestManifest(t, filepath.Join(base, "snap-100"), 100)
	if err := os.MkdirAll(filepath.Join(base, "tmp-download"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	s, err := LoadStore(base)
	if err != nil {
		t.Fatalf("LoadStore: %v", err)
	}
	items := s.List()
	if len(items) != 1 || items[0].Manifest.BlockHeight != 100 {
		t.Fatalf("expected one snapshot at height 100, got %+v", items)
	}
}

func TestLoadStoreMissingBaseIsEmpty(t *testing.T) {
	s, err := LoadStore(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("LoadStore: %v", err)
	}
	if len(s.List()) != 0 {
		t.Fatalf("expected no snapshots")
	}
}

func TestAccessMarksLastAccessAndLoadChunkReadsData(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "snap-200")
	writeTestManifest(t, dir, 200)

	s, err := LoadStore(base)
	if err != nil {
		t.Fatalf("LoadStore: %v", err)
	}

	item, ok := s.Access(200)
	if !ok {
		t.Fatalf("expected to find snapshot at height 200")
	}
	data, err := item.LoadChunk(0)
	if err != nil {
		t.Fatalf("LoadChunk: %v", err)
	}
	if string(data) != "chunk-0" {
		t.Fatalf("got %q", data)
	}

	if _, err := item.LoadChunk(1); err == nil {
		t.Fatalf("expected out-of-range chunk to error")
	}

	if _, ok := s.Access(999); ok {
		t.Fatalf("expected no snapshot at height 999")
	}
}

func TestPruneRetainCount(t *testing.T) {
	base := t.TempDir()
	heights := []uint64{10, 20, 30, 40}
	for _, h := range heights {
		writeTestManifest(t, filepath.Join(base, fmt.Sprintf("snap-%d", h)), h)
	}
	s, err := LoadStore(base)
	if err != nil {
		t.Fatalf("LoadStore: %v", err)
	}

	removed, err := s.Prune(2, 0, time.Now())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed, got %d: %v", len(removed), removed)
	}

	remaining := s.List()
	if len(remaining) != 2 || remaining[0].Manifest.BlockHeight != 40 || remaining[1].Manifest.BlockHeight != 30 {
		t.Fatalf("expected heights 40,30 to survive, got %+v", remaining)
	}
	for _, dir := range removed {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be deleted from disk", dir)
		}
	}
}

func TestPruneMaxAge(t *testing.T) {
	base := t.TempDir()
	writeTestManifest(t, filepath.Join(base, "old"), 10)
	writeTestManifest(t, filepath.Join(base, "new"), 20)

	s, err := LoadStore(base)
	if err != nil {
		t.Fatalf("LoadStore: %v", err)
	}

	// Make the older snapshot look stale relative to now by pruning with a
	// maxAge shorter than the gap we construct below.
	now := time.Now()
	s.mu.Lock()
	for i := range s.items {
		if s.items[i].Manifest.BlockHeight == 10 {
			s.items[i].LastAccess = now.Add(-2 * time.Hour)
		} else {
			s.items[i].LastAccess = now
		}
	}
	s.mu.Unlock()

	removed, err := s.Prune(0, time.Hour, now)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(removed) != 1 {
		t.Fatalf("expected 1 removed, got %d: %v", len(removed), removed)
	}
	remaining := s.List()
	if len(remaining) != 1 || remaining[0].Manifest.BlockHeight != 20 {
		t.Fatalf("expected height 20 to survive, got %+v", remaining)
	}
}

func TestPruneProtectsMostRecentlyAccessedEvenIfOldOrBeyondCount(t *testing.T) {
	base := t.TempDir()
	writeTestManifest(t, filepath.Join(base, "a"), 10)
	writeTestManifest(t, filepath.Join(base, "b"), 20)
	writeTestManifest(t, filepath.Join(base, "c"), 30)

	s, err := LoadStore(base)
	if err != nil {
		t.Fatalf("LoadStore: %v", err)
	}

	now := time.Now()
	s.mu.Lock()
	for i := range s.items {
		switch s.items[i].Manifest.BlockHeight {
		case 10:
			s.items[i].LastAccess = now // most recently accessed, despite lowest height
		case 20:
			s.items[i].LastAccess = now.Add(-3 * time.Hour)
		case 30:
			s.items[i].LastAccess = now.Add(-3 * time.Hour)
		}
	}
	s.mu.Unlock()

	// retainCount=1 would normally keep only the highest height (30); maxAge
	// would also normally evict everything accessed over an hour ago. Height
	// 10 must still survive because it is the most recently accessed.
	removed, err := s.Prune(1, time.Hour, now)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	remaining := s.List()

	survives := func(h uint64) bool {
		for _, it := range remaining {
			if it.Manifest.BlockHeight == h {
				return true
			}
		}
		return false
	}
	if !survives(10) {
		t.Fatalf("expected most-recently-accessed height 10 to survive, remaining=%+v removed=%v", remaining, removed)
	}
	if survives(20) || survives(30) {
		t.Fatalf("expected heights 20 and 30 to be pruned, remaining=%+v", remaining)
	}
}
