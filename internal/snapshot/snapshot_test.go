package snapshot

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

type memStore struct {
	blocks map[string][]byte
}

func newMemStore() *memStore { return &memStore{blocks: make(map[string][]byte)} }

func (m *memStore) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	return m.blocks[id.String()], nil
}

func (m *memStore) Put(ctx context.Context, id cid.Cid, data []byte) error {
	m.blocks[id.String()] = append([]byte(nil), data...)
	return nil
}

func blockCID(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	hash, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return cid.NewCidV1(cid.Raw, hash)
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newMemStore()
	blocksData := [][]byte{
		bytes.Repeat([]byte("a"), 100),
		bytes.Repeat([]byte("b"), 100),
		bytes.Repeat([]byte("c"), 100),
	}
	var ids []cid.Cid
	for _, d := range blocksData {
		id := blockCID(t, d)
		ids = append(ids, id)
		if err := src.Put(context.Background(), id, d); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	root := ids[0]

	walker := func(ctx context.Context, root cid.Cid, visit func(cid.Cid, []byte) error) error {
		for i, id := range ids {
			if err := visit(id, blocksData[i]); err != nil {
				return err
			}
		}
		return nil
	}

	exportDir := t.TempDir()
	params := StateParams{StateRoot: root.String(), ChainID: 314159}
	manifest, err := Export(context.Background(), src, walker, root, exportDir, 42, params, 64)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if manifest.ChunksCount < 2 {
		t.Fatalf("expected export to split into multiple parts with a 64-byte target, got %d", manifest.ChunksCount)
	}

	readBack, err := ReadManifest(exportDir)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if readBack.SHA256 != manifest.SHA256 {
		t.Fatalf("manifest checksum mismatch after round trip")
	}

	importBase := t.TempDir()
	imp, err := NewImporter(importBase, Offer{Manifest: manifest}, 42, params)
	if err != nil {
		t.Fatalf("new importer: %v", err)
	}

	for i := uint32(0); i < manifest.ChunksCount; i++ {
		path := partPath(t, exportDir, i)
		f, err := os.Open(path)
		if err != nil {
			t.Fatalf("open part %d: %v", i, err)
		}
		err = imp.WritePart(i, f)
		f.Close()
		if err != nil {
			t.Fatalf("write part %d: %v", i, err)
		}
	}
	if !imp.Complete() {
		t.Fatalf("importer should be complete after all parts")
	}

	dst := newMemStore()
	if err := imp.Finish(context.Background(), dst); err != nil {
		t.Fatalf("finish: %v", err)
	}

	for i, id := range ids {
		got, err := dst.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if !bytes.Equal(got, blocksData[i]) {
			t.Fatalf("block %s mismatch after import", id)
		}
	}
}

func TestImportRejectsOutOfOrderChunk(t *testing.T) {
	manifest := Manifest{BlockHeight: 1, ChunksCount: 2, Version: ManifestVersion}
	imp, err := NewImporter(t.TempDir(), Offer{Manifest: manifest}, 1, StateParams{})
	if err != nil {
		t.Fatalf("new importer: %v", err)
	}
	err = imp.WritePart(1, bytes.NewReader(nil))
	snapErr, ok := err.(*Error)
	if !ok || snapErr.Kind != ErrUnexpectedChunk {
		t.Fatalf("want ErrUnexpectedChunk, got %v", err)
	}
}

func TestImportRejectsWrongChecksum(t *testing.T) {
	manifest := Manifest{BlockHeight: 1, ChunksCount: 1, SHA256: "deadbeef", Version: ManifestVersion}
	imp, err := NewImporter(t.TempDir(), Offer{Manifest: manifest}, 1, StateParams{})
	if err != nil {
		t.Fatalf("new importer: %v", err)
	}
	if err := imp.WritePart(0, bytes.NewReader([]byte("not the right bytes"))); err != nil {
		t.Fatalf("write part: %v", err)
	}
	err = imp.Finish(context.Background(), newMemStore())
	snapErr, ok := err.(*Error)
	if !ok || snapErr.Kind != ErrWrongChecksum {
		t.Fatalf("want ErrWrongChecksum, got %v", err)
	}
}

func partPath(t *testing.T, dir string, index uint32) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name() != manifestFileName {
			names = append(names, e.Name())
		}
	}
	if int(index) >= len(names) {
		t.Fatalf("no part at index %d (have %d parts)", index, len(names))
	}
	return dir + string(os.PathSeparator) + sortedPartName(names, index)
}

func sortedPartName(names []string, index uint32) string {
	// Part files are named part-00000, part-00001, ... which sorts
	// lexicographically in index order.
	simpleSort(names)
	return names[index]
}

func simpleSort(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
