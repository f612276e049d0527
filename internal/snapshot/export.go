package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/ipfs/go-cid"
	carv2 "github.com/ipld/go-car"
)

// Blockstore is the minimal read surface the exporter and importer need;
// the transactional KV (C2) backs the production implementation.
type Blockstore interface {
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Put(ctx context.Context, id cid.Cid, data []byte) error
}

// Walker enumerates every block reachable from root, in a deterministic
// order, feeding the exporter without holding the whole archive in
// memory at once.
type Walker func(ctx context.Context, root cid.Cid, visit func(cid.Cid, []byte) error) error

// Export writes a chunked content-archive for root into dir (which must
// already exist and be empty), then writes its manifest.
func Export(ctx context.Context, store Blockstore, walk Walker, root cid.Cid, dir string, height uint64, params StateParams, targetPartSize int64) (Manifest, error) {
	header := &carv2.CarHeader{Roots: []cid.Cid{root}, Version: 1}
	var headerBuf bytes.Buffer
	if err := carv2.WriteHeader(header, &headerBuf); err != nil {
		return Manifest{}, &Error{Kind: ErrIO, Reason: fmt.Sprintf("encode car header: %v", err)}
	}

	ch := NewChunker(dir, targetPartSize)
	if err := ch.WriteHeader(headerBuf.Bytes()); err != nil {
		return Manifest{}, &Error{Kind: ErrIO, Reason: err.Error()}
	}

	walkErr := walk(ctx, root, func(id cid.Cid, data []byte) error {
		return ch.WriteBlock(id, data)
	})
	parts, closeErr := ch.Close()
	if walkErr != nil {
		return Manifest{}, &Error{Kind: ErrIO, Reason: fmt.Sprintf("walk blockstore: %v", walkErr)}
	}
	if closeErr != nil {
		return Manifest{}, &Error{Kind: ErrIO, Reason: closeErr.Error()}
	}

	checksum, size, err := ChecksumParts(parts)
	if err != nil {
		return Manifest{}, &Error{Kind: ErrIO, Reason: err.Error()}
	}

	m := Manifest{
		BlockHeight: height,
		SizeBytes:   size,
		ChunksCount: uint32(len(parts)),
		SHA256:      checksum,
		StateParams: params,
		Version:     ManifestVersion,
	}
	if err := WriteManifest(dir, m); err != nil {
		return Manifest{}, &Error{Kind: ErrIO, Reason: err.Error()}
	}
	return m, nil
}

// removeIfExists is used by the importer to clean up the combined archive
// once its blocks have been absorbed into the blockstore.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
