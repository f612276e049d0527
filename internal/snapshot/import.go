package snapshot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ipfs/go-cid"
	carutil "github.com/ipld/go-car/util"
)

// Offer is the manifest a peer advertises before transferring parts.
type Offer struct {
	Manifest    Manifest
	BlockHeight uint64
}

// Importer accumulates parts offered by a peer into a temp directory,
// validating part_index as they arrive, and finalizes once all parts are
// present. A temp directory owns the lifetime of its parts: Abort or a
// successful Finish both remove it.
type Importer struct {
	mu            sync.Mutex
	tmpDir        string
	offer         Offer
	nextExpected  uint32
	partPaths     []string
	wantHeight    uint64
	wantParams    StateParams
}

// NewImporter allocates a temp directory under baseDir and validates the
// offer's advertised (block_height, state_params) against what the
// caller expects to be importing.
func NewImporter(baseDir string, offer Offer, wantHeight uint64, wantParams StateParams) (*Importer, error) {
	if offer.Manifest.Version != ManifestVersion {
		return nil, &Error{Kind: ErrIncompatibleVersion, Reason: fmt.Sprintf("got version %d, want %d", offer.Manifest.Version, ManifestVersion)}
	}
	if offer.Manifest.BlockHeight != wantHeight || offer.Manifest.StateParams != wantParams {
		return nil, &Error{Kind: ErrIO, Reason: "offered manifest does not match the advertised snapshot identity"}
	}
	tmp, err := os.MkdirTemp(baseDir, "snapshot-import-*")
	if err != nil {
		return nil, &Error{Kind: ErrIO, Reason: err.Error()}
	}
	return &Importer{
		tmpDir:     tmp,
		offer:      offer,
		wantHeight: wantHeight,
		wantParams: wantParams,
	}, nil
}

// WritePart appends the next part. partIndex must equal the next
// expected index; anything else is rejected without consuming data.
func (imp *Importer) WritePart(partIndex uint32, r io.Reader) error {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	if partIndex != imp.nextExpected {
		return &Error{Kind: ErrUnexpectedChunk, Expected: imp.nextExpected, Got: partIndex}
	}

	path := filepath.Join(imp.tmpDir, fmt.Sprintf("part-%05d", partIndex))
	f, err := os.Create(path)
	if err != nil {
		return &Error{Kind: ErrIO, Reason: err.Error()}
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return &Error{Kind: ErrIO, Reason: err.Error()}
	}
	if err := f.Close(); err != nil {
		return &Error{Kind: ErrIO, Reason: err.Error()}
	}

	imp.partPaths = append(imp.partPaths, path)
	imp.nextExpected++
	return nil
}

// Complete reports whether every part named in the manifest has arrived.
func (imp *Importer) Complete() bool {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.nextExpected == imp.offer.Manifest.ChunksCount
}

// Finish verifies the checksum over all received parts, imports every
// block into store, then removes the temp directory. On checksum
// mismatch the temp directory is also removed (a failed import leaves no
// residue beyond whatever store.Put already absorbed, which is expected
// to be garbage-collected later per spec §4.4).
func (imp *Importer) Finish(ctx context.Context, store Blockstore) error {
	imp.mu.Lock()
	parts := append([]string(nil), imp.partPaths...)
	manifest := imp.offer.Manifest
	tmpDir := imp.tmpDir
	imp.mu.Unlock()

	if uint32(len(parts)) != manifest.ChunksCount {
		return &Error{Kind: ErrNoDownload, Reason: "Finish called before all parts arrived"}
	}

	checksum, _, err := ChecksumParts(parts)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return &Error{Kind: ErrIO, Reason: err.Error()}
	}
	if checksum != manifest.SHA256 {
		_ = os.RemoveAll(tmpDir)
		return &Error{Kind: ErrWrongChecksum, Expected: manifest.SHA256, Got: checksum}
	}

	combined := filepath.Join(tmpDir, "combined.car")
	if err := concatFiles(combined, parts); err != nil {
		_ = os.RemoveAll(tmpDir)
		return &Error{Kind: ErrIO, Reason: err.Error()}
	}

	if err := importBlocks(ctx, combined, store); err != nil {
		_ = os.RemoveAll(tmpDir)
		return &Error{Kind: ErrIO, Reason: err.Error()}
	}

	if err := removeIfExists(combined); err != nil {
		return &Error{Kind: ErrIO, Reason: err.Error()}
	}
	return os.RemoveAll(tmpDir)
}

// Abort discards all received parts.
func (imp *Importer) Abort() error {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	return os.RemoveAll(imp.tmpDir)
}

func concatFiles(dst string, parts []string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	for _, p := range parts {
		in, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// importBlocks reads the reassembled CAR archive (header, then a
// sequence of length-delimited (cid, data) frames) and imports every
// block into store.
func importBlocks(ctx context.Context, path string, store Blockstore) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if _, err := carutil.LdRead(br); err != nil { // header frame, discarded
		return fmt.Errorf("read car header: %w", err)
	}

	for {
		raw, err := carutil.LdRead(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read car frame: %w", err)
		}
		id, n, err := cid.CidFromBytes(raw)
		if err != nil {
			return fmt.Errorf("parse block cid: %w", err)
		}
		if err := store.Put(ctx, id, raw[n:]); err != nil {
			return fmt.Errorf("put block %s: %w", id, err)
		}
	}
}
