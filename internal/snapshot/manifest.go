// Package snapshot implements C4: exporting the blockstore reachable from
// a state root into a chunked content-archive, and importing one offered
// by a peer back into the local blockstore.
package snapshot

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// StateParams are the execution-layer parameters captured alongside the
// state root at export time, needed to resume execution after import.
type StateParams struct {
	StateRoot      string `json:"state_root"`
	Timestamp      int64  `json:"timestamp"`
	NetworkVersion uint64 `json:"network_version"`
	BaseFee        string `json:"base_fee"`
	CircSupply     string `json:"circ_supply"`
	ChainID        uint64 `json:"chain_id"`
	PowerScale     int8   `json:"power_scale"`
	AppVersion     uint64 `json:"app_version"`
}

// ManifestVersion is the on-disk manifest schema version.
const ManifestVersion = 1

// Manifest describes a completed snapshot: its parts, their combined
// size and checksum, and the execution parameters it was taken at.
type Manifest struct {
	BlockHeight uint64      `json:"block_height"`
	SizeBytes   uint64      `json:"size_bytes"`
	ChunksCount uint32      `json:"chunks_count"`
	SHA256      string      `json:"sha256_checksum"`
	StateParams StateParams `json:"state_params"`
	Version     int         `json:"version"`
}

const manifestFileName = "manifest.json"

// WriteManifest serializes m as JSON into dir/manifest.json.
func WriteManifest(dir string, m Manifest) error {
	f, err := os.Create(filepath.Join(dir, manifestFileName))
	if err != nil {
		return fmt.Errorf("snapshot: create manifest: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// ReadManifest loads dir/manifest.json.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	f, err := os.Open(filepath.Join(dir, manifestFileName))
	if err != nil {
		return m, fmt.Errorf("snapshot: open manifest: %w", err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return m, fmt.Errorf("snapshot: decode manifest: %w", err)
	}
	return m, nil
}

// ChecksumParts computes sha256 over the concatenation of parts (in
// index order), matching how the manifest's SHA256 field is derived.
func ChecksumParts(partPaths []string) (string, uint64, error) {
	h := sha256.New()
	var total uint64
	for _, p := range partPaths {
		f, err := os.Open(p)
		if err != nil {
			return "", 0, fmt.Errorf("snapshot: open part %s: %w", p, err)
		}
		n, err := io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", 0, fmt.Errorf("snapshot: hash part %s: %w", p, err)
		}
		total += uint64(n)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), total, nil
}
