// Package keystore implements the small typed wallet/keystore trait of
// §9's design notes (get/list/put/remove/set_default/get_default) with
// one concrete backend: JSON files under a home directory, chmod 0600,
// per §6's persisted-state layout.
package keystore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

// ErrNotFound is returned when no key is stored for an address.
var ErrNotFound = errors.New("keystore: key not found")

// Backend is the dynamic-dispatch surface every keystore implementation
// satisfies; callers program against this, never a concrete type.
type Backend interface {
	Get(addr ipctypes.Address) (*btcec.PrivateKey, error)
	List() ([]ipctypes.Address, error)
	Put(addr ipctypes.Address, key *btcec.PrivateKey) error
	Remove(addr ipctypes.Address) error
	SetDefault(addr ipctypes.Address) error
	GetDefault() (ipctypes.Address, error)
}

type fileEntry struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key_hex"`
}

// FileBackend stores one JSON file per address under dir, plus a
// "default" file naming the default address.
type FileBackend struct {
	mu  sync.Mutex
	dir string
}

// New returns a FileBackend rooted at dir, creating it (mode 0700) if
// it does not exist.
func New(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("keystore: creating %s: %w", dir, err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(addr ipctypes.Address) string {
	return filepath.Join(b.dir, addr.String()+".json")
}

func (b *FileBackend) defaultPath() string {
	return filepath.Join(b.dir, "default")
}

// Get loads the private key stored for addr.
func (b *FileBackend) Get(addr ipctypes.Address) (*btcec.PrivateKey, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	raw, err := os.ReadFile(b.path(addr))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: reading %s: %w", addr, err)
	}
	var e fileEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("keystore: decoding %s: %w", addr, err)
	}
	keyBytes, err := hex.DecodeString(e.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("keystore: decoding key for %s: %w", addr, err)
	}
	priv, _ := btcec.PrivKeyFromBytes(keyBytes)
	return priv, nil
}

// List returns every address with a stored key.
func (b *FileBackend) List() ([]ipctypes.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("keystore: listing %s: %w", b.dir, err)
	}
	var out []ipctypes.Address
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(b.dir, e.Name()))
		if err != nil {
			continue
		}
		var fe fileEntry
		if err := json.Unmarshal(raw, &fe); err != nil {
			continue
		}
		addr, err := ipctypes.ParseAddress(fe.Address)
		if err != nil {
			continue
		}
		out = append(out, addr)
	}
	return out, nil
}

// Put writes key under addr, chmod 0600.
func (b *FileBackend) Put(addr ipctypes.Address, key *btcec.PrivateKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := fileEntry{Address: addr.String(), PrivateKey: hex.EncodeToString(key.Serialize())}
	raw, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("keystore: encoding %s: %w", addr, err)
	}
	if err := os.WriteFile(b.path(addr), raw, 0600); err != nil {
		return fmt.Errorf("keystore: writing %s: %w", addr, err)
	}
	return nil
}

// Remove deletes the stored key for addr, if any.
func (b *FileBackend) Remove(addr ipctypes.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(b.path(addr)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("keystore: removing %s: %w", addr, err)
	}
	return nil
}

// SetDefault records addr as the default signing key.
func (b *FileBackend) SetDefault(addr ipctypes.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.WriteFile(b.defaultPath(), []byte(addr.String()), 0600); err != nil {
		return fmt.Errorf("keystore: setting default: %w", err)
	}
	return nil
}

// GetDefault returns the current default signing address.
func (b *FileBackend) GetDefault() (ipctypes.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	raw, err := os.ReadFile(b.defaultPath())
	if errors.Is(err, os.ErrNotExist) {
		return ipctypes.Address{}, ErrNotFound
	}
	if err != nil {
		return ipctypes.Address{}, fmt.Errorf("keystore: reading default: %w", err)
	}
	return ipctypes.ParseAddress(string(raw))
}

var _ Backend = (*FileBackend)(nil)
