// Package chainid derives a subnet's numeric chain ID from its name,
// mirroring the well-known-name table plus FNV-1a hash fallback used
// throughout the Filecoin/IPC lineage.
package chainid

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
)

// MaxChainID is the largest value MetaMask and other Ethereum JS tooling
// can safely represent as a chain ID (see ethereum/EIPs#2294).
const MaxChainID = 4503599627370476

var knownChainIDs = map[uint64]string{
	0:        "",
	314:      "filecoin",
	3141:     "hyperspace",
	31415:    "wallaby",
	3141592:  "butterflynet",
	314159:   "calibnet",
	31415926: "devnet",
}

var knownChainNames = func() map[string]uint64 {
	m := make(map[string]uint64, len(knownChainIDs))
	for id, name := range knownChainIDs {
		m[name] = id
	}
	return m
}()

var rootRE = regexp.MustCompile(`^/r(0|[1-9]\d*)$`)

// ErrIllegalName is returned when hashing name happens to collide with one
// of the well-known chain IDs; the caller should pick a different name.
type ErrIllegalName struct {
	Name string
	ID   uint64
}

func (e *ErrIllegalName) Error() string {
	return fmt.Sprintf("chainid: illegal name %q hashes to reserved id %d", e.Name, e.ID)
}

// FromName derives a chain ID from a subnet name. Known names take
// priority; a bare root path like "/r42" yields its numeric root ID
// directly; anything else is folded through FNV-1a 64-bit and reduced
// modulo MaxChainID.
func FromName(name string) (uint64, error) {
	if id, ok := knownChainNames[name]; ok {
		return id, nil
	}
	if id, ok := justRootID(name); ok {
		return id, nil
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	id := h.Sum64() % MaxChainID
	if _, reserved := knownChainIDs[id]; reserved {
		return 0, &ErrIllegalName{Name: name, ID: id}
	}
	return id, nil
}

func justRootID(name string) (uint64, bool) {
	m := rootRE.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
