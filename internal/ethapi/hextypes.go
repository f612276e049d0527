package ethapi

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// HexUint64 (de)serializes as the "0x"-prefixed quantity every Ethereum
// JSON-RPC method expects, instead of a bare JSON number.
type HexUint64 uint64

func (h HexUint64) MarshalJSON() ([]byte, error) {
	return json.Marshal(hexUint64(uint64(h)))
}

func (h *HexUint64) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("ethapi: hex quantity must be a string: %w", err)
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return fmt.Errorf("ethapi: malformed hex quantity %q: %w", s, err)
	}
	*h = HexUint64(v)
	return nil
}

// HexAddress (de)serializes a 20-byte address as "0x"-prefixed hex.
type HexAddress [20]byte

func (a HexAddress) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(a[:]))
}

func (a *HexAddress) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(raw) != 20 {
		return fmt.Errorf("ethapi: malformed address %q", s)
	}
	copy(a[:], raw)
	return nil
}

// HexBytes (de)serializes arbitrary calldata as "0x"-prefixed hex.
type HexBytes []byte

func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(b))
}

func (b *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return fmt.Errorf("ethapi: malformed hex data %q", s)
	}
	*b = raw
	return nil
}
