package evmconv

import (
	"errors"
	"math/big"
)

// ErrMalformedRLP is returned when raw transaction bytes cannot be parsed
// as a well-formed RLP item.
var ErrMalformedRLP = errors.New("evmconv: malformed rlp")

// rlpReadItem reads one RLP item (string or list) from the front of data,
// returning whether it is a list, its payload, and the remaining bytes.
func rlpReadItem(data []byte) (isList bool, payload []byte, rest []byte, err error) {
	if len(data) == 0 {
		return false, nil, nil, ErrMalformedRLP
	}
	b := data[0]
	switch {
	case b < 0x80:
		return false, data[:1], data[1:], nil
	case b < 0xb8:
		n := int(b - 0x80)
		if len(data) < 1+n {
			return false, nil, nil, ErrMalformedRLP
		}
		return false, data[1 : 1+n], data[1+n:], nil
	case b < 0xc0:
		lenOfLen := int(b - 0xb7)
		if len(data) < 1+lenOfLen {
			return false, nil, nil, ErrMalformedRLP
		}
		n := int(beUint(data[1 : 1+lenOfLen]))
		start := 1 + lenOfLen
		if len(data) < start+n {
			return false, nil, nil, ErrMalformedRLP
		}
		return false, data[start : start+n], data[start+n:], nil
	case b < 0xf8:
		n := int(b - 0xc0)
		if len(data) < 1+n {
			return true, nil, nil, ErrMalformedRLP
		}
		return true, data[1 : 1+n], data[1+n:], nil
	default:
		lenOfLen := int(b - 0xf7)
		if len(data) < 1+lenOfLen {
			return true, nil, nil, ErrMalformedRLP
		}
		n := int(beUint(data[1 : 1+lenOfLen]))
		start := 1 + lenOfLen
		if len(data) < start+n {
			return true, nil, nil, ErrMalformedRLP
		}
		return true, data[start : start+n], data[start+n:], nil
	}
}

func beUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// rlpDecodeTopLevelList splits a list's payload into its top-level items'
// raw byte strings, without recursing into nested lists (the one nested
// list the 1559 envelope carries, the access list, is never populated by
// this facade and its raw bytes are simply discarded by the caller).
func rlpDecodeTopLevelList(payload []byte) ([][]byte, error) {
	var items [][]byte
	for len(payload) > 0 {
		_, item, rest, err := rlpReadItem(payload)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		payload = rest
	}
	return items, nil
}

// DecodeEthTx1559 parses the canonical EIP-1559 signed transaction
// envelope produced by signedRLP: 0x02 || rlp([chainId, nonce,
// maxPriorityFeePerGas, maxFeePerGas, gasLimit, to, value, data,
// accessList, yParity, r, s]).
func DecodeEthTx1559(raw []byte) (EthTx1559, error) {
	if len(raw) == 0 || raw[0] != 0x02 {
		return EthTx1559{}, ErrMalformedRLP
	}
	isList, payload, rest, err := rlpReadItem(raw[1:])
	if err != nil || !isList || len(rest) != 0 {
		return EthTx1559{}, ErrMalformedRLP
	}
	items, err := rlpDecodeTopLevelList(payload)
	if err != nil || len(items) != 12 {
		return EthTx1559{}, ErrMalformedRLP
	}

	tx := EthTx1559{
		ChainID:              beUint(items[0]),
		Nonce:                beUint(items[1]),
		MaxPriorityFeePerGas: new(big.Int).SetBytes(items[2]),
		MaxFeePerGas:         new(big.Int).SetBytes(items[3]),
		GasLimit:             beUint(items[4]),
		Value:                new(big.Int).SetBytes(items[6]),
		Data:                 append([]byte(nil), items[7]...),
	}
	if len(items[5]) == 20 {
		var to [20]byte
		copy(to[:], items[5])
		tx.To = &to
	}
	tx.Signature.V = byte(beUint(items[9]))
	copy(tx.Signature.R[32-len(items[10]):], items[10])
	copy(tx.Signature.S[32-len(items[11]):], items[11])
	return tx, nil
}
