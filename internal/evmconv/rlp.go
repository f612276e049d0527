package evmconv

import "math/big"

// rlpEncodeBytes etc. below form a minimal RLP encoder sufficient for the
// fixed-shape EIP-1559 transaction envelope this package needs to hash;
// it is not a general-purpose codec.
func rlpEncodeBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return b
	}
	return append(rlpLengthPrefix(0x80, len(b)), b...)
}

func rlpEncodeUint64(v uint64) []byte {
	if v == 0 {
		return []byte{0x80}
	}
	var tmp [8]byte
	n := 8
	for n > 0 && v>>((uint(n)-1)*8) == 0 {
		n--
	}
	for i := 0; i < n; i++ {
		tmp[i] = byte(v >> (uint(n-1-i) * 8))
	}
	return rlpEncodeBytes(tmp[:n])
}

func rlpEncodeBigInt(v *big.Int) []byte {
	if v == nil || v.Sign() == 0 {
		return []byte{0x80}
	}
	return rlpEncodeBytes(v.Bytes())
}

func rlpLengthPrefix(base byte, length int) []byte {
	if length < 56 {
		return []byte{base + byte(length)}
	}
	lb := bigEndianMinimal(uint64(length))
	return append([]byte{base + 55 + byte(len(lb))}, lb...)
}

func bigEndianMinimal(v uint64) []byte {
	var tmp [8]byte
	n := 8
	for n > 0 && v>>((uint(n)-1)*8) == 0 {
		n--
	}
	for i := 0; i < n; i++ {
		tmp[i] = byte(v >> (uint(n-1-i) * 8))
	}
	return tmp[:n]
}

func rlpEncodeList(items [][]byte) []byte {
	var payload []byte
	for _, it := range items {
		payload = append(payload, it...)
	}
	return append(rlpLengthPrefix(0xc0, len(payload)), payload...)
}
