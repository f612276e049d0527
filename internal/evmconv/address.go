// Package evmconv implements C10, the exhaustive FVM<->Ethereum
// conversion rules: addresses, token amounts, signatures, and the 1559
// transaction<->FVM message mapping, including the domain hash used to
// key the tx-cache (§4.5).
package evmconv

import (
	"encoding/binary"
	"errors"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

// ErrUnsupportedAddress is returned when an FVM address has no defined
// Ethereum representation (anything but id-form or EAM-delegated).
var ErrUnsupportedAddress = errors.New("evmconv: address has no Ethereum representation")

// idAddressPrefix is the leading byte marking an Ethereum-encoded id-form
// FVM address: 0xff followed by 11 zero bytes then a big-endian u64.
const idAddressPrefix = 0xff

// FVMToEth converts an FVM address to its 20-byte Ethereum
// representation. Only id-form and EAM-namespace-delegated-with-20-byte-
// subaddress addresses convert; everything else errors.
func FVMToEth(a ipctypes.Address) ([20]byte, error) {
	var out [20]byte
	switch a.Protocol {
	case ipctypes.ProtocolID:
		out[0] = idAddressPrefix
		binary.BigEndian.PutUint64(out[12:], a.ID)
		return out, nil
	case ipctypes.ProtocolDelegated:
		if a.Namespace == ipctypes.EAMNamespace && len(a.Subaddress) == 20 {
			copy(out[:], a.Subaddress)
			return out, nil
		}
		return out, ErrUnsupportedAddress
	default:
		return out, ErrUnsupportedAddress
	}
}

// EthToFVM converts a 20-byte Ethereum address back to an FVM address.
// If the bytes match the id-form pattern (leading 0xff, bytes 1..12
// zero), it produces an id-form address; otherwise it produces a
// delegated address under the EAM namespace.
func EthToFVM(addr [20]byte) ipctypes.Address {
	if addr[0] == idAddressPrefix && allZero(addr[1:12]) {
		id := binary.BigEndian.Uint64(addr[12:])
		return ipctypes.NewIDAddress(id)
	}
	sub := make([]byte, 20)
	copy(sub, addr[:])
	return ipctypes.NewDelegatedAddress(ipctypes.EAMNamespace, sub)
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
