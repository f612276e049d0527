package ipctypes

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Protocol identifies which payload variant an Address carries.
type Protocol byte

const (
	ProtocolID         Protocol = 0
	ProtocolSecp256k1  Protocol = 1
	ProtocolActorHash  Protocol = 2
	ProtocolBLS        Protocol = 3
	ProtocolDelegated  Protocol = 4
)

// EAMNamespace is the delegated-address namespace reserved for the
// Ethereum Address Manager actor; subaddresses under it are raw 20-byte
// Ethereum addresses.
const EAMNamespace = 10

// Address is the polymorphic FVM address: id-form, a 20-byte hash (secp256k1
// or actor), a BLS public-key hash, or a delegated (namespace, subaddress)
// pair. Only one of the fields is meaningful, selected by Protocol.
type Address struct {
	Protocol   Protocol
	ID         uint64 // valid when Protocol == ProtocolID
	Hash       []byte // valid when Protocol is Secp256k1/ActorHash/BLS
	Namespace  uint64 // valid when Protocol == ProtocolDelegated
	Subaddress []byte // valid when Protocol == ProtocolDelegated
}

// NewIDAddress builds an id-form address.
func NewIDAddress(id uint64) Address {
	return Address{Protocol: ProtocolID, ID: id}
}

// NewDelegatedAddress builds a delegated address under the given namespace.
func NewDelegatedAddress(namespace uint64, subaddr []byte) Address {
	cp := make([]byte, len(subaddr))
	copy(cp, subaddr)
	return Address{Protocol: ProtocolDelegated, Namespace: namespace, Subaddress: cp}
}

// Equal reports whether two addresses carry the same protocol and payload.
func (a Address) Equal(o Address) bool {
	if a.Protocol != o.Protocol {
		return false
	}
	switch a.Protocol {
	case ProtocolID:
		return a.ID == o.ID
	case ProtocolDelegated:
		return a.Namespace == o.Namespace && bytesEqual(a.Subaddress, o.Subaddress)
	default:
		return bytesEqual(a.Hash, o.Hash)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String renders a short, debuggable (non-canonical-FVM) representation:
// "f0<id>" for id-form, "f4<namespace>f<hex>" for delegated, "f1<hex>" etc.
// otherwise. This is sufficient for SubnetID route segments and logs.
func (a Address) String() string {
	switch a.Protocol {
	case ProtocolID:
		return fmt.Sprintf("f0%d", a.ID)
	case ProtocolDelegated:
		return fmt.Sprintf("f4%df%s", a.Namespace, hex.EncodeToString(a.Subaddress))
	default:
		return fmt.Sprintf("f%d%s", a.Protocol, hex.EncodeToString(a.Hash))
	}
}

// ParseAddress parses the String form back into an Address.
func ParseAddress(s string) (Address, error) {
	if len(s) < 2 || s[0] != 'f' {
		return Address{}, errors.New("ipctypes: address must start with 'f'")
	}
	switch s[1] {
	case '0':
		var id uint64
		if _, err := fmt.Sscanf(s[2:], "%d", &id); err != nil {
			return Address{}, fmt.Errorf("ipctypes: invalid id address %q: %w", s, err)
		}
		return NewIDAddress(id), nil
	case '4':
		rest := s[2:]
		i := 0
		for i < len(rest) && rest[i] != 'f' {
			i++
		}
		if i == len(rest) {
			return Address{}, fmt.Errorf("ipctypes: malformed delegated address %q", s)
		}
		var ns uint64
		if _, err := fmt.Sscanf(rest[:i], "%d", &ns); err != nil {
			return Address{}, fmt.Errorf("ipctypes: invalid namespace in %q: %w", s, err)
		}
		sub, err := hex.DecodeString(rest[i+1:])
		if err != nil {
			return Address{}, fmt.Errorf("ipctypes: invalid subaddress hex in %q: %w", s, err)
		}
		return NewDelegatedAddress(ns, sub), nil
	default:
		hash, err := hex.DecodeString(s[2:])
		if err != nil {
			return Address{}, fmt.Errorf("ipctypes: invalid address %q: %w", s, err)
		}
		return Address{Protocol: Protocol(s[1] - '0'), Hash: hash}, nil
	}
}
