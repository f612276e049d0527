package evmconv

import (
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

// EthTx1559 is an Ethereum EIP-1559 transaction, signed or unsigned
// (R/S/V zero when unsigned).
type EthTx1559 struct {
	ChainID              uint64
	Nonce                uint64
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
	GasLimit             uint64
	To                   *[20]byte // nil means contract creation
	Value                *big.Int
	Data                 []byte
	Signature            EthSignature
}

// eamNamespaceAddress is the well-known FVM address of the Ethereum
// Account Manager actor, the target of every "create external" message.
var eamNamespaceAddress = ipctypes.NewDelegatedAddress(ipctypes.EAMNamespace, nil)

// ToFVM maps an Ethereum 1559 transaction to an FVM message, per spec
// §4.10. from must already have been recovered from the signature (it is
// not carried in the RLP).
func ToFVM(tx EthTx1559, from ipctypes.Address) ipctypes.Message {
	var to ipctypes.Address
	var method ipctypes.Method
	var params []byte

	if tx.To == nil {
		to = eamNamespaceAddress
		method = ipctypes.MethodCreateExternal
		params = wrapBytes(tx.Data)
	} else {
		to = EthToFVM(*tx.To)
		method = ipctypes.MethodInvokeContract
		params = wrapBytes(tx.Data)
	}

	return ipctypes.Message{
		From:       from,
		To:         to,
		Nonce:      tx.Nonce,
		Value:      ipctypes.NewTokenAmount(tx.Value),
		Method:     method,
		Params:     params,
		GasLimit:   tx.GasLimit,
		GasFeeCap:  ipctypes.NewTokenAmount(tx.MaxFeePerGas),
		GasPremium: ipctypes.NewTokenAmount(tx.MaxPriorityFeePerGas),
	}
}

// wrapBytes tags calldata as a CBOR byte-string payload, matching the
// FVM convention for opaque method parameters.
func wrapBytes(data []byte) []byte {
	out := make([]byte, 0, len(data)+9)
	if len(data) < 24 {
		out = append(out, 0x40|byte(len(data)))
	} else {
		// 0x58..0x5b carry a 1-, 2-, 4- or 8-byte big-endian length.
		lenBytes := bigEndianMinimal(uint64(len(data)))
		lead, width := byte(0x58), 1
		for width < len(lenBytes) {
			lead, width = lead+1, width*2
		}
		out = append(out, lead)
		out = append(out, make([]byte, width-len(lenBytes))...)
		out = append(out, lenBytes...)
	}
	return append(out, data...)
}

// unwrapBytes inverts wrapBytes, recovering the raw calldata from its
// CBOR byte-string tag.
func unwrapBytes(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	lead := b[0]
	switch {
	case lead >= 0x40 && lead < 0x58:
		n := int(lead - 0x40)
		if len(b) < 1+n {
			return nil, ErrMalformedRLP
		}
		return b[1 : 1+n], nil
	case lead >= 0x58 && lead <= 0x5b:
		width := 1 << (lead - 0x58)
		if len(b) < 1+width {
			return nil, ErrMalformedRLP
		}
		n := beUint(b[1 : 1+width])
		if uint64(len(b)-1-width) < n {
			return nil, ErrMalformedRLP
		}
		return b[1+width : 1+width+int(n)], nil
	default:
		return nil, ErrMalformedRLP
	}
}

// FromFVM is the inverse of ToFVM: reconstructs the Ethereum transaction
// shape (modulo signature normalization) from a signed FVM message, so
// the JSON-RPC facade can serve eth_getTransactionByHash-style lookups
// over already-committed FVM messages.
func FromFVM(sm ipctypes.SignedMessage) (EthTx1559, error) {
	data, err := unwrapBytes(sm.Message.Params)
	if err != nil {
		return EthTx1559{}, err
	}
	tx := EthTx1559{
		ChainID:              sm.ChainID,
		Nonce:                sm.Message.Nonce,
		MaxPriorityFeePerGas: sm.Message.GasPremium.Atto(),
		MaxFeePerGas:         sm.Message.GasFeeCap.Atto(),
		GasLimit:             sm.Message.GasLimit,
		Value:                sm.Message.Value.Atto(),
		Data:                 data,
		Signature:            FVMSignatureToEth(sm.Signature, true),
	}
	if sm.Message.Method != ipctypes.MethodCreateExternal {
		eth, err := FVMToEth(sm.Message.To)
		if err != nil {
			return EthTx1559{}, err
		}
		tx.To = &eth
	}
	return tx, nil
}

// signedRLP encodes the canonical EIP-1559 signed transaction body:
// 0x02 || rlp([chainId, nonce, maxPriorityFeePerGas, maxFeePerGas,
// gasLimit, to, value, data, accessList, yParity, r, s]).
func (tx EthTx1559) signedRLP() []byte {
	to := []byte{}
	if tx.To != nil {
		to = tx.To[:]
	}

	items := [][]byte{
		rlpEncodeUint64(tx.ChainID),
		rlpEncodeUint64(tx.Nonce),
		rlpEncodeBigInt(tx.MaxPriorityFeePerGas),
		rlpEncodeBigInt(tx.MaxFeePerGas),
		rlpEncodeUint64(tx.GasLimit),
		rlpEncodeBytes(to),
		rlpEncodeBigInt(tx.Value),
		rlpEncodeBytes(tx.Data),
		rlpEncodeList(nil), // empty access list
		rlpEncodeUint64(uint64(tx.Signature.V)),
		rlpEncodeBytes(trimLeadingZeros(tx.Signature.R[:])),
		rlpEncodeBytes(trimLeadingZeros(tx.Signature.S[:])),
	}

	payload := append([]byte{0x02}, rlpEncodeList(items)...)
	return payload
}

// signingRLP encodes the EIP-1559 signing payload: the same envelope as
// signedRLP but without the signature fields, per EIP-1559 §"Signature".
func (tx EthTx1559) signingRLP() []byte {
	to := []byte{}
	if tx.To != nil {
		to = tx.To[:]
	}

	items := [][]byte{
		rlpEncodeUint64(tx.ChainID),
		rlpEncodeUint64(tx.Nonce),
		rlpEncodeBigInt(tx.MaxPriorityFeePerGas),
		rlpEncodeBigInt(tx.MaxFeePerGas),
		rlpEncodeUint64(tx.GasLimit),
		rlpEncodeBytes(to),
		rlpEncodeBigInt(tx.Value),
		rlpEncodeBytes(tx.Data),
		rlpEncodeList(nil), // empty access list
	}
	return append([]byte{0x02}, rlpEncodeList(items)...)
}

// SigningHash is the keccak256 of the unsigned EIP-1559 payload: the
// value recovered against (r, s, v) to obtain the sender's address. It
// differs from DomainHash, which hashes the fully signed envelope and
// serves as the transaction's external lookup key.
func SigningHash(tx EthTx1559) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(tx.signingRLP())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func trimLeadingZeros(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}

// DomainHash is the keccak256 of the canonical signed 1559 RLP,
// including the chain ID; it keys the tx-cache (§4.5) and must be
// bit-exact with what any Ethereum-compatible client computes.
func DomainHash(tx EthTx1559) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(tx.signedRLP())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
