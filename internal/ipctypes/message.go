package ipctypes

// Method identifies which FVM method a message invokes. The EAM/invoke
// distinction used by the Ethereum-to-FVM conversion (C10) lives here so
// both the codec and the mempool can reference it without a cycle.
type Method uint64

const (
	// MethodInvokeContract is the standard EVM-style "call" entrypoint.
	MethodInvokeContract Method = 3844450837
	// MethodCreateExternal is EAM's entrypoint for contract creation from
	// an externally-signed Ethereum transaction (to == nil).
	MethodCreateExternal Method = 2
)

// Signature is a detached 65-byte (r, s, v) secp256k1 signature.
type Signature struct {
	R [32]byte
	S [32]byte
	V byte // 0 or 1 in FVM's normalized form
}

// Message is the unsigned body of a cross-subnet-capable transaction.
type Message struct {
	From         Address
	To           Address
	Nonce        uint64
	Value        TokenAmount
	Method       Method
	Params       []byte
	GasLimit     uint64
	GasFeeCap    TokenAmount
	GasPremium   TokenAmount
}

// SignedMessage pairs a Message with the signature over its canonical
// encoding. The domain hash (§4.10) is computed over the Ethereum-RLP
// encoding by the evmconv package, not stored here, since it is a pure
// function of the fields below.
type SignedMessage struct {
	Message   Message
	Signature Signature
	// ChainID is carried alongside the message because RLP/domain-hash
	// encoding is chain-id-dependent (EIP-155/1559 replay protection).
	ChainID uint64
}
