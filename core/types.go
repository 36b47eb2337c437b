package core

// types.go – core data model shared across the consensus, storage, mempool
// and P2P layers: addresses, hashes, transactions, blocks and account state.

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Address is a 32-byte Ed25519 public key acting as an account identifier.
type Address [32]byte

// AddressZero is the sentinel coinbase source address.
var AddressZero = Address{}

func (a Address) String() string { return hex.EncodeToString(a[:]) }

// ParseAddress decodes a hex-encoded address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("parse address: %w", err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("parse address: want %d bytes, got %d", len(a), len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Hash is a 32-byte SHA-256 digest.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the all-zero hash (used for "no parent").
func (h Hash) IsZero() bool { return h == Hash{} }

// ParseHash decodes a hex-encoded hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse hash: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("parse hash: want %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Transaction is a signed value transfer. A transaction with From =
// AddressZero and an empty Signature is a coinbase.
type Transaction struct {
	ChainID   uint32  `json:"chain_id"`
	From      Address `json:"from"`
	To        Address `json:"to"`
	Amount    uint64  `json:"amount"`
	Fee       uint64  `json:"fee"`
	Nonce     uint64  `json:"nonce"`
	Data      []byte  `json:"data,omitempty"`
	Signature []byte  `json:"signature,omitempty"`
}

// IsCoinbase reports whether tx is the block-reward transaction.
func (tx *Transaction) IsCoinbase() bool {
	return tx.From == AddressZero && len(tx.Signature) == 0
}

// Hash returns the transaction's content hash, as defined in encoding.go,
// used as its identifier and as a Merkle leaf.
func (tx *Transaction) Hash() Hash { return txHash(tx) }

// SizeBytes approximates the transaction's wire size for fee-density and
// max-size enforcement.
func (tx *Transaction) SizeBytes() int {
	b, _ := json.Marshal(tx)
	return len(b)
}

// BlockHeader carries the fields committed to by the proof-of-work hash.
type BlockHeader struct {
	Version      uint32 `json:"version"`
	PreviousHash Hash   `json:"previous_hash"`
	MerkleRoot   Hash   `json:"merkle_root"`
	Timestamp    uint64 `json:"timestamp"`
	Difficulty   uint32 `json:"difficulty"`
	Nonce        uint64 `json:"nonce"`
}

// Hash returns the header's proof-of-work hash, as defined in encoding.go.
func (h *BlockHeader) Hash() Hash { return headerHash(h) }

// Block is a header plus its ordered transaction list (coinbase first).
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
}

// Hash returns the block's identifying hash (its header hash).
func (b *Block) Hash() Hash { return b.Header.Hash() }

// Height of the block. Genesis is height 0; stored separately from the
// header since height is a chain-relative property, not a header field.

// AccountState is the balance/nonce pair tracked per touched address.
type AccountState struct {
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// ChainTip summarizes the canonical chain's current head.
type ChainTip struct {
	Hash          Hash   `json:"hash"`
	Height        uint64 `json:"height"`
	TotalSupply   uint64 `json:"total_supply"`
	Difficulty    uint32 `json:"difficulty"`
}

// Protocol constants, per the network's consensus rules. A running node must
// agree on these values with every peer it accepts blocks from.
const (
	ChainID uint32 = 963

	TargetBlockTime      = 60 // seconds
	RetargetInterval      = 20  // blocks
	MaxRetargetFactorNum  = 125
	MaxRetargetFactorDen  = 100
	MinRetargetFactorNum  = 75
	MinRetargetFactorDen  = 100
	MinDifficulty  uint32 = 8
	MaxDifficulty  uint32 = 192

	MaxFutureDrift = 60 // seconds
	MedianTimePastWindow = 11

	MaxBlockSize      = 1 << 20 // 1 MiB
	MaxTxPerBlock     = 1000
	MaxTxSize         = 100 << 10 // 100 KiB
	MaxTxDataSize     = 80 << 10  // 80 KiB

	MaxReorgDepth = 100

	// Internal units: smallest unit is 10^-6 of a display unit.
	UnitsPerDisplay   uint64 = 1_000_000
	MaxSupply         uint64 = 100_000_000 * UnitsPerDisplay
	InitialReward     uint64 = 50 * UnitsPerDisplay
	HalvingInterval   uint64 = 210_000

	BaseFee    uint64 = 1000
	FeePerByte uint64 = 1
)

// BlockReward computes the coinbase amount due at height h, halving every
// HalvingInterval blocks and saturating to zero after 64 halvings.
func BlockReward(h uint64) uint64 {
	halvings := h / HalvingInterval
	if halvings >= 64 {
		return 0
	}
	return InitialReward >> halvings
}

// MinFee returns the minimum acceptable fee for a transaction of the given
// encoded size.
func MinFee(sizeBytes int) uint64 {
	return BaseFee + uint64(sizeBytes)*FeePerByte
}
