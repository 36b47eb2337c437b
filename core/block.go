package core

// block.go – block construction and the header-level checks that do not
// depend on chain position (PoW, size, Merkle root). Chain-position checks
// (previous hash, timestamp, difficulty, reorg depth) live in consensus.go
// and ledger.go; the coinbase amount check and the nonce/balance state
// transition live in state_transition.go.

import (
	"math/bits"
)

// NewBlockHeader builds an unsealed header (nonce = 0) ready for mining.
func NewBlockHeader(previousHash, merkleRoot Hash, timestamp uint64, difficulty uint32) BlockHeader {
	return BlockHeader{
		Version:      1,
		PreviousHash: previousHash,
		MerkleRoot:   merkleRoot,
		Timestamp:    timestamp,
		Difficulty:   difficulty,
	}
}

// NewBlock assembles a block from a coinbase and ordered non-coinbase
// transactions, computing its Merkle root. The header's nonce is left at 0
// for the caller (miner) to search.
func NewBlock(previousHash Hash, timestamp uint64, difficulty uint32, coinbase *Transaction, txs []*Transaction) (*Block, error) {
	all := make([]*Transaction, 0, len(txs)+1)
	all = append(all, coinbase)
	all = append(all, txs...)
	root, err := TransactionMerkleRoot(all)
	if err != nil {
		return nil, err
	}
	return &Block{
		Header:       NewBlockHeader(previousHash, root, timestamp, difficulty),
		Transactions: all,
	}, nil
}

// CheckProofOfWork reports whether hash has at least `difficulty` leading
// zero bits, interpreted as a big-endian integer: the first floor(d/8) bytes
// are zero and, if d mod 8 != 0, the next byte has its top (d mod 8) bits
// zero.
func CheckProofOfWork(hash Hash, difficulty uint32) bool {
	fullBytes := int(difficulty / 8)
	remBits := int(difficulty % 8)
	if fullBytes > len(hash) {
		return false
	}
	for i := 0; i < fullBytes; i++ {
		if hash[i] != 0 {
			return false
		}
	}
	if remBits == 0 {
		return true
	}
	if fullBytes >= len(hash) {
		return false
	}
	lead := bits.LeadingZeros8(hash[fullBytes])
	return lead >= remBits
}

// ValidateStructure performs position-independent checks: block/tx size
// limits, transaction count, Merkle root correctness, duplicate-hash
// rejection (folded into TransactionMerkleRoot), coinbase placement and
// proof-of-work. It does NOT check previous_hash, timestamp discipline,
// coinbase amount, or nonce/balance state — those require chain context.
func (b *Block) ValidateStructure(expectedChainID uint32) error {
	if len(b.Transactions) == 0 {
		return validationErr("block has no transactions")
	}
	if len(b.Transactions) > MaxTxPerBlock {
		return validationErr("block exceeds maximum transaction count")
	}
	if !b.Transactions[0].IsCoinbase() {
		return validationErr("first transaction is not a coinbase")
	}
	for _, tx := range b.Transactions[1:] {
		if tx.IsCoinbase() {
			return validationErr("coinbase transaction outside first position")
		}
		if err := tx.Validate(expectedChainID); err != nil {
			return err
		}
	}

	root, err := TransactionMerkleRoot(b.Transactions)
	if err != nil {
		return NewError(KindValidation, "duplicate transaction hash in block", err)
	}
	if root != b.Header.MerkleRoot {
		return validationErr("merkle root mismatch")
	}

	size := 0
	for _, tx := range b.Transactions {
		size += tx.SizeBytes()
	}
	if size > MaxBlockSize {
		return validationErr("block exceeds maximum size")
	}

	if !CheckProofOfWork(b.Header.Hash(), b.Header.Difficulty) {
		return validationErr("proof of work does not meet difficulty target")
	}
	return nil
}
