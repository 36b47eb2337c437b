package core

// merkle.go – Merkle tree construction over transaction hashes. On an odd
// node the last hash is duplicated, which is the classic CVE-2012-2459
// construction; BuildMerkleRoot's caller (block validation) MUST reject
// blocks whose transaction list contains duplicate transaction hashes to
// close the corresponding attack, since this implementation does not
// switch to a position-tagged tree.

import "fmt"

// BuildMerkleRoot returns the Merkle root over leaves in order. An empty
// leaf set returns the zero hash.
func BuildMerkleRoot(leaves []Hash) Hash {
	if len(leaves) == 0 {
		return Hash{}
	}
	level := make([]Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			var buf [64]byte
			copy(buf[:32], level[i][:])
			copy(buf[32:], level[i+1][:])
			next = append(next, SHA256(buf[:]))
		}
		level = next
	}
	return level[0]
}

// TransactionMerkleRoot computes the Merkle root over a transaction list,
// rejecting any list containing duplicate transaction hashes.
func TransactionMerkleRoot(txs []*Transaction) (Hash, error) {
	leaves := make([]Hash, len(txs))
	seen := make(map[Hash]struct{}, len(txs))
	for i, tx := range txs {
		h := tx.Hash()
		if _, dup := seen[h]; dup {
			return Hash{}, fmt.Errorf("duplicate transaction hash %s", h)
		}
		seen[h] = struct{}{}
		leaves[i] = h
	}
	return BuildMerkleRoot(leaves), nil
}
