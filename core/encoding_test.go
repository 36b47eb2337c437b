package core

import "testing"

func TestHeaderHashDeterministicOnFields(t *testing.T) {
	h1 := BlockHeader{Version: 1, PreviousHash: Hash{1}, MerkleRoot: Hash{2}, Timestamp: 100, Difficulty: 16, Nonce: 7}
	h2 := h1
	if h1.Hash() != h2.Hash() {
		t.Fatal("expected identical headers to hash identically")
	}
	h2.Nonce = 8
	if h1.Hash() == h2.Hash() {
		t.Fatal("expected nonce change to change the header hash")
	}
}

func TestSigningHashExcludesSignature(t *testing.T) {
	tx := NewTransaction(ChainID, Address{1}, Address{2}, 10, 1, 0, nil)
	before := signingHash(tx)
	tx.Signature = []byte{9, 9, 9, 9}
	after := signingHash(tx)
	if before != after {
		t.Fatal("expected signing hash to be independent of the signature field")
	}
}

func TestSigningHashIncludesChainID(t *testing.T) {
	a := NewTransaction(963, Address{1}, Address{2}, 10, 1, 0, nil)
	b := NewTransaction(964, Address{1}, Address{2}, 10, 1, 0, nil)
	if signingHash(a) == signingHash(b) {
		t.Fatal("expected chain_id to be mixed into the signing hash")
	}
}

func TestTxHashIncludesSignature(t *testing.T) {
	tx := NewTransaction(ChainID, Address{1}, Address{2}, 10, 1, 0, nil)
	before := tx.Hash()
	tx.Signature = []byte{1, 2, 3}
	after := tx.Hash()
	if before == after {
		t.Fatal("expected tx hash to change once a signature is attached")
	}
}
