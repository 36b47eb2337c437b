package core

import "testing"

func TestBuildMerkleRootEmpty(t *testing.T) {
	if got := BuildMerkleRoot(nil); got != (Hash{}) {
		t.Fatalf("expected zero hash for empty leaf set, got %s", got)
	}
}

func TestBuildMerkleRootSingleLeaf(t *testing.T) {
	leaf := SHA256([]byte("only"))
	if got := BuildMerkleRoot([]Hash{leaf}); got != leaf {
		t.Fatalf("expected single-leaf root to equal the leaf itself, got %s want %s", got, leaf)
	}
}

func TestBuildMerkleRootOddCountDuplicatesLast(t *testing.T) {
	a, b, c := SHA256([]byte("a")), SHA256([]byte("b")), SHA256([]byte("c"))
	got := BuildMerkleRoot([]Hash{a, b, c})
	want := BuildMerkleRoot([]Hash{a, b, c, c})
	if got != want {
		t.Fatal("expected odd-length level to duplicate its last hash")
	}
}

func TestTransactionMerkleRootRejectsDuplicates(t *testing.T) {
	tx := NewCoinbase(Address{1}, 1000, 1)
	dup := *tx
	if _, err := TransactionMerkleRoot([]*Transaction{tx, &dup}); err == nil {
		t.Fatal("expected duplicate transaction hashes to be rejected")
	}
}

func TestTransactionMerkleRootOrderSensitive(t *testing.T) {
	a := NewTransaction(ChainID, Address{1}, Address{2}, 1, 1, 0, nil)
	b := NewTransaction(ChainID, Address{3}, Address{4}, 2, 1, 0, nil)
	r1, err := TransactionMerkleRoot([]*Transaction{a, b})
	if err != nil {
		t.Fatalf("TransactionMerkleRoot: %v", err)
	}
	r2, err := TransactionMerkleRoot([]*Transaction{b, a})
	if err != nil {
		t.Fatalf("TransactionMerkleRoot: %v", err)
	}
	if r1 == r2 {
		t.Fatal("expected transaction order to affect the merkle root")
	}
}
