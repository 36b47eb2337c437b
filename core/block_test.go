package core

import "testing"

func TestCheckProofOfWorkZeroDifficultyAlwaysPasses(t *testing.T) {
	if !CheckProofOfWork(Hash{0xff, 0xff}, 0) {
		t.Fatal("expected zero difficulty to accept any hash")
	}
}

func TestCheckProofOfWorkFullByteBoundary(t *testing.T) {
	h := Hash{0x00, 0x80}
	if !CheckProofOfWork(h, 8) {
		t.Fatal("expected 8 leading zero bits to pass difficulty 8")
	}
	if CheckProofOfWork(h, 9) {
		t.Fatal("expected difficulty 9 to fail: byte[1] has no leading zero bits")
	}
}

func TestCheckProofOfWorkPartialByte(t *testing.T) {
	h := Hash{0x00, 0x0f} // 4 leading zero bits in byte[1]
	if !CheckProofOfWork(h, 12) {
		t.Fatal("expected 12 leading zero bits to pass")
	}
	if CheckProofOfWork(h, 13) {
		t.Fatal("expected 13 leading zero bits to fail")
	}
}

func TestNewBlockCoinbaseFirst(t *testing.T) {
	coinbase := NewCoinbase(Address{1}, 1000, 1)
	blk, err := NewBlock(Hash{}, 100, 0, coinbase, nil)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	if len(blk.Transactions) != 1 || blk.Transactions[0] != coinbase {
		t.Fatal("expected coinbase to be the sole transaction")
	}
}

func TestValidateStructureRejectsMissingCoinbase(t *testing.T) {
	addr, priv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	tx := signedTransfer(priv, addr, Address{2}, 1, MinFee(0), 0)
	root, err := TransactionMerkleRoot([]*Transaction{tx})
	if err != nil {
		t.Fatalf("TransactionMerkleRoot: %v", err)
	}
	blk := &Block{
		Header:       NewBlockHeader(Hash{}, root, 100, 0),
		Transactions: []*Transaction{tx},
	}
	if err := blk.ValidateStructure(ChainID); err == nil {
		t.Fatal("expected rejection: first transaction is not a coinbase")
	}
}

func TestValidateStructureRejectsBadMerkleRoot(t *testing.T) {
	coinbase := NewCoinbase(Address{1}, 1000, 1)
	blk, err := NewBlock(Hash{}, 100, 0, coinbase, nil)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	blk.Header.MerkleRoot = Hash{0xff}
	if err := blk.ValidateStructure(ChainID); err == nil {
		t.Fatal("expected rejection: merkle root mismatch")
	}
}

func TestValidateStructureRejectsBadProofOfWork(t *testing.T) {
	coinbase := NewCoinbase(Address{1}, 1000, 1)
	blk, err := NewBlock(Hash{}, 100, 64, coinbase, nil)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	blk.Header.Nonce = 0 // astronomically unlikely to satisfy difficulty 64
	if err := blk.ValidateStructure(ChainID); err == nil {
		t.Fatal("expected rejection: proof of work does not meet difficulty target")
	}
}

func TestValidateStructureAcceptsWellFormedBlock(t *testing.T) {
	blk := mineBlockAt(t, Hash{}, 1, 100, 8, Address{1}, nil)
	if err := blk.ValidateStructure(ChainID); err != nil {
		t.Fatalf("expected well-formed block to validate, got: %v", err)
	}
}
