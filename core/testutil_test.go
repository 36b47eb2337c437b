package core

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"
)

// testGenesisTime anchors a test chain's genesis far enough in the past
// that hundreds of one-second-spaced blocks still validate against the
// MaxFutureDrift check, which compares against the real wall clock.
func testGenesisTime() uint64 {
	return uint64(time.Now().Add(-24 * time.Hour).Unix())
}

// mineNonce finds a nonce satisfying header's difficulty by brute force,
// for use in tests where a handful of low-difficulty blocks must be
// produced quickly and deterministically.
func mineNonce(t *testing.T, header BlockHeader) uint64 {
	t.Helper()
	nonce, err := MineBlock(context.Background(), header, 1)
	if err != nil {
		t.Fatalf("mine block: %v", err)
	}
	return nonce
}

// mineBlockAt builds and mines a block with a coinbase and txs extending
// previousHash.
func mineBlockAt(t *testing.T, previousHash Hash, height uint64, timestamp uint64, difficulty uint32, beneficiary Address, txs []*Transaction) *Block {
	t.Helper()
	blk, err := BuildCandidate(previousHash, height, timestamp, difficulty, beneficiary, txs)
	if err != nil {
		t.Fatalf("BuildCandidate: %v", err)
	}
	blk.Header.Nonce = mineNonce(t, blk.Header)
	return blk
}

// signedTransfer returns a signed, ready-to-admit transfer from priv's
// address.
func signedTransfer(priv ed25519.PrivateKey, from, to Address, amount, fee, nonce uint64) *Transaction {
	tx := NewTransaction(ChainID, from, to, amount, fee, nonce, nil)
	tx.Sign(priv)
	return tx
}

func newTestLedger(t *testing.T, difficulty uint32) *Ledger {
	t.Helper()
	dir := t.TempDir()
	l, err := OpenLedger(LedgerConfig{
		DataDir:           dir,
		ChainID:           ChainID,
		InitialDifficulty: difficulty,
		GenesisTimestamp:  testGenesisTime(),
	}, nil, nil)
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}
