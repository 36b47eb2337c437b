package core

import "testing"

// safeFee comfortably clears MinFee for any transaction shape used in these
// tests, so tests can focus on the behavior under check rather than exact
// wire-size arithmetic.
const safeFee = 10_000

// fakeLedgerView is a fixed balance/nonce view for mempool unit tests,
// independent of the storage engine.
type fakeLedgerView struct {
	balances map[Address]uint64
	nonces   map[Address]uint64
}

func (v *fakeLedgerView) BalanceOf(a Address) uint64 { return v.balances[a] }
func (v *fakeLedgerView) NonceOf(a Address) uint64   { return v.nonces[a] }

func newFakeLedgerView() *fakeLedgerView {
	return &fakeLedgerView{balances: map[Address]uint64{}, nonces: map[Address]uint64{}}
}

func TestMempoolAdmitsValidTransaction(t *testing.T) {
	from, priv, _ := GenerateKeypair()
	view := newFakeLedgerView()
	view.balances[from] = 1_000_000
	m := NewMempool(view, ChainID, nil)

	tx := signedTransfer(priv, from, Address{2}, 100, safeFee, 0)
	if err := m.Admit(tx); err != nil {
		t.Fatalf("expected admission to succeed, got: %v", err)
	}
	if m.Size() != 1 {
		t.Fatalf("expected pool size 1, got %d", m.Size())
	}
}

func TestMempoolRejectsNonceTooLow(t *testing.T) {
	from, priv, _ := GenerateKeypair()
	view := newFakeLedgerView()
	view.balances[from] = 1_000_000
	view.nonces[from] = 5
	m := NewMempool(view, ChainID, nil)

	tx := signedTransfer(priv, from, Address{2}, 100, safeFee, 2)
	if err := m.Admit(tx); err == nil {
		t.Fatal("expected rejection: nonce too low")
	}
}

func TestMempoolHoldsNonceGapAsOrphan(t *testing.T) {
	from, priv, _ := GenerateKeypair()
	view := newFakeLedgerView()
	view.balances[from] = 1_000_000
	m := NewMempool(view, ChainID, nil)

	tx := signedTransfer(priv, from, Address{2}, 100, safeFee, 3) // stored nonce is 0
	err := m.Admit(tx)
	if err == nil || KindOf(err) != KindOrphan {
		t.Fatalf("expected KindOrphan, got %v", err)
	}
	if m.Size() != 0 {
		t.Fatalf("expected orphan not counted in pending size, got %d", m.Size())
	}
}

func TestMempoolPromotesOrphanOnGapFill(t *testing.T) {
	from, priv, _ := GenerateKeypair()
	view := newFakeLedgerView()
	view.balances[from] = 1_000_000
	m := NewMempool(view, ChainID, nil)

	tx1 := signedTransfer(priv, from, Address{2}, 100, safeFee, 1)
	if err := m.Admit(tx1); err == nil {
		t.Fatal("expected nonce-1 tx to be orphaned before nonce 0 exists")
	}
	tx0 := signedTransfer(priv, from, Address{2}, 100, safeFee, 0)
	if err := m.Admit(tx0); err != nil {
		t.Fatalf("expected nonce-0 tx to admit cleanly: %v", err)
	}
	if m.Size() != 2 {
		t.Fatalf("expected both transactions pending after promotion, got %d", m.Size())
	}
}

func TestMempoolRejectsDuplicateTransaction(t *testing.T) {
	from, priv, _ := GenerateKeypair()
	view := newFakeLedgerView()
	view.balances[from] = 1_000_000
	m := NewMempool(view, ChainID, nil)

	tx := signedTransfer(priv, from, Address{2}, 100, safeFee, 0)
	if err := m.Admit(tx); err != nil {
		t.Fatalf("first admission: %v", err)
	}
	if err := m.Admit(tx); err == nil {
		t.Fatal("expected rejection: transaction already admitted")
	}
}

func TestMempoolRejectsInsufficientBalanceAcrossPending(t *testing.T) {
	from, priv, _ := GenerateKeypair()
	view := newFakeLedgerView()
	// enough for exactly one transfer of this shape, not two
	view.balances[from] = 760_000
	m := NewMempool(view, ChainID, nil)

	tx0 := signedTransfer(priv, from, Address{2}, 500_000, safeFee, 0)
	if err := m.Admit(tx0); err != nil {
		t.Fatalf("first tx should admit: %v", err)
	}
	tx1 := signedTransfer(priv, from, Address{2}, 500_000, safeFee, 1)
	if err := m.Admit(tx1); err == nil {
		t.Fatal("expected rejection: insufficient cumulative balance")
	}
}

func TestMempoolNextBestOrdersByFeeDensity(t *testing.T) {
	a, privA, _ := GenerateKeypair()
	b, privB, _ := GenerateKeypair()
	view := newFakeLedgerView()
	view.balances[a] = 1_000_000
	view.balances[b] = 1_000_000
	m := NewMempool(view, ChainID, nil)

	low := signedTransfer(privA, a, Address{9}, 10, safeFee, 0)
	high := signedTransfer(privB, b, Address{9}, 10, safeFee+10_000, 0)
	if err := m.Admit(low); err != nil {
		t.Fatalf("admit low: %v", err)
	}
	if err := m.Admit(high); err != nil {
		t.Fatalf("admit high: %v", err)
	}

	best := m.NextBest(1<<20, 10)
	if len(best) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(best))
	}
	if best[0].Hash() != high.Hash() {
		t.Fatal("expected higher fee-density transaction first")
	}
}

func TestMempoolOnBlockCommittedRemovesIncluded(t *testing.T) {
	from, priv, _ := GenerateKeypair()
	view := newFakeLedgerView()
	view.balances[from] = 1_000_000
	m := NewMempool(view, ChainID, nil)

	tx := signedTransfer(priv, from, Address{2}, 100, safeFee, 0)
	if err := m.Admit(tx); err != nil {
		t.Fatalf("admit: %v", err)
	}

	view.nonces[from] = 1
	view.balances[from] -= tx.Amount + tx.Fee

	block := &Block{Transactions: []*Transaction{NewCoinbase(Address{3}, 1, 1), tx}}
	m.OnBlockCommitted(block)
	if m.Size() != 0 {
		t.Fatalf("expected committed transaction removed from pool, got size %d", m.Size())
	}
}
