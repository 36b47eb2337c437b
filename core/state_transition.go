package core

// state_transition.go – nonce-ordered, checked-arithmetic application of a
// block's transactions to account state. Invoked by append_block as part of
// the same atomic batch as the block write; never used standalone against
// already-committed state.

import "fmt"

// stateView is the minimal read surface the transition algorithm needs
// against already-committed state; ledger.go supplies one backed by Store
// (ledgerStateView) and an in-memory one for reorg replay (mapStateView).
type stateView interface {
	BalanceOf(addr Address) (uint64, error)
	NonceOf(addr Address) (uint64, error)
}

// applyResult carries the account deltas produced by a successful
// transition, to be staged into the caller's atomic batch.
type applyResult struct {
	balances map[Address]uint64
	nonces   map[Address]uint64
	supply   uint64
}

// ApplyBlock validates nonce ordering and balance sufficiency for every
// transaction in blk, then returns the resulting account deltas and new
// total supply. It performs no partial application: on any failure, no
// delta is returned.
func ApplyBlock(view stateView, blk *Block, height uint64, priorSupply uint64) (*applyResult, error) {
	coinbase := blk.Transactions[0]
	rest := blk.Transactions[1:]

	balances := make(map[Address]uint64)
	nonces := make(map[Address]uint64)
	touched := func(a Address) {
		if _, ok := balances[a]; ok {
			return
		}
		b, err := view.BalanceOf(a)
		if err == nil {
			balances[a] = b
		}
	}
	touchedNonce := func(a Address) error {
		if _, ok := nonces[a]; ok {
			return nil
		}
		n, err := view.NonceOf(a)
		if err != nil {
			return err
		}
		nonces[a] = n
		return nil
	}

	expectNonce := make(map[Address]uint64)
	var feeTotal uint64

	for i, tx := range rest {
		if tx.ChainID != ChainID {
			return nil, validationErr(fmt.Sprintf("tx %d: chain_id mismatch", i))
		}
		if err := tx.VerifySignature(); err != nil {
			return nil, err
		}

		if err := touchedNonce(tx.From); err != nil {
			return nil, err
		}
		want, seen := expectNonce[tx.From]
		if !seen {
			want = nonces[tx.From]
		}
		if tx.Nonce != want {
			return nil, validationErr(fmt.Sprintf("tx %d: nonce gap or out-of-order for sender %s: got %d want %d", i, tx.From, tx.Nonce, want))
		}
		expectNonce[tx.From] = want + 1

		touched(tx.From)
		touched(tx.To)

		cost, ok := checkedAdd(tx.Amount, tx.Fee)
		if !ok {
			return nil, validationErr(fmt.Sprintf("tx %d: amount+fee overflow", i))
		}
		fromBal := balances[tx.From]
		if fromBal < cost {
			return nil, validationErr(fmt.Sprintf("tx %d: insufficient balance", i))
		}
		balances[tx.From] = fromBal - cost

		toBal, ok := checkedAdd(balances[tx.To], tx.Amount)
		if !ok {
			return nil, validationErr(fmt.Sprintf("tx %d: credit overflow", i))
		}
		balances[tx.To] = toBal

		nonces[tx.From] = expectNonce[tx.From]

		feeTotal, ok = checkedAdd(feeTotal, tx.Fee)
		if !ok {
			return nil, validationErr("total fees overflow")
		}
	}

	wantReward, ok := checkedAdd(BlockReward(height), feeTotal)
	if !ok {
		return nil, validationErr("coinbase amount overflow")
	}
	if coinbase.Amount != wantReward {
		return nil, validationErr(fmt.Sprintf("coinbase amount mismatch: got %d want %d", coinbase.Amount, wantReward))
	}
	if coinbase.Nonce != height {
		return nil, validationErr("coinbase nonce must equal block height")
	}

	touched(coinbase.To)
	cbBal, ok := checkedAdd(balances[coinbase.To], coinbase.Amount)
	if !ok {
		return nil, validationErr("coinbase credit overflow")
	}
	balances[coinbase.To] = cbBal

	newSupply, ok := checkedAdd(priorSupply, coinbase.Amount)
	if !ok || newSupply > MaxSupply {
		return nil, validationErr("supply cap exceeded")
	}

	return &applyResult{balances: balances, nonces: nonces, supply: newSupply}, nil
}

func checkedAdd(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}
