package core

// mining.go – CPU-bound proof-of-work search. Workers partition the nonce
// space and share an atomic "found" signal; mining produces no side effects
// until the winning block is handed to Ledger.AcceptBlock.

import (
	"context"
	"sync/atomic"
)

const miningYieldInterval = 1 << 16 // hashes between cancellation checks

// MineBlock searches header's nonce space across `workers` goroutines for a
// nonce satisfying header.Difficulty, starting each worker at a distinct
// offset. It returns the winning nonce, or ctx.Err() if cancelled first.
func MineBlock(ctx context.Context, header BlockHeader, workers int) (uint64, error) {
	if workers <= 0 {
		workers = 1
	}
	var found int32
	winner := make(chan uint64, 1)
	done := make(chan struct{})

	for w := 0; w < workers; w++ {
		go func(start uint64) {
			h := header
			nonce := start
			for {
				for i := 0; i < miningYieldInterval; i++ {
					h.Nonce = nonce
					if CheckProofOfWork(h.Hash(), h.Difficulty) {
						if atomic.CompareAndSwapInt32(&found, 0, 1) {
							select {
							case winner <- nonce:
							default:
							}
							close(done)
						}
						return
					}
					nonce += uint64(workers)
				}
				select {
				case <-ctx.Done():
					return
				case <-done:
					return
				default:
				}
			}
		}(uint64(w))
	}

	select {
	case n := <-winner:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// BuildCandidate assembles an unsealed block ready for mining: the
// coinbase amount is block_reward(height) plus the sum of the given
// transactions' fees, its nonce is the block height.
func BuildCandidate(previousHash Hash, height uint64, timestamp uint64, difficulty uint32, beneficiary Address, txs []*Transaction) (*Block, error) {
	var fees uint64
	for _, tx := range txs {
		fees, _ = checkedAdd(fees, tx.Fee)
	}
	reward, _ := checkedAdd(BlockReward(height), fees)
	coinbase := NewCoinbase(beneficiary, reward, height)
	return NewBlock(previousHash, timestamp, difficulty, coinbase, txs)
}
