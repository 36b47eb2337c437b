package core

import "testing"

// buildChain mines a sequence of coinbase-only blocks extending startParent
// (the block at startHeight) through startHeight+count, on the
// height-linear timestamp schedule genesisTS+height*TargetBlockTime. That
// schedule keeps actual == expected at every retarget boundary regardless
// of which branch a block ends up on, so difficulty stays pinned at its
// initial value across forks built this way.
func buildChain(t *testing.T, genesisTS uint64, startParent Hash, startHeight uint64, count int, difficulty uint32, beneficiary Address) []*Block {
	t.Helper()
	blocks := make([]*Block, 0, count)
	parent := startParent
	for i := 1; i <= count; i++ {
		height := startHeight + uint64(i)
		ts := genesisTS + height*uint64(TargetBlockTime)
		blk := mineBlockAt(t, parent, height, ts, difficulty, beneficiary, nil)
		blocks = append(blocks, blk)
		parent = blk.Hash()
	}
	return blocks
}

func TestLedgerBoundedReorg(t *testing.T) {
	l := newTestLedger(t, 16)
	genesisTS := genesisTimestamp(t, l)
	beneficiary := Address{0xA}

	chainX := buildChain(t, genesisTS, mustTip(t, l).Hash, 0, 100, 16, beneficiary)
	for i, blk := range chainX {
		if _, err := l.AcceptBlock(blk); err != nil {
			t.Fatalf("accept X block %d: %v", i+1, err)
		}
	}
	tip := mustTip(t, l)
	if tip.Height != 100 {
		t.Fatalf("expected X tip height 100, got %d", tip.Height)
	}

	// Y branches off X at height 50 and grows past X's tip. Mining is
	// deterministic, so Y pays a different beneficiary to make its blocks
	// differ from X's at the same heights and timestamps.
	branchBlock := chainX[49] // height 50
	chainY := buildChain(t, genesisTS, branchBlock.Hash(), 50, 101, 16, Address{0xB})
	sawReorganize := false
	for i, blk := range chainY {
		action, err := l.AcceptBlock(blk)
		if err != nil {
			t.Fatalf("accept Y block %d: %v", i+1, err)
		}
		if action == ActionReorganize {
			sawReorganize = true
		}
	}
	if !sawReorganize {
		t.Fatal("expected Y to trigger a reorganize once it outgrew X")
	}

	tip = mustTip(t, l)
	if tip.Height != 151 {
		t.Fatalf("expected Y tip height 151, got %d", tip.Height)
	}
	if tip.Hash != chainY[len(chainY)-1].Hash() {
		t.Fatal("expected tip to be Y's last block")
	}

	// Z branches off X at height 1 (an ancestor shared with Y) but never
	// grows long enough to overtake Y's tip: every Z block is accepted
	// and stored as a non-canonical fork, and the chain stays on Y.
	blockOne := chainX[0]
	chainZ := buildChain(t, genesisTS, blockOne.Hash(), 1, 105, 16, Address{0xC})
	for i, blk := range chainZ {
		action, err := l.AcceptBlock(blk)
		if err != nil {
			t.Fatalf("accept Z block %d: %v", i+1, err)
		}
		if action != ActionStoreFork {
			t.Fatalf("expected Z block %d to remain a non-canonical fork, got action %s", i+1, action)
		}
	}

	finalTip := mustTip(t, l)
	if finalTip != tip {
		t.Fatal("expected Y to remain canonical after presenting the shorter competing chain Z")
	}
}
