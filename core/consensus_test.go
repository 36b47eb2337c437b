package core

import (
	"testing"
	"time"
)

func TestMedianTimePastOddCount(t *testing.T) {
	got := MedianTimePast([]uint64{5, 1, 3})
	if got != 3 {
		t.Fatalf("expected median 3, got %d", got)
	}
}

func TestMedianTimePastEvenCountUsesUpperMiddle(t *testing.T) {
	// sorted: [1,2,3,4], len/2 = 2 -> index 2 -> value 3
	got := MedianTimePast([]uint64{4, 1, 3, 2})
	if got != 3 {
		t.Fatalf("expected upper-middle median 3, got %d", got)
	}
}

func TestValidateTimestampRejectsNotAfterMTP(t *testing.T) {
	// The median of the parents is 90; a timestamp equal to it is not after it.
	err := ValidateTimestamp(90, []uint64{100, 90, 80}, time.Unix(1000, 0))
	if err == nil {
		t.Fatal("expected rejection: timestamp not after median-time-past")
	}
}

func TestValidateTimestampRejectsFutureDrift(t *testing.T) {
	now := time.Unix(1000, 0)
	err := ValidateTimestamp(uint64(now.Unix())+MaxFutureDrift+1, []uint64{1, 2, 3}, now)
	if err == nil {
		t.Fatal("expected rejection: timestamp exceeds max future drift")
	}
}

func TestValidateTimestampAcceptsValid(t *testing.T) {
	now := time.Unix(1000, 0)
	err := ValidateTimestamp(50, []uint64{10, 20, 30}, now)
	if err != nil {
		t.Fatalf("expected valid timestamp to be accepted, got: %v", err)
	}
}

func TestRetargetDifficultyClampsUpperBound(t *testing.T) {
	// actual << expected -> would imply a huge upward jump, clamped to +25%.
	current := uint32(100)
	got := RetargetDifficulty(current, 0, 1) // actual ~ 1s, expected much larger
	want := uint32(uint64(current) * MaxRetargetFactorNum / MaxRetargetFactorDen)
	if got != want {
		t.Fatalf("expected clamp to +25%% (%d), got %d", want, got)
	}
}

func TestRetargetDifficultyClampsLowerBound(t *testing.T) {
	current := uint32(100)
	// actual far larger than expected -> downward adjustment clamped to -25%.
	first := uint64(0)
	last := uint64(RetargetInterval) * uint64(TargetBlockTime) * 100
	got := RetargetDifficulty(current, first, last)
	want := uint32(uint64(current) * MinRetargetFactorNum / MinRetargetFactorDen)
	if got != want {
		t.Fatalf("expected clamp to -25%% (%d), got %d", want, got)
	}
}

func TestRetargetDifficultyRespectsMinMaxDifficultyBounds(t *testing.T) {
	got := RetargetDifficulty(MinDifficulty, 0, uint64(RetargetInterval)*uint64(TargetBlockTime)*1000)
	if got < MinDifficulty {
		t.Fatalf("expected difficulty floor of %d, got %d", MinDifficulty, got)
	}
}

func TestNextDifficultyOnlyChangesAtBoundary(t *testing.T) {
	c := NewConsensus(ChainID)
	if got := c.NextDifficulty(RetargetInterval-1, 50, 0, 1000); got != 50 {
		t.Fatalf("expected unchanged difficulty off-boundary, got %d", got)
	}
}

func TestClassifyBranchAppend(t *testing.T) {
	blk := &Block{Header: BlockHeader{PreviousHash: Hash{1}}}
	action := ClassifyBranch(blk, Hash{1}, 10, true, 9, 10)
	if action != ActionAppend {
		t.Fatalf("expected ActionAppend, got %s", action)
	}
}

func TestClassifyBranchOrphan(t *testing.T) {
	blk := &Block{Header: BlockHeader{PreviousHash: Hash{9}}}
	action := ClassifyBranch(blk, Hash{1}, 10, false, 0, 0)
	if action != ActionOrphan {
		t.Fatalf("expected ActionOrphan, got %s", action)
	}
}

func TestClassifyBranchStoreFork(t *testing.T) {
	blk := &Block{Header: BlockHeader{PreviousHash: Hash{2}}}
	action := ClassifyBranch(blk, Hash{1}, 10, true, 5, 6)
	if action != ActionStoreFork {
		t.Fatalf("expected ActionStoreFork, got %s", action)
	}
}

func TestClassifyBranchReorganize(t *testing.T) {
	blk := &Block{Header: BlockHeader{PreviousHash: Hash{2}}}
	action := ClassifyBranch(blk, Hash{1}, 10, true, 9, 11)
	if action != ActionReorganize {
		t.Fatalf("expected ActionReorganize, got %s", action)
	}
}

func TestClassifyBranchReorgRefused(t *testing.T) {
	blk := &Block{Header: BlockHeader{PreviousHash: Hash{2}}}
	// tipHeight - parentHeight > MaxReorgDepth
	action := ClassifyBranch(blk, Hash{1}, MaxReorgDepth+50, true, 0, MaxReorgDepth+60)
	if action != ActionReorgRefused {
		t.Fatalf("expected ActionReorgRefused, got %s", action)
	}
}
