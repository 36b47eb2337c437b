package core

// consensus.go – header validation, difficulty retargeting, timestamp
// discipline and chain-selection classification. Block application itself
// (state transition + atomic persistence) lives in ledger.go, which calls
// into this file's verification pipeline before committing.

import (
	"fmt"
	"sort"
	"time"
)

// Consensus holds the pure, stateless-against-storage rules: given a
// candidate block and the chain context Ledger supplies, decide validity and
// classify how it relates to the current tip.
type Consensus struct {
	chainID uint32
}

// NewConsensus returns the consensus engine for the given network chain_id.
func NewConsensus(chainID uint32) *Consensus {
	return &Consensus{chainID: chainID}
}

// MedianTimePast returns the median of the given timestamps (typically the
// last 11 blocks ending at the parent).
func MedianTimePast(timestamps []uint64) uint64 {
	if len(timestamps) == 0 {
		return 0
	}
	sorted := make([]uint64, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}

// ValidateTimestamp enforces: timestamp > MTP(parent), and timestamp <= now
// + MaxFutureDrift.
func ValidateTimestamp(timestamp uint64, parentTimestamps []uint64, now time.Time) error {
	mtp := MedianTimePast(parentTimestamps)
	if timestamp <= mtp {
		return validationErr(fmt.Sprintf("timestamp %d not after median-time-past %d", timestamp, mtp))
	}
	maxFuture := uint64(now.Unix()) + MaxFutureDrift
	if timestamp > maxFuture {
		return validationErr(fmt.Sprintf("timestamp %d exceeds max future drift", timestamp))
	}
	return nil
}

// RetargetDifficulty computes the new difficulty at a retarget boundary,
// given the current difficulty and the timestamps of the window's first and
// last block. actual <= 0 (impossible on a valid chain thanks to MTP rules,
// but handled defensively) is treated as the maximum upward adjustment.
func RetargetDifficulty(current uint32, firstTimestamp, lastTimestamp uint64) uint32 {
	expected := int64(RetargetInterval) * int64(TargetBlockTime)
	actual := int64(lastTimestamp) - int64(firstTimestamp)
	if actual <= 0 {
		actual = expected * MinRetargetFactorNum / MinRetargetFactorDen // smallest actual -> max upward move
		if actual <= 0 {
			actual = 1
		}
	}

	newDiff := int64(current) * expected / actual

	maxUp := int64(current) * MaxRetargetFactorNum / MaxRetargetFactorDen
	maxDown := int64(current) * MinRetargetFactorNum / MinRetargetFactorDen
	if newDiff > maxUp {
		newDiff = maxUp
	}
	if newDiff < maxDown {
		newDiff = maxDown
	}

	if newDiff < int64(MinDifficulty) {
		newDiff = int64(MinDifficulty)
	}
	if newDiff > int64(MaxDifficulty) {
		newDiff = int64(MaxDifficulty)
	}
	return uint32(newDiff)
}

// NextDifficulty decides the difficulty a candidate block at height
// `height` (building on a tip at height-1 with difficulty `current`) must
// meet. It only changes at retarget boundaries.
func (c *Consensus) NextDifficulty(height uint64, current uint32, timestampAtWindowStart, timestampAtTip uint64) uint32 {
	if height == 0 || height%RetargetInterval != 0 {
		return current
	}
	return RetargetDifficulty(current, timestampAtWindowStart, timestampAtTip)
}

// BranchAction classifies how an inbound block relates to the current tip.
type BranchAction uint8

const (
	// ActionAppend: the block extends the current tip directly.
	ActionAppend BranchAction = iota
	// ActionReorganize: the block extends a known ancestor and the
	// resulting branch is longer than the current chain, within bound.
	ActionReorganize
	// ActionOrphan: the block's parent is unknown; held pending.
	ActionOrphan
	// ActionStoreFork: the block extends a known ancestor but the
	// resulting branch is no longer than the current chain; it is kept
	// on disk as a non-canonical fork block in case a later block makes
	// it the longest chain.
	ActionStoreFork
	// ActionReorgRefused: the block would reorganize the chain, but the
	// divergence depth exceeds MaxReorgDepth.
	ActionReorgRefused
	// ActionReject: the block failed structural or contextual validation
	// outright (bad PoW, bad Merkle root, bad timestamp, ...).
	ActionReject
)

func (a BranchAction) String() string {
	switch a {
	case ActionAppend:
		return "append"
	case ActionReorganize:
		return "reorganize"
	case ActionOrphan:
		return "orphan"
	case ActionStoreFork:
		return "store_fork"
	case ActionReorgRefused:
		return "reorg_refused"
	case ActionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// ClassifyBranch decides the action for a structurally-valid inbound block
// given the current tip height/hash, whether the parent is known and at
// what height, and the height of the branch the block would create. It
// assumes the block has already passed ValidateStructure.
func ClassifyBranch(block *Block, tipHash Hash, tipHeight uint64, parentKnown bool, parentHeight uint64, branchHeight uint64) BranchAction {
	if block.Header.PreviousHash == tipHash {
		return ActionAppend
	}
	if !parentKnown {
		return ActionOrphan
	}
	if branchHeight <= tipHeight {
		return ActionStoreFork
	}
	depth := tipHeight - parentHeight
	if depth > MaxReorgDepth {
		return ActionReorgRefused
	}
	return ActionReorganize
}
