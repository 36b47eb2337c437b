package core

// ledger.go – wires the storage engine, consensus rules and state
// transition into the `append_block` / `reorganize` contract of §4.3/§4.4.
// All consensus-relevant mutation is serialized through Ledger's mutex,
// matching the single-writer model: readers proceed concurrently against
// the store, which LevelDB itself serves from a consistent snapshot.

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Ledger owns the single on-disk store (blocks, height index, meta, and
// account state all as namespaces within it) and the consensus engine that
// decides what may be written to it.
type Ledger struct {
	mu sync.RWMutex

	store *Store

	consensus *Consensus
	chainID   uint32

	logger *logrus.Logger
	bus    *EventBus
}

// LedgerConfig configures genesis parameters for a freshly initialized
// data directory; ignored when reopening an existing one.
type LedgerConfig struct {
	DataDir           string
	ChainID           uint32
	InitialDifficulty uint32
	GenesisTimestamp  uint64

	// GenesisAllocPath, if set, names a YAML manifest of address/balance
	// pairs credited at height 0. See genesis.go.
	GenesisAllocPath string
}

// OpenLedger opens (or initializes) the store under cfg.DataDir and returns
// a ready Ledger. bus may be nil to disable event publication.
func OpenLedger(cfg LedgerConfig, bus *EventBus, logger *logrus.Logger) (*Ledger, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	store, err := OpenStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		store:     store,
		consensus: NewConsensus(cfg.ChainID),
		chainID:   cfg.ChainID,
		logger:    logger,
		bus:       bus,
	}

	tip, err := store.GetTip()
	if err != nil {
		return nil, err
	}
	if tip.Height == 0 {
		if existing, err := store.GetBlockByHeight(0); err != nil {
			return nil, err
		} else if existing == nil {
			if err := l.writeGenesis(cfg); err != nil {
				return nil, err
			}
		}
	}
	return l, nil
}

func (l *Ledger) writeGenesis(cfg LedgerConfig) error {
	ts := cfg.GenesisTimestamp
	if ts == 0 {
		ts = uint64(time.Now().Unix())
	}
	alloc, err := loadGenesisAlloc(cfg.GenesisAllocPath)
	if err != nil {
		return err
	}
	var totalSupply uint64
	for _, bal := range alloc {
		totalSupply, _ = checkedAdd(totalSupply, bal)
	}

	genesis := &Block{
		Header: BlockHeader{
			Version:      1,
			PreviousHash: Hash{},
			MerkleRoot:   Hash{},
			Timestamp:    ts,
			Difficulty:   cfg.InitialDifficulty,
			Nonce:        0,
		},
	}
	hash := genesis.Hash()
	bt := NewBatch()
	if err := bt.PutBlock(genesis); err != nil {
		return err
	}
	bt.PutHeightIndex(0, hash)
	bt.PutBlockHeight(hash, 0)
	bt.PutTip(ChainTip{Hash: hash, Height: 0, TotalSupply: totalSupply, Difficulty: cfg.InitialDifficulty})
	for addr, bal := range alloc {
		bt.PutBalance(addr, bal)
	}
	return l.store.Write(bt)
}

// Close releases the underlying store.
func (l *Ledger) Close() error {
	return l.store.Close()
}

// Tip returns the current canonical chain tip.
func (l *Ledger) Tip() (ChainTip, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.GetTip()
}

// BalanceOf returns an address's committed balance.
func (l *Ledger) BalanceOf(addr Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, _ := l.store.BalanceOf(addr)
	return b
}

// NonceOf returns an address's committed nonce.
func (l *Ledger) NonceOf(addr Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n, _ := l.store.NonceOf(addr)
	return n
}

// GetBlockByHash fetches any stored block (canonical or fork), by hash.
func (l *Ledger) GetBlockByHash(h Hash) (*Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.GetBlock(h)
}

// GetBlockByHeight fetches the canonical block at height.
func (l *Ledger) GetBlockByHeight(h uint64) (*Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.GetBlockByHeight(h)
}

// RequiredDifficulty returns the difficulty a block built on the current
// tip must meet, for use by the miner when assembling a candidate header.
func (l *Ledger) RequiredDifficulty() (uint32, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tip, err := l.store.GetTip()
	if err != nil {
		return 0, err
	}
	tipBlock, err := l.store.GetBlockByHeight(tip.Height)
	if err != nil {
		return 0, err
	}
	if tipBlock == nil {
		return 0, fmt.Errorf("tip block missing at height %d", tip.Height)
	}
	return l.computeNextDifficulty(tipBlock, tip.Height)
}

// MedianTimePast returns the median-time-past ending at the current tip,
// for use by the miner when choosing a candidate timestamp.
func (l *Ledger) MedianTimePast() (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tip, err := l.store.GetTip()
	if err != nil {
		return 0, err
	}
	tipBlock, err := l.store.GetBlockByHeight(tip.Height)
	if err != nil {
		return 0, err
	}
	if tipBlock == nil {
		return 0, fmt.Errorf("tip block missing at height %d", tip.Height)
	}
	timestamps, err := l.timestampsEndingAt(tipBlock, tip.Height)
	if err != nil {
		return 0, err
	}
	return MedianTimePast(timestamps), nil
}

type ledgerStateView struct{ s *Store }

func (v ledgerStateView) BalanceOf(a Address) (uint64, error) { return v.s.BalanceOf(a) }
func (v ledgerStateView) NonceOf(a Address) (uint64, error)   { return v.s.NonceOf(a) }

// AcceptBlock validates and, depending on how it relates to the current
// tip, appends, reorganizes onto, orphans, stores as a non-canonical
// fork, or refuses blk. The returned BranchAction tells the caller
// (gossip/sync layer) what happened and whether to request a parent or
// demerit the sender.
func (l *Ledger) AcceptBlock(blk *Block) (BranchAction, error) {
	if err := blk.ValidateStructure(l.chainID); err != nil {
		return ActionReject, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tip, err := l.store.GetTip()
	if err != nil {
		return 0, err
	}
	parentHash := blk.Header.PreviousHash
	parentHeight, parentKnown, err := l.store.GetBlockHeight(parentHash)
	if err != nil {
		return 0, err
	}
	branchHeight := parentHeight + 1

	if err := l.validateAgainstParent(blk, parentHeight, parentKnown); err != nil {
		if KindOf(err) == KindOrphan {
			return ActionOrphan, err
		}
		return ActionReject, err
	}

	action := ClassifyBranch(blk, tip.Hash, tip.Height, parentKnown, parentHeight, branchHeight)
	switch action {
	case ActionAppend:
		return action, l.appendAtTip(blk, tip)
	case ActionReorganize:
		return action, l.reorganize(blk, parentHeight, tip)
	case ActionReorgRefused:
		return action, NewError(KindReorgRefused, "reorg exceeds maximum depth", nil)
	case ActionOrphan:
		return action, orphanErr("parent block unknown")
	case ActionStoreFork:
		return action, l.storeForkBlock(blk, branchHeight)
	default:
		return action, fmt.Errorf("unreachable branch action %d", action)
	}
}

// validateAgainstParent checks the rules that require knowing the parent's
// position: difficulty target and timestamp discipline. Orphans (unknown
// parent) skip this and are revalidated once the parent arrives.
func (l *Ledger) validateAgainstParent(blk *Block, parentHeight uint64, parentKnown bool) error {
	if !parentKnown {
		return nil
	}
	// Fetch the parent by hash: when it is a stored fork block, the
	// canonical block at its height is a different block.
	parentBlock, err := l.store.GetBlock(blk.Header.PreviousHash)
	if err != nil {
		return err
	}
	if parentBlock == nil {
		return orphanErr("parent block unknown")
	}

	timestamps, err := l.timestampsEndingAt(parentBlock, parentHeight)
	if err != nil {
		return err
	}
	if err := ValidateTimestamp(blk.Header.Timestamp, timestamps, time.Now()); err != nil {
		return err
	}

	wantDiff, err := l.computeNextDifficulty(parentBlock, parentHeight)
	if err != nil {
		return err
	}
	if blk.Header.Difficulty != wantDiff {
		return validationErr(fmt.Sprintf("difficulty mismatch: got %d want %d", blk.Header.Difficulty, wantDiff))
	}
	return nil
}

// computeNextDifficulty returns the difficulty required of the block built
// on top of parentBlock (at parentHeight), walking parentBlock's own
// ancestry (rather than the height index) so that candidate blocks on a
// not-yet-canonical fork are validated against that fork's own history.
func (l *Ledger) computeNextDifficulty(parentBlock *Block, parentHeight uint64) (uint32, error) {
	nextHeight := parentHeight + 1
	if nextHeight%RetargetInterval != 0 {
		return parentBlock.Header.Difficulty, nil
	}
	cur := parentBlock
	for i := uint64(0); i < RetargetInterval; i++ {
		prev, err := l.store.GetBlock(cur.Header.PreviousHash)
		if err != nil {
			return 0, err
		}
		if prev == nil {
			return parentBlock.Header.Difficulty, nil
		}
		cur = prev
	}
	return RetargetDifficulty(parentBlock.Header.Difficulty, cur.Header.Timestamp, parentBlock.Header.Timestamp), nil
}

// timestampsEndingAt walks up to MedianTimePastWindow ancestors of block,
// following PreviousHash (so a fork block uses its own branch), ending at
// (height, block) for MTP computation. It falls back to the
// single known block's timestamp near genesis.
func (l *Ledger) timestampsEndingAt(block *Block, height uint64) ([]uint64, error) {
	out := []uint64{block.Header.Timestamp}
	cur := block
	h := height
	for len(out) < MedianTimePastWindow && h > 0 {
		h--
		prev, err := l.store.GetBlock(cur.Header.PreviousHash)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			break
		}
		out = append(out, prev.Header.Timestamp)
		cur = prev
	}
	return out, nil
}

func (l *Ledger) storeForkBlock(blk *Block, height uint64) error {
	bt := NewBatch()
	if err := bt.PutBlock(blk); err != nil {
		return err
	}
	bt.PutBlockHeight(blk.Hash(), height)
	return l.store.Write(bt)
}

func (l *Ledger) appendAtTip(blk *Block, tip ChainTip) error {
	height := tip.Height + 1
	result, err := ApplyBlock(ledgerStateView{l.store}, blk, height, tip.TotalSupply)
	if err != nil {
		return err
	}

	bt := NewBatch()
	if err := bt.PutBlock(blk); err != nil {
		return err
	}
	hash := blk.Hash()
	bt.PutHeightIndex(height, hash)
	bt.PutBlockHeight(hash, height)
	bt.PutTip(ChainTip{Hash: hash, Height: height, TotalSupply: result.supply, Difficulty: blk.Header.Difficulty})
	for a, b := range result.balances {
		bt.PutBalance(a, b)
	}
	for a, n := range result.nonces {
		bt.PutNonce(a, n)
	}
	if err := l.store.Write(bt); err != nil {
		return err
	}

	l.publish(Event{Type: EventBlockAccepted, Block: blk, Height: height})
	l.publish(Event{Type: EventTipAdvanced, Height: height, Hash: hash})
	return nil
}

// reorganize replays the branch ending at blk onto the chain, rolling the
// canonical chain back to the fork point first. Account state is rebuilt
// by full replay from genesis along the new canonical chain: the store
// keeps no per-block undo log, so this is the simplest construction that
// is correct regardless of which accounts the abandoned branch touched.
func (l *Ledger) reorganize(blk *Block, parentHeight uint64, tip ChainTip) error {
	forkHeight, branch, err := l.collectForkBranch(blk, parentHeight)
	if err != nil {
		return err
	}
	depth := tip.Height - forkHeight
	if depth > MaxReorgDepth {
		return NewError(KindReorgRefused, "reorg exceeds maximum depth", nil)
	}

	bt := NewBatch()
	newHeight := forkHeight
	for _, b := range branch {
		newHeight++
		if err := bt.PutBlock(b); err != nil {
			return err
		}
		h := b.Hash()
		bt.PutHeightIndex(newHeight, h)
		bt.PutBlockHeight(h, newHeight)
	}

	balances := make(map[Address]uint64)
	nonces := make(map[Address]uint64)
	var supply uint64
	for h := uint64(1); h <= forkHeight; h++ {
		b, err := l.store.GetBlockByHeight(h)
		if err != nil {
			return err
		}
		res, err := ApplyBlock(mapStateView{balances, nonces}, b, h, supply)
		if err != nil {
			return NewError(KindFatal, "previously-committed block failed replay", err)
		}
		mergeResult(balances, nonces, res)
		supply = res.supply
	}
	h := forkHeight
	for _, b := range branch {
		h++
		res, err := ApplyBlock(mapStateView{balances, nonces}, b, h, supply)
		if err != nil {
			return err
		}
		mergeResult(balances, nonces, res)
		supply = res.supply
	}

	newTip := blk.Hash()
	bt.PutTip(ChainTip{Hash: newTip, Height: newHeight, TotalSupply: supply, Difficulty: blk.Header.Difficulty})
	if err := l.store.StageStateReset(bt, balances, nonces); err != nil {
		return err
	}
	if err := l.store.Write(bt); err != nil {
		return err
	}

	l.publish(Event{Type: EventReorganized, RollbackDepth: depth, Height: newHeight, Hash: newTip})
	l.publish(Event{Type: EventTipAdvanced, Height: newHeight, Hash: newTip})
	return nil
}

// collectForkBranch walks back from blk along PreviousHash to the most
// recent ancestor that is canonical at its recorded height, returning that
// ancestor's height and the branch from just after it through blk,
// oldest-first.
func (l *Ledger) collectForkBranch(blk *Block, parentHeight uint64) (uint64, []*Block, error) {
	branch := []*Block{blk}
	cur := blk
	height := parentHeight
	for {
		canonHash, ok, err := l.store.GetCanonicalHash(height)
		if err != nil {
			return 0, nil, err
		}
		parent, err := l.store.GetBlock(cur.Header.PreviousHash)
		if err != nil {
			return 0, nil, err
		}
		if parent == nil {
			return 0, nil, orphanErr("fork ancestor missing")
		}
		if ok && canonHash == parent.Hash() {
			reversed := make([]*Block, len(branch))
			for i, b := range branch {
				reversed[len(branch)-1-i] = b
			}
			return height, reversed, nil
		}
		branch = append(branch, parent)
		cur = parent
		if height == 0 {
			return 0, nil, orphanErr("fork point not found")
		}
		height--
	}
}

type mapStateView struct {
	balances map[Address]uint64
	nonces   map[Address]uint64
}

func (v mapStateView) BalanceOf(a Address) (uint64, error) { return v.balances[a], nil }
func (v mapStateView) NonceOf(a Address) (uint64, error)   { return v.nonces[a], nil }

func mergeResult(balances, nonces map[Address]uint64, res *applyResult) {
	for a, b := range res.balances {
		balances[a] = b
	}
	for a, n := range res.nonces {
		nonces[a] = n
	}
}

func (l *Ledger) publish(e Event) {
	if l.bus != nil {
		l.bus.Publish(e)
	}
}
