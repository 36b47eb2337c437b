package core

// mempool.go – the fee-prioritized pending-transaction pool: per-sender
// nonce ordering, fee-density selection for block assembly, and a bounded
// orphan pool for transactions whose nonce is not yet reachable.

import (
	"container/heap"
	"sort"
	"sync"
	"time"
)

const (
	maxPendingPerSender = 100
	maxOrphanPool       = 1000
	orphanTTL           = 10 * time.Minute
)

// ledgerView is the read surface Mempool needs from chain state.
type ledgerView interface {
	BalanceOf(addr Address) uint64
	NonceOf(addr Address) uint64
}

type orphanEntry struct {
	tx      *Transaction
	addedAt time.Time
}

// Mempool holds pending, signature-verified transactions awaiting block
// inclusion, ordered per-sender by nonce and selected for assembly by
// descending fee-density.
type Mempool struct {
	mu sync.Mutex

	ledger  ledgerView
	chainID uint32
	bus     *EventBus

	// bySender holds each sender's pending txs sorted strictly ascending
	// by nonce, starting at (or above) the sender's stored nonce.
	bySender map[Address][]*Transaction
	byHash   map[Hash]*Transaction

	orphansByHash   map[Hash]*orphanEntry
	orphansBySender map[Address][]*Transaction
}

// NewMempool returns an empty pool reading balances/nonces through ledger.
func NewMempool(ledger ledgerView, chainID uint32, bus *EventBus) *Mempool {
	return &Mempool{
		ledger:          ledger,
		chainID:         chainID,
		bus:             bus,
		bySender:        make(map[Address][]*Transaction),
		byHash:          make(map[Hash]*Transaction),
		orphansByHash:   make(map[Hash]*orphanEntry),
		orphansBySender: make(map[Address][]*Transaction),
	}
}

// Admit validates tx and inserts it into the pool (or the orphan pool, if
// its nonce leaves a gap above the sender's stored nonce).
func (m *Mempool) Admit(tx *Transaction) error {
	if tx.IsCoinbase() {
		return validationErr("coinbase transactions are not submitted to the mempool")
	}
	if tx.ChainID != m.chainID {
		return validationErr("chain_id mismatch")
	}
	if err := tx.Validate(m.chainID); err != nil {
		return err
	}
	if err := tx.VerifySignature(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	hash := tx.Hash()
	if _, ok := m.byHash[hash]; ok {
		return validationErr("transaction already admitted")
	}
	if _, ok := m.orphansByHash[hash]; ok {
		return validationErr("transaction already admitted")
	}

	stored := m.ledger.NonceOf(tx.From)
	if tx.Nonce < stored {
		return validationErr("nonce too low")
	}

	fee := MinFee(tx.SizeBytes())
	if tx.Fee < fee {
		return validationErr("fee below minimum")
	}

	pending := m.bySender[tx.From]
	expectNonce := stored
	if len(pending) > 0 {
		expectNonce = pending[len(pending)-1].Nonce + 1
	}
	if tx.Nonce != expectNonce {
		return m.admitOrphan(tx, hash)
	}
	if len(pending) >= maxPendingPerSender {
		return resourceErr("per-sender pending limit reached")
	}

	balance := m.ledger.BalanceOf(tx.From)
	for _, p := range pending {
		cost, _ := checkedAdd(p.Amount, p.Fee)
		if balance < cost {
			balance = 0
			break
		}
		balance -= cost
	}
	cost, ok := checkedAdd(tx.Amount, tx.Fee)
	if !ok || balance < cost {
		return validationErr("insufficient balance")
	}

	m.bySender[tx.From] = append(pending, tx)
	m.byHash[hash] = tx
	m.promoteOrphans(tx.From)
	m.publish(Event{Type: EventTransactionAdmitted, Tx: tx})
	return nil
}

func (m *Mempool) admitOrphan(tx *Transaction, hash Hash) error {
	if len(m.orphansByHash) >= maxOrphanPool {
		m.evictOldestOrphan()
	}
	m.orphansByHash[hash] = &orphanEntry{tx: tx, addedAt: time.Now()}
	list := m.orphansBySender[tx.From]
	list = append(list, tx)
	sort.Slice(list, func(i, j int) bool { return list[i].Nonce < list[j].Nonce })
	m.orphansBySender[tx.From] = list
	return orphanErr("nonce gap: held as orphan")
}

func (m *Mempool) evictOldestOrphan() {
	var oldestHash Hash
	var oldestAt time.Time
	first := true
	for h, e := range m.orphansByHash {
		if first || e.addedAt.Before(oldestAt) {
			oldestHash, oldestAt, first = h, e.addedAt, false
		}
	}
	if !first {
		m.removeOrphan(oldestHash)
	}
}

func (m *Mempool) removeOrphan(hash Hash) {
	e, ok := m.orphansByHash[hash]
	if !ok {
		return
	}
	delete(m.orphansByHash, hash)
	list := m.orphansBySender[e.tx.From]
	for i, t := range list {
		if t.Hash() == hash {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m.orphansBySender, e.tx.From)
	} else {
		m.orphansBySender[e.tx.From] = list
	}
}

// expireOrphans drops orphans older than orphanTTL. Called from
// OnBlockCommitted.
func (m *Mempool) expireOrphans(now time.Time) {
	for h, e := range m.orphansByHash {
		if now.Sub(e.addedAt) > orphanTTL {
			m.removeOrphan(h)
		}
	}
}

// promoteOrphans recursively moves orphaned txs from sender into the main
// pool once the nonce gap above them has been filled.
func (m *Mempool) promoteOrphans(sender Address) {
	for {
		list := m.orphansBySender[sender]
		if len(list) == 0 {
			return
		}
		pending := m.bySender[sender]
		expectNonce := m.ledger.NonceOf(sender)
		if len(pending) > 0 {
			expectNonce = pending[len(pending)-1].Nonce + 1
		}
		if list[0].Nonce != expectNonce {
			return
		}
		if len(pending) >= maxPendingPerSender {
			return
		}
		tx := list[0]
		m.removeOrphan(tx.Hash())
		m.bySender[sender] = append(m.bySender[sender], tx)
		m.byHash[tx.Hash()] = tx
		m.publish(Event{Type: EventTransactionAdmitted, Tx: tx})
	}
}

// senderCursor is a node in the selection heap: a sender with its next
// eligible (lowest unselected nonce) pending transaction.
type senderCursor struct {
	sender Address
	idx    int
	txs    []*Transaction
}

func (c *senderCursor) density() float64 {
	tx := c.txs[c.idx]
	size := tx.SizeBytes()
	if size == 0 {
		return 0
	}
	return float64(tx.Fee) / float64(size)
}

type cursorHeap []*senderCursor

func (h cursorHeap) Len() int            { return len(h) }
func (h cursorHeap) Less(i, j int) bool  { return h[i].density() > h[j].density() }
func (h cursorHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x interface{}) { *h = append(*h, x.(*senderCursor)) }
func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// NextBest returns an ordered batch of pending transactions for block
// assembly: descending fee-density, while keeping each sender's selected
// txs strictly increasing and contiguous from its current stored nonce.
func (m *Mempool) NextBest(maxBytes, maxCount int) []*Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := &cursorHeap{}
	for sender, txs := range m.bySender {
		if len(txs) == 0 {
			continue
		}
		heap.Push(h, &senderCursor{sender: sender, idx: 0, txs: txs})
	}
	heap.Init(h)

	out := make([]*Transaction, 0, maxCount)
	size := 0
	for h.Len() > 0 && len(out) < maxCount {
		c := heap.Pop(h).(*senderCursor)
		tx := c.txs[c.idx]
		txSize := tx.SizeBytes()
		if size+txSize > maxBytes {
			continue
		}
		out = append(out, tx)
		size += txSize
		if c.idx+1 < len(c.txs) {
			c.idx++
			heap.Push(h, c)
		}
	}
	return out
}

// OnBlockCommitted removes included transactions and drops any remaining
// pending transaction whose nonce or balance is now stale, promoting
// orphans where a gap was closed.
func (m *Mempool) OnBlockCommitted(block *Block) {
	m.mu.Lock()
	defer m.mu.Unlock()

	included := make(map[Hash]struct{}, len(block.Transactions))
	senders := make(map[Address]struct{})
	for _, tx := range block.Transactions {
		included[tx.Hash()] = struct{}{}
		if !tx.IsCoinbase() {
			senders[tx.From] = struct{}{}
		}
	}
	for hash := range included {
		if tx, ok := m.byHash[hash]; ok {
			m.removePending(tx)
		}
	}
	for sender := range senders {
		m.reconcileSender(sender)
		m.promoteOrphans(sender)
	}
	m.expireOrphans(time.Now())
}

// OnReorg re-admits transactions from the disconnected branch (best effort;
// failures are dropped, not propagated), then reconciles pool state against
// the newly connected branch's effects.
func (m *Mempool) OnReorg(disconnected, connected []*Block) {
	for _, b := range disconnected {
		for _, tx := range b.Transactions {
			if tx.IsCoinbase() {
				continue
			}
			_ = m.Admit(tx)
		}
	}
	for _, b := range connected {
		m.OnBlockCommitted(b)
	}
}

func (m *Mempool) removePending(tx *Transaction) {
	hash := tx.Hash()
	delete(m.byHash, hash)
	list := m.bySender[tx.From]
	for i, t := range list {
		if t.Hash() == hash {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m.bySender, tx.From)
	} else {
		m.bySender[tx.From] = list
	}
}

// reconcileSender drops a sender's pending transactions starting from the
// first one whose nonce no longer matches the expected sequence, or whose
// cumulative balance requirement is no longer satisfied.
func (m *Mempool) reconcileSender(sender Address) {
	list := m.bySender[sender]
	if len(list) == 0 {
		return
	}
	stored := m.ledger.NonceOf(sender)
	balance := m.ledger.BalanceOf(sender)
	keep := make([]*Transaction, 0, len(list))
	expect := stored
	for _, tx := range list {
		if tx.Nonce != expect {
			delete(m.byHash, tx.Hash())
			continue
		}
		cost, ok := checkedAdd(tx.Amount, tx.Fee)
		if !ok || balance < cost {
			delete(m.byHash, tx.Hash())
			continue
		}
		balance -= cost
		expect++
		keep = append(keep, tx)
	}
	if len(keep) == 0 {
		delete(m.bySender, sender)
	} else {
		m.bySender[sender] = keep
	}
}

// Size returns the number of transactions currently pending (excluding
// orphans).
func (m *Mempool) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, list := range m.bySender {
		n += len(list)
	}
	return n
}

func (m *Mempool) publish(e Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}
