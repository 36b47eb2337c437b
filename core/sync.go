package core

// sync.go – header-and-block synchronization and gossip relay. On startup
// and whenever a peer advertises a higher tip, missing ranges are pulled in
// batches and validated through the full consensus pipeline before being
// applied; newly accepted local or remote blocks and admitted transactions
// are re-gossiped to every other connected peer.

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// gossipNode is the narrow capability SyncManager needs from the P2P
// transport: publish to a topic, subscribe to it, and demerit a peer that
// sent invalid data.
type gossipNode interface {
	Broadcast(topic string, data []byte) error
	Subscribe(topic string) (<-chan Message, error)
	Demerit(id NodeID)
}

// SyncManager drives chain-tip probing, block sync and gossip relay for one
// node. It owns no chain state itself — all mutation goes through Ledger
// and Mempool, which remain the single writers.
type SyncManager struct {
	ledger  *Ledger
	mempool *Mempool
	node    gossipNode
	dedup   *GossipDedup
	logger  *logrus.Logger

	batchSize   int
	concurrency int

	peerTips map[string]ChainTip
	mu       sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSyncManager wires a sync manager for ledger/mempool over node.
func NewSyncManager(ledger *Ledger, mempool *Mempool, node gossipNode, logger *logrus.Logger) *SyncManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SyncManager{
		ledger:      ledger,
		mempool:     mempool,
		node:        node,
		dedup:       NewGossipDedup(10 * time.Minute),
		logger:      logger,
		batchSize:   DefaultSyncBatchSize,
		concurrency: DefaultSyncConcurrency,
		peerTips:    make(map[string]ChainTip),
	}
}

// Start subscribes to the block and transaction gossip topics and begins
// the periodic tip-probing loop. It returns once subscriptions succeed;
// processing continues in background goroutines until Stop is called.
func (s *SyncManager) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	blockCh, err := s.node.Subscribe(TopicBlocks)
	if err != nil {
		cancel()
		return err
	}
	txCh, err := s.node.Subscribe(TopicTransactions)
	if err != nil {
		cancel()
		return err
	}

	s.wg.Add(3)
	go s.consumeBlocks(ctx, blockCh)
	go s.consumeTransactions(ctx, txCh)
	go s.probeLoop(ctx)
	return nil
}

// Stop cancels background processing and waits for it to exit.
func (s *SyncManager) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SyncManager) consumeBlocks(ctx context.Context, ch <-chan Message) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleBlockTopic(msg)
		}
	}
}

func (s *SyncManager) consumeTransactions(ctx context.Context, ch <-chan Message) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleTxTopic(msg)
		}
	}
}

func (s *SyncManager) handleBlockTopic(msg Message) {
	var pm ProtocolMessage
	if err := json.Unmarshal(msg.Data, &pm); err != nil {
		return
	}
	switch pm.Kind {
	case MsgNewBlock:
		if pm.Block == nil {
			return
		}
		if s.dedup.SeenOrMark(pm.Block.Hash()) {
			return
		}
		s.acceptAndRelay(pm.Block, string(msg.From))
	case MsgChainTip:
		if pm.ChainTip == nil {
			return
		}
		s.mu.Lock()
		s.peerTips[string(msg.From)] = *pm.ChainTip
		s.mu.Unlock()
		s.maybeSync(pm.ChainTip.Height)
	case MsgGetChainTip:
		tip, err := s.ledger.Tip()
		if err != nil {
			return
		}
		reply := ProtocolMessage{Kind: MsgChainTip, ChainTip: &tip}
		data, _ := json.Marshal(reply)
		_ = s.node.Broadcast(TopicBlocks, data)
	case MsgGetBlocks:
		s.serveGetBlocks(pm)
	case MsgBlocks:
		for _, b := range pm.Blocks {
			if s.dedup.SeenOrMark(b.Hash()) {
				continue
			}
			s.acceptAndRelay(b, string(msg.From))
		}
	}
}

func (s *SyncManager) handleTxTopic(msg Message) {
	var pm ProtocolMessage
	if err := json.Unmarshal(msg.Data, &pm); err != nil {
		return
	}
	if pm.Kind != MsgNewTx || pm.Tx == nil {
		return
	}
	if s.dedup.SeenOrMark(pm.Tx.Hash()) {
		return
	}
	if err := s.mempool.Admit(pm.Tx); err != nil {
		if KindOf(err) == KindValidation {
			s.node.Demerit(msg.From)
		}
		return
	}
	s.relayTx(pm.Tx)
}

// acceptAndRelay runs a remote block through the full consensus pipeline
// and, if accepted, reconciles the mempool and re-gossips it.
func (s *SyncManager) acceptAndRelay(b *Block, from string) {
	action, err := s.ledger.AcceptBlock(b)
	if err != nil {
		kind := KindOf(err)
		if kind != KindOrphan {
			s.logger.WithFields(logrus.Fields{"peer": from, "action": action}).Warnf("rejected inbound block: %v", err)
		}
		if kind == KindValidation {
			s.node.Demerit(NodeID(from))
		}
		return
	}
	if action == ActionAppend || action == ActionReorganize {
		s.mempool.OnBlockCommitted(b)
		s.relayBlock(b)
	}
}

func (s *SyncManager) relayBlock(b *Block) {
	data, _ := json.Marshal(ProtocolMessage{Kind: MsgNewBlock, Block: b})
	_ = s.node.Broadcast(TopicBlocks, data)
}

func (s *SyncManager) relayTx(tx *Transaction) {
	data, _ := json.Marshal(ProtocolMessage{Kind: MsgNewTx, Tx: tx})
	_ = s.node.Broadcast(TopicTransactions, data)
}

// BroadcastBlock re-gossips a locally-mined block once it has been
// accepted by the ledger.
func (s *SyncManager) BroadcastBlock(b *Block) { s.relayBlock(b) }

// BroadcastTransaction re-gossips a locally-submitted transaction once
// admitted to the mempool.
func (s *SyncManager) BroadcastTransaction(tx *Transaction) { s.relayTx(tx) }

func (s *SyncManager) serveGetBlocks(pm ProtocolMessage) {
	max := pm.MaxBlocks
	if max <= 0 || max > s.batchSize {
		max = s.batchSize
	}
	blocks := make([]*Block, 0, max)
	for h := pm.StartHeight; h < pm.StartHeight+uint64(max); h++ {
		b, err := s.ledger.GetBlockByHeight(h)
		if err != nil || b == nil {
			break
		}
		blocks = append(blocks, b)
	}
	if len(blocks) == 0 {
		return
	}
	data, _ := json.Marshal(ProtocolMessage{Kind: MsgBlocks, Blocks: blocks})
	_ = s.node.Broadcast(TopicBlocks, data)
}

// probeLoop asks peers for their chain tip once at startup and then every
// 30 seconds, driving the sync algorithm's trigger condition.
func (s *SyncManager) probeLoop(ctx context.Context) {
	defer s.wg.Done()
	probe := func() {
		data, _ := json.Marshal(ProtocolMessage{Kind: MsgGetChainTip})
		_ = s.node.Broadcast(TopicBlocks, data)
	}
	probe()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

// maybeSync requests the next batch of missing blocks if a peer's
// advertised height exceeds our own.
func (s *SyncManager) maybeSync(peerHeight uint64) {
	tip, err := s.ledger.Tip()
	if err != nil || peerHeight <= tip.Height {
		return
	}
	req := ProtocolMessage{Kind: MsgGetBlocks, StartHeight: tip.Height + 1, MaxBlocks: s.batchSize}
	data, _ := json.Marshal(req)
	_ = s.node.Broadcast(TopicBlocks, data)
}
