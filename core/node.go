package core

// node.go – top-level orchestration: wires Ledger, Mempool, EventBus,
// P2P transport and the mining loop into one process lifecycle, and
// exposes the submit/observe surface used by the CLI and any future RPC
// front-end.

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// NodeConfig gathers everything needed to stand up a running node. It is the
// in-process counterpart of the on-disk configuration loaded by
// pkg/config.
type NodeConfig struct {
	Ledger  LedgerConfig
	Network NetworkConfig

	MiningEnabled  bool
	MiningThreads  int
	MiningAddress  Address

	MaxBlockBytes int
	MaxBlockTxs   int
}

func defaultNodeConfig(cfg NodeConfig) NodeConfig {
	if cfg.MaxBlockBytes <= 0 {
		cfg.MaxBlockBytes = 1 << 20
	}
	if cfg.MaxBlockTxs <= 0 {
		cfg.MaxBlockTxs = MaxTxPerBlock - 1 // one slot is taken by the coinbase
	}
	if cfg.MiningThreads <= 0 {
		cfg.MiningThreads = 1
	}
	return cfg
}

// Node is the running process: the account ledger, mempool, P2P transport
// and (optionally) an active miner, all sharing one event bus.
type Node struct {
	cfg NodeConfig

	// instanceID uniquely identifies this running process across restarts,
	// distinct from any P2P peer ID, for correlating logs and metrics with
	// a single invocation.
	instanceID uuid.UUID

	ledger  *Ledger
	mempool *Mempool
	bus     *EventBus
	logger  *logrus.Logger

	net  *transport
	sync *SyncManager

	mineCancel context.CancelFunc
	mu         sync.Mutex
	wg         sync.WaitGroup
}

// transport bundles the P2P host and peer manager so Node can start/stop
// them together.
type transport struct {
	host  *P2PHost
	peers *PeerManagement
}

// NewSovereignNode constructs a node's in-memory and on-disk components
// without starting networking or mining; call Start to bring it fully up.
func NewSovereignNode(cfg NodeConfig, logger *logrus.Logger) (*Node, error) {
	cfg = defaultNodeConfig(cfg)
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	bus := NewEventBus()
	ledger, err := OpenLedger(cfg.Ledger, bus, logger)
	if err != nil {
		return nil, err
	}
	mempool := NewMempool(ledger, cfg.Ledger.ChainID, bus)

	return &Node{
		cfg:        cfg,
		instanceID: uuid.New(),
		ledger:     ledger,
		mempool:    mempool,
		bus:        bus,
		logger:     logger,
	}, nil
}

// InstanceID returns the identifier generated for this process at
// construction time.
func (n *Node) InstanceID() uuid.UUID { return n.instanceID }

// Start brings up the P2P transport and the sync/gossip manager. It does
// not start mining; call StartMining separately.
func (n *Node) Start(ctx context.Context) error {
	netNode, err := NewP2PHost(n.cfg.Network)
	if err != nil {
		return err
	}
	n.net = &transport{host: netNode, peers: NewPeerManagement(netNode)}
	n.sync = NewSyncManager(n.ledger, n.mempool, netNode, n.logger)
	n.logger.WithField("instance_id", n.instanceID).Info("node starting")
	return n.sync.Start(ctx)
}

// Stop tears down mining, then sync and networking, then the underlying
// stores.
func (n *Node) Stop() error {
	n.StopMining()
	if n.sync != nil {
		n.sync.Stop()
	}
	if n.net != nil {
		_ = n.net.host.Close()
	}
	return n.ledger.Close()
}

// Subscribe exposes the node's event stream to external observers (wallet
// APIs, explorers, telemetry).
func (n *Node) Subscribe(bufSize int) (<-chan Event, func()) {
	return n.bus.Subscribe(bufSize)
}

// SubmitTransaction validates and admits tx, re-gossiping it on success.
// The returned hash identifies the transaction for later lookup even if
// Admit placed it in the orphan pool (signaled by a KindOrphan error).
func (n *Node) SubmitTransaction(tx *Transaction) (Hash, error) {
	hash := tx.Hash()
	if err := n.mempool.Admit(tx); err != nil {
		return hash, err
	}
	if n.sync != nil {
		n.sync.BroadcastTransaction(tx)
	}
	return hash, nil
}

// GetBalance returns an address's committed balance.
func (n *Node) GetBalance(addr Address) uint64 { return n.ledger.BalanceOf(addr) }

// GetNonce returns an address's committed nonce.
func (n *Node) GetNonce(addr Address) uint64 { return n.ledger.NonceOf(addr) }

// GetBlockByHash fetches any stored block (canonical or fork), by hash.
func (n *Node) GetBlockByHash(h Hash) (*Block, error) { return n.ledger.GetBlockByHash(h) }

// GetBlockByHeight fetches the canonical block at height.
func (n *Node) GetBlockByHeight(h uint64) (*Block, error) { return n.ledger.GetBlockByHeight(h) }

// GetChainTip returns the current canonical chain tip.
func (n *Node) GetChainTip() (ChainTip, error) { return n.ledger.Tip() }

// StartMining launches the background mining loop, targeting beneficiary
// for coinbase rewards. It is a no-op if mining is already running.
func (n *Node) StartMining(beneficiary Address) {
	n.mu.Lock()
	if n.mineCancel != nil {
		n.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	n.mineCancel = cancel
	n.mu.Unlock()

	n.wg.Add(1)
	go n.miningLoop(ctx, beneficiary)
}

// StopMining cancels the background mining loop and waits for it to exit.
func (n *Node) StopMining() {
	n.mu.Lock()
	cancel := n.mineCancel
	n.mineCancel = nil
	n.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	n.wg.Wait()
}

// miningLoop repeatedly assembles a candidate block atop the current tip,
// searches for a satisfying nonce, and submits the result through the same
// AcceptBlock path inbound blocks take.
func (n *Node) miningLoop(ctx context.Context, beneficiary Address) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		blk, err := n.assembleCandidate(beneficiary)
		if err != nil {
			n.logger.Warnf("mining: failed to assemble candidate: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
				continue
			}
		}

		nonce, err := MineBlock(ctx, blk.Header, n.cfg.MiningThreads)
		if err != nil {
			return // context cancelled
		}
		blk.Header.Nonce = nonce

		action, err := n.ledger.AcceptBlock(blk)
		if err != nil {
			n.logger.Warnf("mining: mined block rejected (%v): %v", action, err)
			continue
		}
		n.mempool.OnBlockCommitted(blk)
		if n.sync != nil {
			n.sync.BroadcastBlock(blk)
		}
	}
}

func (n *Node) assembleCandidate(beneficiary Address) (*Block, error) {
	tip, err := n.ledger.Tip()
	if err != nil {
		return nil, err
	}
	difficulty, err := n.ledger.RequiredDifficulty()
	if err != nil {
		return nil, err
	}
	mtp, err := n.ledger.MedianTimePast()
	if err != nil {
		return nil, err
	}
	timestamp := uint64(time.Now().Unix())
	if timestamp <= mtp {
		timestamp = mtp + 1
	}

	txs := n.mempool.NextBest(n.cfg.MaxBlockBytes, n.cfg.MaxBlockTxs)
	return BuildCandidate(tip.Hash, tip.Height+1, timestamp, difficulty, beneficiary, txs)
}
