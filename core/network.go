package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"
)

// P2PHost is a gossipsub-connected libp2p host plus the peer bookkeeping and
// admission control sovereignd layers on top of it.
type P2PHost struct {
	host      host.Host
	pubsub    *pubsub.PubSub
	topics    map[string]*pubsub.Topic
	subs      map[string]*pubsub.Subscription
	topicLock sync.RWMutex
	subLock   sync.RWMutex
	peerLock  sync.RWMutex
	peers     map[NodeID]*Peer
	admission *admissionControl
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       NetworkConfig
}

// NewP2PHost creates and bootstraps a P2P node: a libp2p host, a gossipsub
// router, bootstrap dialing and (when enabled) mDNS local discovery.
func NewP2PHost(cfg NetworkConfig) (*P2PHost, error) {
	cfg = defaultNetworkConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())

	opts := []libp2p.Option{libp2p.ListenAddrStrings(cfg.ListenAddr)}
	if cfg.EnableNATTraversal {
		opts = append(opts, libp2p.NATPortMap())
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("failed to create pubsub: %w", err)
	}

	n := &P2PHost{
		host:      h,
		pubsub:    ps,
		topics:    make(map[string]*pubsub.Topic),
		subs:      make(map[string]*pubsub.Subscription),
		peers:     make(map[NodeID]*Peer),
		admission: newAdmissionControl(cfg),
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
	}

	if err := n.DialSeed(cfg.BootstrapPeers); err != nil {
		logrus.Warnf("DialSeed warning: %v", err)
	}

	if cfg.EnableLocalDiscovery {
		mdns.NewMdnsService(h, cfg.DiscoveryTag, n)
	}

	return n, nil
}

// Ensure P2PHost implements mdns.Notifee
var _ mdns.Notifee = (*P2PHost)(nil)

// HandlePeerFound implements mdns.Notifee: connect to discovered peer.
// It ignores self-connections and avoids duplicating existing peers.
func (n *P2PHost) HandlePeerFound(info peer.AddrInfo) {
	// Ignore discovery of our own host
	if info.ID == n.host.ID() {
		return
	}

	// Skip if we already know this peer
	n.peerLock.RLock()
	_, exists := n.peers[NodeID(info.ID.String())]
	n.peerLock.RUnlock()
	if exists {
		return
	}

	origin := peerOrigin(info.String())
	if err := n.admission.Admit(true, origin); err != nil {
		logrus.Debugf("refused mDNS peer %s: %v", info.ID.String(), err)
		return
	}
	if err := n.host.Connect(n.ctx, info); err != nil {
		n.admission.Release(true, origin)
		logrus.Warnf("Failed to connect to discovered peer %s: %v", info.ID.String(), err)
		return
	}

	n.peerLock.Lock()
	n.peers[NodeID(info.ID.String())] = &Peer{ID: NodeID(info.ID.String()), Addr: info.String(), Inbound: true, Origin: origin, ConnectedAt: time.Now()}
	n.peerLock.Unlock()
	logrus.Infof("Connected to peer %s via mDNS", info.ID.String())
}

// DialSeed connects to a list of bootstrap peers, counted against the
// outbound admission limit.
func (n *P2PHost) DialSeed(seeds []string) error {
	var errs []string
	for _, addr := range seeds {
		pi, err := peer.AddrInfoFromString(addr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid addr %s: %v", addr, err))
			continue
		}
		origin := peerOrigin(addr)
		if err := n.admission.Admit(false, origin); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", addr, err))
			continue
		}
		if err := n.host.Connect(n.ctx, *pi); err != nil {
			n.admission.Release(false, origin)
			errs = append(errs, fmt.Sprintf("connect %s: %v", addr, err))
			continue
		}
		n.peerLock.Lock()
		n.peers[NodeID(pi.ID.String())] = &Peer{ID: NodeID(pi.ID.String()), Addr: addr, Origin: origin, ConnectedAt: time.Now()}
		n.peerLock.Unlock()
		logrus.Infof("Bootstrapped to %s", addr)
	}
	if len(errs) > 0 {
		return fmt.Errorf("dial errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Global replication store (can be swapped out for DB or network broadcast later)
var replicatedMessages = make(map[string][][]byte)
var replicatedMu sync.RWMutex

// GetReplicatedMessages returns a copy of all replicated payloads for the given topic.
// The returned slice and its contents are safe for modification by the caller.
func GetReplicatedMessages(topic string) [][]byte {
	replicatedMu.RLock()
	msgs := replicatedMessages[topic]
	replicatedMu.RUnlock()
	out := make([][]byte, len(msgs))
	for i, m := range msgs {
		out[i] = append([]byte(nil), m...)
	}
	return out
}

// ClearReplicatedMessages resets the in-memory replication store. Primarily intended for tests.
func ClearReplicatedMessages() {
	replicatedMu.Lock()
	defer replicatedMu.Unlock()
	replicatedMessages = make(map[string][][]byte)
}

// BroadcasterFunc defines the signature for the global broadcaster.
type BroadcasterFunc func(topic string, data []byte) error

var (
	broadcastMu   sync.RWMutex
	broadcastHook BroadcasterFunc
)

// SetBroadcaster sets the global broadcast hook used by package-level Broadcast.
// Pass nil to disable broadcasting.
func SetBroadcaster(fn BroadcasterFunc) {
	broadcastMu.Lock()
	broadcastHook = fn
	broadcastMu.Unlock()
}

// Broadcast sends data using the configured broadcaster.
func Broadcast(topic string, data []byte) error {
	broadcastMu.RLock()
	fn := broadcastHook
	broadcastMu.RUnlock()
	if fn == nil {
		return fmt.Errorf("network: broadcaster not set")
	}
	return fn(topic, data)
}

// HandleNetworkMessage handles incoming network messages and replicates them.
func HandleNetworkMessage(msg NetworkMessage) {
	logrus.Debugf("replicating message on topic %s: %x", msg.Topic, msg.Content)

	replicatedMu.Lock()
	replicatedMessages[msg.Topic] = append(replicatedMessages[msg.Topic], msg.Content)
	replicatedMu.Unlock()

	// Additional hooks can be triggered here: persist to disk, gossip to peers, etc.
}

func (n *P2PHost) Broadcast(topic string, data []byte) error {
	n.topicLock.Lock()
	t, ok := n.topics[topic]
	if !ok {
		var err error
		t, err = n.pubsub.Join(topic)
		if err != nil {
			n.topicLock.Unlock()
			return fmt.Errorf("join topic %s: %w", topic, err)
		}
		n.topics[topic] = t
	}
	n.topicLock.Unlock()
	if err := t.Publish(n.ctx, data); err != nil {
		return fmt.Errorf("publish topic %s: %w", topic, err)
	}

	// Optional replication hook
	HandleNetworkMessage(NetworkMessage{Topic: topic, Content: data})
	return nil
}

// BroadcastOrphanBlock sends a serialised orphan block across the network.
func (n *P2PHost) BroadcastOrphanBlock(b *Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return n.Broadcast("orphan-block", data)
}

// SubscribeOrphanBlocks subscribes to the orphan-block topic and decodes blocks.
func (n *P2PHost) SubscribeOrphanBlocks() (<-chan *Block, error) {
	ch, err := n.Subscribe("orphan-block")
	if err != nil {
		return nil, err
	}
	out := make(chan *Block)
	go func() {
		for msg := range ch {
			var b Block
			if err := json.Unmarshal(msg.Data, &b); err == nil {
				out <- &b
			}
		}
		close(out)
	}()
	return out, nil
}

// Subscribe listens for messages on a topic.
func (n *P2PHost) Subscribe(topic string) (<-chan Message, error) {
	n.subLock.Lock()
	sub, ok := n.subs[topic]
	if !ok {
		var err error
		sub, err = n.pubsub.Subscribe(topic)
		if err != nil {
			n.subLock.Unlock()
			return nil, fmt.Errorf("subscribe topic %s: %w", topic, err)
		}
		n.subs[topic] = sub
	}
	n.subLock.Unlock()
	out := make(chan Message)
	go func() {
		for {
			msg, err := sub.Next(n.ctx)
			if err != nil {
				logrus.Warnf("subscription next error: %v", err)
				close(out)
				return
			}
			out <- Message{From: NodeID(msg.GetFrom().String()), Topic: topic, Data: msg.Data}
		}
	}()
	return out, nil
}

// ListenAndServe blocks until context cancellation (serve as long-lived process).
func (n *P2PHost) ListenAndServe() {
	<-n.ctx.Done()
	logrus.Info("Network node shutting down")
}

// Close tears down the node, closing host and context.
func (n *P2PHost) Close() error {
	n.cancel()
	return n.host.Close()
}

// Demerit penalizes a peer for protocol misbehavior (an invalid block or
// transaction), disconnecting and freeing its admission slot once the
// accumulated score crosses maxDemerits.
func (n *P2PHost) Demerit(id NodeID) {
	n.peerLock.Lock()
	p, ok := n.peers[id]
	if !ok {
		n.peerLock.Unlock()
		return
	}
	p.Demerits++
	disconnect := p.Demerits >= maxDemerits
	n.peerLock.Unlock()

	if !disconnect {
		return
	}
	pid, err := peer.Decode(string(id))
	if err == nil {
		_ = n.host.Network().ClosePeer(pid)
	}
	n.peerLock.Lock()
	delete(n.peers, id)
	n.peerLock.Unlock()
	n.admission.Release(p.Inbound, p.Origin)
	logrus.Warnf("disconnected peer %s after exceeding demerit threshold", id)
}

// Peers returns the current peer list.
func (n *P2PHost) Peers() []*Peer {
	n.peerLock.RLock()
	defer n.peerLock.RUnlock()
	list := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		list = append(list, p)
	}
	return list
}

