package core

// p2p_types.go – shared P2P data types and connection admission control.
// P2PHost (network.go) and PeerManagement (peer_management.go) both build on
// these; admission limits and demerit scoring live here since they gate
// every inbound/outbound connection regardless of which path created it.

import (
	"net"
	"strings"
	"sync"
	"time"
)

// NodeID is a libp2p peer ID rendered as a string.
type NodeID string

// Peer records what is known locally about a connected remote node.
type Peer struct {
	ID        NodeID
	Addr      string
	Latency   time.Duration
	Conn      net.Conn
	Inbound   bool
	Origin    string // coarse network origin (e.g. ASN or subnet), used for admission diversity
	ConnectedAt time.Time
	Demerits  int
}

// Message is a decoded gossipsub delivery.
type Message struct {
	From  NodeID
	Topic string
	Data  []byte
}

// NetworkConfig configures a P2PHost's listen address, discovery and seeds.
type NetworkConfig struct {
	ListenAddr     string
	BootstrapPeers []string
	DiscoveryTag   string

	MaxInboundPeers     int
	MaxOutboundPeers    int
	MaxPeersPerOrigin   int
	EnableLocalDiscovery bool

	// EnableNATTraversal asks libp2p to map the listen port on any
	// NAT-PMP/UPnP gateway it finds, so inbound gossip dials can reach
	// this node from outside its local network.
	EnableNATTraversal bool
}

// defaultNetworkConfig fills admission limits when a caller leaves them at
// their zero value.
func defaultNetworkConfig(cfg NetworkConfig) NetworkConfig {
	if cfg.MaxInboundPeers <= 0 {
		cfg.MaxInboundPeers = 50
	}
	if cfg.MaxOutboundPeers <= 0 {
		cfg.MaxOutboundPeers = 10
	}
	if cfg.MaxPeersPerOrigin <= 0 {
		cfg.MaxPeersPerOrigin = 5
	}
	return cfg
}

// NetworkMessage is the replication-hook envelope passed to
// HandleNetworkMessage.
type NetworkMessage struct {
	Source    Address `json:"source"`
	Target    Address `json:"target"`
	MsgType   string  `json:"type"`
	Content   []byte  `json:"content"`
	Timestamp int64   `json:"timestamp"`
	Topic     string  `json:"topic,omitempty"`
}

// PeerInfo is the PeerManager-facing view of a connected peer.
type PeerInfo struct {
	Address Address
	RTT     float64
	Updated int64
}

// InboundMsg is a message delivered by PeerManagement.Subscribe.
type InboundMsg struct {
	PeerID  string
	Payload []byte
	Topic   string
	Ts      int64
}

// PeerManager is the capability node.go depends on for peer discovery and
// messaging, implemented by PeerManagement.
type PeerManager interface {
	DiscoverPeers() []PeerInfo
	Connect(addr string) error
	Disconnect(id NodeID) error
	AdvertiseSelf(topic string) error
	Peers() []PeerInfo
	SendAsync(peerID, proto string, code byte, payload []byte) error
	Subscribe(proto string) <-chan InboundMsg
	Unsubscribe(proto string)
}

// admissionError reports why a connection attempt was refused.
type admissionError string

func (e admissionError) Error() string { return string(e) }

const (
	errInboundFull  admissionError = "admission: inbound peer limit reached"
	errOutboundFull admissionError = "admission: outbound peer limit reached"
	errOriginFull   admissionError = "admission: per-origin peer limit reached"
)

const maxDemerits = 10

// admissionControl tracks connection counts against configured limits so a
// single remote network cannot monopolize this node's peer slots.
type admissionControl struct {
	mu           sync.Mutex
	cfg          NetworkConfig
	inboundCount int
	outboundCount int
	perOrigin    map[string]int
}

func newAdmissionControl(cfg NetworkConfig) *admissionControl {
	return &admissionControl{cfg: defaultNetworkConfig(cfg), perOrigin: make(map[string]int)}
}

// Admit decides whether a new connection (inbound or outbound) from the
// given origin may proceed, reserving a slot if so.
func (a *admissionControl) Admit(inbound bool, origin string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if inbound && a.inboundCount >= a.cfg.MaxInboundPeers {
		return errInboundFull
	}
	if !inbound && a.outboundCount >= a.cfg.MaxOutboundPeers {
		return errOutboundFull
	}
	if origin != "" && a.perOrigin[origin] >= a.cfg.MaxPeersPerOrigin {
		return errOriginFull
	}

	if inbound {
		a.inboundCount++
	} else {
		a.outboundCount++
	}
	if origin != "" {
		a.perOrigin[origin]++
	}
	return nil
}

// Release frees the slot reserved by a prior Admit call for a disconnecting
// peer.
func (a *admissionControl) Release(inbound bool, origin string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if inbound && a.inboundCount > 0 {
		a.inboundCount--
	} else if !inbound && a.outboundCount > 0 {
		a.outboundCount--
	}
	if origin != "" && a.perOrigin[origin] > 0 {
		a.perOrigin[origin]--
	}
}

// peerOrigin extracts a coarse origin key (the /24 for IPv4, the /48 for
// IPv6, or the raw host otherwise) from a multiaddress string or host:port
// address, used to spread peer slots across distinct networks rather than
// a single one.
func peerOrigin(addr string) string {
	for _, proto := range []string{"/ip4/", "/ip6/"} {
		if i := strings.Index(addr, proto); i >= 0 {
			rest := addr[i+len(proto):]
			if j := strings.IndexAny(rest, "/ ]"); j >= 0 {
				rest = rest[:j]
			}
			addr = rest
			break
		}
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return host
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return ip.Mask(net.CIDRMask(48, 128)).String()
}
