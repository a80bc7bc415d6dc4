package core

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/Dyastin-0/fileshare/logger"
	"github.com/Dyastin-0/fileshare/types"
	"github.com/google/uuid"
)

type Config struct {
	Server    ServerConfig
	Client    ClientConfig
	Discovery DiscoveryConfig
}

func DefaultConfig() Config {
	return Config{
		Server:    DefaultServerConfig(),
		Client:    DefaultClientConfig(),
		Discovery: DefaultDiscoveryConfig(),
	}
}

// Node composes the registry, discovery and transfer components and owns
// their lifecycles.
type Node struct {
	ID string

	registry  *Registry
	discovery *Discovery
	server    *Server
	client    *Client
	log       logger.Logger

	mu      sync.Mutex
	running bool
}

func NewNode(cfg Config, log logger.Logger) *Node {
	if log == nil {
		log = logger.Nop()
	}

	id := uuid.NewString()
	log = log.WithStr("node", id)

	registry := NewRegistry()

	return &Node{
		ID:        id,
		registry:  registry,
		discovery: NewDiscovery(cfg.Discovery, log),
		server:    NewServer(cfg.Server, registry, log),
		client:    NewClient(cfg.Client, log),
		log:       log,
	}
}

// Start starts the server and discovery independently. A component that
// failed does not stop the other one; all failures are returned joined.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return ErrAlreadyStarted
	}

	var errs []error

	if err := n.server.Start(); err != nil {
		n.log.WithErr(err).Error("transfer server failed to start")
		errs = append(errs, err)
	}

	if err := n.discovery.Start(); err != nil {
		n.log.WithErr(err).Error("discovery failed to start")
		errs = append(errs, err)
	}

	n.running = len(errs) < 2
	return errors.Join(errs...)
}

// Stop closes the listener, stops discovery, then drains in-flight
// transfers for the drain timeout before force closing them.
func (n *Node) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return
	}

	if err := n.server.Close(); err != nil {
		n.log.WithErr(err).Debug("closing listener")
	}

	n.discovery.Stop()

	if !n.server.Wait(n.server.cfg.DrainTimeout) {
		n.log.Warn("forced shutdown of in-flight transfers")
	}

	n.running = false
	n.log.Info("node stopped")
}

// Addr is the transfer server address, nil when it is not listening.
func (n *Node) Addr() net.Addr {
	return n.server.Addr()
}

func (n *Node) DiscoveryState() DiscoveryState {
	return n.discovery.State()
}

// Client exposes the transfer client, e.g. to set a progress hook.
func (n *Node) Client() *Client {
	return n.client
}

func (n *Node) AddSharedFile(path string) (bool, error) {
	added, err := n.registry.Add(path)
	if err == nil && added {
		n.log.WithStr("path", path).Info("sharing file")
	}
	return added, err
}

func (n *Node) RemoveSharedFile(path string) bool {
	removed := n.registry.Remove(path)
	if removed {
		n.log.WithStr("path", path).Info("stopped sharing file")
	}
	return removed
}

func (n *Node) ListSharedFiles() []types.FileInfo {
	return n.registry.List()
}

// ListDiscoveredPeers returns discovered peers without this host's own
// addresses.
func (n *Node) ListDiscoveredPeers() []types.Peer {
	return WithoutLocal(n.discovery.Peers())
}

func (n *Node) ListPeerFiles(ctx context.Context, addr string) ([]types.FileInfo, error) {
	return n.client.ListPeerFiles(ctx, addr)
}

func (n *Node) FetchFile(ctx context.Context, addr, name string) ([]byte, error) {
	return n.client.FetchFile(ctx, addr, name)
}

func (n *Node) PersistDownload(target string, data []byte) error {
	if err := PersistDownload(target, data); err != nil {
		n.log.WithStr("path", target).WithErr(err).Error("failed to save download")
		return err
	}

	n.log.WithStr("path", target).WithInt("bytes", len(data)).Info("saved download")
	return nil
}

// WithoutLocal drops the peers whose address belongs to this host.
func WithoutLocal(peers []types.Peer) []types.Peer {
	local := localAddrs()

	filtered := make([]types.Peer, 0, len(peers))
	for _, p := range peers {
		if !local[p.IPAddress] {
			filtered = append(filtered, p)
		}
	}

	return filtered
}

func localAddrs() map[string]bool {
	local := map[string]bool{}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return local
	}

	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}

		ip := ipnet.IP
		if v4 := ip.To4(); v4 != nil {
			ip = v4
		}
		local[ip.String()] = true
	}

	return local
}
