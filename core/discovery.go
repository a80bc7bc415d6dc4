package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Dyastin-0/fileshare/logger"
	"github.com/Dyastin-0/fileshare/types"
	"golang.org/x/net/ipv4"
)

const (
	DiscoveryGroup   = "230.0.0.1"
	DiscoveryPort    = 4446
	AnnounceMessage  = "FILE_SHARE_APP"
	AnnounceInterval = 5 * time.Second

	maxDatagramSize = 256
)

type DiscoveryState int32

const (
	StateStopped DiscoveryState = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s DiscoveryState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type DiscoveryConfig struct {
	Group    string
	Port     int
	Message  string
	Interval time.Duration
	TTL      int
}

func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Group:    DiscoveryGroup,
		Port:     DiscoveryPort,
		Message:  AnnounceMessage,
		Interval: AnnounceInterval,
		TTL:      1,
	}
}

// Discovery announces this node on a multicast group and records every
// node it hears. Peers are never expired.
type Discovery struct {
	cfg    DiscoveryConfig
	group  *net.UDPAddr
	marker []byte
	log    logger.Logger

	// mu serializes Start and Stop
	mu    sync.Mutex
	state atomic.Int32
	conn  *net.UDPConn
	stop  chan struct{}
	wg    sync.WaitGroup

	peersMu sync.RWMutex
	peers   map[string]*types.Peer
}

func NewDiscovery(cfg DiscoveryConfig, log logger.Logger) *Discovery {
	if log == nil {
		log = logger.Nop()
	}

	return &Discovery{
		cfg:    cfg,
		group:  &net.UDPAddr{IP: net.ParseIP(cfg.Group), Port: cfg.Port},
		marker: []byte(cfg.Message),
		log:    log.WithStr("component", "discovery"),
		peers:  make(map[string]*types.Peer),
	}
}

func (d *Discovery) State() DiscoveryState {
	return DiscoveryState(d.state.Load())
}

// Start binds the discovery port, joins the group and launches the
// announcer and the listener.
func (d *Discovery) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State() != StateStopped {
		return ErrAlreadyStarted
	}

	if d.group.IP == nil || !d.group.IP.IsMulticast() {
		return fmt.Errorf("invalid discovery group %q", d.cfg.Group)
	}

	d.state.Store(int32(StateStarting))

	conn, err := d.bind()
	if err != nil {
		d.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to bind discovery port %d: %w", d.cfg.Port, err)
	}

	if err := d.join(conn); err != nil {
		conn.Close()
		d.state.Store(int32(StateStopped))
		return err
	}

	d.run(conn)
	return nil
}

// Stop closes the socket, which unblocks both loops, and waits for them.
func (d *Discovery) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State() != StateRunning {
		return
	}

	d.state.Store(int32(StateStopping))
	close(d.stop)

	if err := d.conn.Close(); err != nil {
		d.log.WithErr(err).Debug("closing discovery socket")
	}

	d.wg.Wait()

	d.conn = nil
	d.state.Store(int32(StateStopped))
	d.log.Info("discovery stopped")
}

// Peers returns a copy of the discovered peers ordered by first sighting.
func (d *Discovery) Peers() []types.Peer {
	d.peersMu.RLock()
	peers := make([]types.Peer, 0, len(d.peers))
	for _, p := range d.peers {
		peers = append(peers, *p)
	}
	d.peersMu.RUnlock()

	sort.Slice(peers, func(i, j int) bool {
		if peers[i].FirstSeen.Equal(peers[j].FirstSeen) {
			return peers[i].IPAddress < peers[j].IPAddress
		}
		return peers[i].FirstSeen.Before(peers[j].FirstSeen)
	})

	return peers
}

// LocalAddr is the bound discovery socket address, nil when not running.
func (d *Discovery) LocalAddr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	return d.conn.LocalAddr()
}

func (d *Discovery) bind() (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			if err := c.Control(func(fd uintptr) {
				serr = setReuseAddr(fd)
			}); err != nil {
				return err
			}
			return serr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", d.cfg.Port))
	if err != nil {
		return nil, err
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, errors.New("failed to type assert to UDPConn")
	}

	return conn, nil
}

func (d *Discovery) join(conn *net.UDPConn) error {
	ifaces, err := net.Interfaces()
	if err != nil {
		return err
	}

	p := ipv4.NewPacketConn(conn)
	group := &net.UDPAddr{IP: d.group.IP}

	joined := 0
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}

		if err := p.JoinGroup(iface, group); err != nil {
			d.log.WithStr("iface", iface.Name).WithErr(err).Debug("failed to join discovery group")
			continue
		}

		joined++
	}

	if joined == 0 {
		return ErrNoMulticastInterface
	}

	if err := p.SetMulticastTTL(d.cfg.TTL); err != nil {
		d.log.WithErr(err).Warn("failed to set multicast ttl")
	}
	if err := p.SetMulticastLoopback(true); err != nil {
		d.log.WithErr(err).Warn("failed to enable multicast loopback")
	}

	d.log.WithInt("interfaces", joined).WithStr("group", d.group.String()).Info("joined discovery group")
	return nil
}

// run takes ownership of conn. Callers hold mu.
func (d *Discovery) run(conn *net.UDPConn) {
	d.conn = conn
	d.stop = make(chan struct{})
	d.state.Store(int32(StateRunning))

	d.wg.Add(2)
	go d.announce(conn, d.stop)
	go d.listen(conn)

	d.log.WithStr("addr", conn.LocalAddr().String()).Info("discovery started")
}

func (d *Discovery) stopping() bool {
	return d.State() != StateRunning
}

func (d *Discovery) announce(conn *net.UDPConn, stop <-chan struct{}) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		d.send(conn)

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func (d *Discovery) send(conn *net.UDPConn) {
	_, err := conn.WriteToUDP(d.marker, d.group)
	if err == nil {
		return
	}

	// socket is closing
	if d.stopping() {
		return
	}

	d.log.WithErr(err).Warn("failed to send announcement")
}

func (d *Discovery) listen(conn *net.UDPConn) {
	defer d.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, remoteAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if d.stopping() || errors.Is(err, net.ErrClosed) {
				return
			}

			d.log.WithErr(err).Warn("failed to read announcement")
			continue
		}

		d.handle(buf[:n], remoteAddr.IP)
	}
}

// handle records ip when payload is the announcement marker. It reports
// whether ip was new.
func (d *Discovery) handle(payload []byte, ip net.IP) bool {
	if !bytes.Equal(payload, d.marker) {
		d.log.WithStr("remote", ip.String()).WithInt("bytes", len(payload)).Debug("ignoring foreign datagram")
		return false
	}

	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	key := ip.String()
	now := time.Now()

	d.peersMu.Lock()
	defer d.peersMu.Unlock()

	if p, ok := d.peers[key]; ok {
		p.LastSeen = now
		return false
	}

	d.peers[key] = &types.Peer{
		IPAddress: key,
		FirstSeen: now,
		LastSeen:  now,
	}

	d.log.WithStr("remote", key).Info("discovered peer")
	return true
}
