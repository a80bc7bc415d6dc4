package core

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Dyastin-0/fileshare/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNodeConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.DrainTimeout = time.Second
	cfg.Client.DialTimeout = time.Second
	cfg.Client.IOTimeout = 2 * time.Second
	cfg.Discovery = testDiscoveryConfig(t)
	return cfg
}

// startNode starts n, tolerating hosts without a multicast interface.
func startNode(t *testing.T, n *Node) {
	t.Helper()

	if err := n.Start(); err != nil {
		require.ErrorIs(t, err, ErrNoMulticastInterface)
	}
	require.NotNil(t, n.Addr())

	t.Cleanup(n.Stop)
}

func TestNodeFetchSharedFile(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 1024)
	for i := range content {
		content[i] = byte(i % 251)
	}
	path := writeFile(t, dir, "report.pdf", content)

	peerA := NewNode(testNodeConfig(t), nil)
	startNode(t, peerA)

	added, err := peerA.AddSharedFile(path)
	require.NoError(t, err)
	assert.True(t, added)

	peerB := NewNode(testNodeConfig(t), nil)
	addr := peerA.Addr().String()

	files, err := peerB.ListPeerFiles(t.Context(), addr)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "report.pdf", files[0].Name)
	assert.Equal(t, int64(1024), files[0].Size)

	data, err := peerB.FetchFile(t.Context(), addr, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, content, data)

	out := filepath.Join(t.TempDir(), "downloads", "report.pdf")
	require.NoError(t, peerB.PersistDownload(out, data))

	saved, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, content, saved)
}

func TestNodeFetchMissingFile(t *testing.T) {
	peerA := NewNode(testNodeConfig(t), nil)
	startNode(t, peerA)

	_, err := peerA.AddSharedFile(writeFile(t, t.TempDir(), "report.pdf", []byte("x")))
	require.NoError(t, err)

	peerB := NewNode(testNodeConfig(t), nil)

	data, err := peerB.FetchFile(t.Context(), peerA.Addr().String(), "missing.txt")
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.Nil(t, data)
}

func TestNodeUnreachablePeer(t *testing.T) {
	peerB := NewNode(testNodeConfig(t), nil)
	addr := closedPort(t)

	start := time.Now()

	files, err := peerB.ListPeerFiles(t.Context(), addr)
	assert.ErrorIs(t, err, ErrPeerUnreachable)
	assert.Empty(t, files)

	_, err = peerB.FetchFile(t.Context(), addr, "report.pdf")
	assert.ErrorIs(t, err, ErrPeerUnreachable)

	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestNodeSharedFileLifecycle(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", []byte("aaa"))
	b := writeFile(t, dir, "b.txt", []byte("b"))

	n := NewNode(testNodeConfig(t), nil)

	for _, p := range []string{a, b, a} {
		_, err := n.AddSharedFile(p)
		require.NoError(t, err)
	}

	files := n.ListSharedFiles()
	require.Len(t, files, 2)
	assert.Equal(t, "a.txt", files[0].Name)
	assert.Equal(t, "b.txt", files[1].Name)

	assert.True(t, n.RemoveSharedFile(a))
	assert.False(t, n.RemoveSharedFile(a))

	files = n.ListSharedFiles()
	require.Len(t, files, 1)
	assert.Equal(t, "b.txt", files[0].Name)
}

func TestNodeFiltersOwnAddresses(t *testing.T) {
	n := NewNode(testNodeConfig(t), nil)

	n.discovery.handle([]byte(AnnounceMessage), net.IPv4(127, 0, 0, 1))
	n.discovery.handle([]byte(AnnounceMessage), net.ParseIP("203.0.113.9"))

	peers := n.ListDiscoveredPeers()
	require.Len(t, peers, 1)
	assert.Equal(t, "203.0.113.9", peers[0].IPAddress)

	// the raw discovery table keeps both
	assert.Len(t, n.discovery.Peers(), 2)
}

func TestNodeStartStop(t *testing.T) {
	n := NewNode(testNodeConfig(t), nil)
	require.NotEmpty(t, n.ID)

	if err := n.Start(); err != nil {
		require.ErrorIs(t, err, ErrNoMulticastInterface)
	}
	assert.ErrorIs(t, n.Start(), ErrAlreadyStarted)

	addr := n.Addr().String()

	done := make(chan struct{})
	go func() {
		n.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("node did not stop")
	}

	assert.Nil(t, n.Addr())
	assert.Equal(t, StateStopped, n.DiscoveryState())

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)

	n.Stop()
}

func TestNodeStartReportsEveryFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testNodeConfig(t)
	cfg.Server.Addr = busy.Addr().String()
	cfg.Discovery.Group = "10.0.0.1"

	n := NewNode(cfg, nil)

	err = n.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
	assert.Contains(t, err.Error(), "invalid discovery group")

	// nothing runs, so a retry is allowed
	assert.NotErrorIs(t, n.Start(), ErrAlreadyStarted)
}

func TestWithoutLocalDropsOwnAddresses(t *testing.T) {
	peers := []types.Peer{
		{IPAddress: "127.0.0.1"},
		{IPAddress: "203.0.113.7"},
	}

	got := WithoutLocal(peers)
	require.Len(t, got, 1)
	assert.Equal(t, "203.0.113.7", got[0].IPAddress)

	// input is left untouched
	assert.Len(t, peers, 2)
}
