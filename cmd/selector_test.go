package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Dyastin-0/fileshare/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticPeers(addrs ...string) func() []types.Peer {
	return func() []types.Peer {
		peers := make([]types.Peer, 0, len(addrs))
		for _, a := range addrs {
			peers = append(peers, types.Peer{IPAddress: a, FirstSeen: time.Now(), LastSeen: time.Now()})
		}
		return peers
	}
}

func TestPeerSelectorFilter(t *testing.T) {
	p := NewPeerSelector(staticPeers("192.168.1.30", "10.0.0.2", "192.168.1.20"))

	var got []string
	for _, peer := range p.filteredPeers() {
		got = append(got, peer.IPAddress)
	}
	assert.Equal(t, []string{"10.0.0.2", "192.168.1.20", "192.168.1.30"}, got)

	p.SetFilter("  192.168 ")
	assert.Len(t, p.filteredPeers(), 2)

	p.SetFilter("172.16")
	assert.Empty(t, p.filteredPeers())
}

func TestPeerSelectorToggle(t *testing.T) {
	p := NewPeerSelector(staticPeers("10.0.0.1", "10.0.0.2"))

	p.TogglePeer("10.0.0.2")
	require.Len(t, p.SelectedPeers(), 1)
	assert.Equal(t, "10.0.0.2", p.SelectedPeers()[0].IPAddress)

	p.TogglePeer("10.0.0.2")
	assert.Empty(t, p.SelectedPeers())

	// unknown peers cannot be selected
	p.TogglePeer("10.9.9.9")
	assert.Empty(t, p.SelectedPeers())

	p.ToggleAll()
	assert.Len(t, p.SelectedPeers(), 2)

	p.ToggleAll()
	assert.Empty(t, p.SelectedPeers())
}

func TestPeerSelectorMarksSelection(t *testing.T) {
	p := NewPeerSelector(staticPeers("10.0.0.1"))
	peer := p.filteredPeers()[0]

	assert.NotContains(t, p.formatPeerOption(peer), "✓")
	assert.Contains(t, p.formatPeerOption(peer), "now")

	stale := types.Peer{IPAddress: "10.0.0.9", LastSeen: time.Now().Add(-3 * time.Minute)}
	assert.Contains(t, p.formatPeerOption(stale), "3 minutes ago")

	p.TogglePeer(peer.IPAddress)
	assert.Contains(t, p.formatPeerOption(peer), "✓")
}

func TestFileSelectorToggle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	stat, err := os.Stat(path)
	require.NoError(t, err)

	f := NewFileSelector(dir)

	f.Toggle(path, stat)
	require.Contains(t, f.Selected, path)
	assert.Equal(t, types.FileInfo{Name: "a.txt", Size: 5, Path: path}, f.Selected[path])
	assert.Equal(t, int64(5), f.nBytesSelected)

	f.Toggle(path, stat)
	assert.Empty(t, f.Selected)
	assert.Equal(t, int64(0), f.nBytesSelected)

	// directories are never shared directly
	dirStat, err := os.Stat(dir)
	require.NoError(t, err)
	f.Toggle(dir, dirStat)
	assert.Empty(t, f.Selected)
}

func TestFileSelectorSelectDir(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(nested, 0755))

	want := []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(nested, "c.txt"),
	}
	for _, p := range want {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}

	f := NewFileSelector(dir)
	require.NoError(t, f.SelectDir(dir))
	assert.Equal(t, want, f.SelectedPaths())

	f.ClearSelection()
	assert.Empty(t, f.SelectedPaths())
	assert.Equal(t, int64(0), f.nBytesSelected)
}

func TestFileSelectorEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "zdir"), 0755))
	for _, name := range []string{"B.txt", "a.txt", "notes.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	f := NewFileSelector(dir)

	entries, err := f.filteredEntries()
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"zdir", "a.txt", "B.txt", "notes.md"}, names)

	f.filter = "TXT"
	entries, err = f.filteredEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
