package core

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closedPort returns a loopback address nothing listens on.
func closedPort(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	return addr
}

// fakePeer accepts connections and hands them to handle.
func fakePeer(t *testing.T, handle func(net.Conn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()

	return ln.Addr().String()
}

func TestClientTarget(t *testing.T) {
	c := NewClient(DefaultClientConfig(), nil)

	tests := []struct {
		addr string
		want string
	}{
		{addr: "192.168.1.20", want: "192.168.1.20:8888"},
		{addr: "192.168.1.20:9000", want: "192.168.1.20:9000"},
		{addr: "localhost", want: "localhost:8888"},
		{addr: "fe80::1", want: "[fe80::1]:8888"},
		{addr: "[fe80::1]:9000", want: "[fe80::1]:9000"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, c.target(tt.addr))
		})
	}
}

func TestClientUnreachablePeer(t *testing.T) {
	c := testClient()
	addr := closedPort(t)

	start := time.Now()
	files, err := c.ListPeerFiles(t.Context(), addr)
	assert.ErrorIs(t, err, ErrPeerUnreachable)
	assert.NotNil(t, files)
	assert.Empty(t, files)

	data, err := c.FetchFile(t.Context(), addr, "report.pdf")
	assert.ErrorIs(t, err, ErrPeerUnreachable)
	assert.NotErrorIs(t, err, ErrFileNotFound)
	assert.Nil(t, data)

	assert.Less(t, time.Since(start), 2*c.cfg.DialTimeout)
}

func TestClientFetchRejectsInvalidName(t *testing.T) {
	var dialed atomic.Bool
	addr := fakePeer(t, func(net.Conn) { dialed.Store(true) })

	_, err := testClient().FetchFile(t.Context(), addr, "")
	assert.ErrorIs(t, err, ErrEmptyString)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, dialed.Load(), "request was not validated before dialing")
}

func TestClientUnexpectedResponse(t *testing.T) {
	p := NewProto()
	addr := fakePeer(t, func(conn net.Conn) {
		if _, err := p.ReadRequest(conn); err != nil {
			return
		}
		p.WriteHeader(conn, TypeNotFound, 0)
	})

	files, err := testClient().ListPeerFiles(t.Context(), addr)
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
	assert.Empty(t, files)
}

func TestClientTruncatedFile(t *testing.T) {
	p := NewProto()
	addr := fakePeer(t, func(conn net.Conn) {
		if _, err := p.ReadRequest(conn); err != nil {
			return
		}
		p.WriteHeader(conn, TypeFile, 10)
		conn.Write([]byte("short"))
	})

	data, err := testClient().FetchFile(t.Context(), addr, "a.txt")
	assert.ErrorIs(t, err, io.EOF)
	assert.Nil(t, data)
}

func TestClientContextCancelUnblocksRead(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)

	addr := fakePeer(t, func(net.Conn) { <-hold })

	cfg := DefaultClientConfig()
	cfg.IOTimeout = 0
	c := NewClient(cfg, nil)

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.FetchFile(ctx, addr, "a.txt")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClientIdleTimeout(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)

	addr := fakePeer(t, func(net.Conn) { <-hold })

	cfg := DefaultClientConfig()
	cfg.IOTimeout = 100 * time.Millisecond
	c := NewClient(cfg, nil)

	start := time.Now()
	files, err := c.ListPeerFiles(t.Context(), addr)
	assert.Error(t, err)
	assert.Empty(t, files)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClientProgressHook(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 64*1024)
	for i := range content {
		content[i] = byte(i)
	}

	r := NewRegistry()
	_, err := r.Add(writeFile(t, dir, "blob.bin", content))
	require.NoError(t, err)

	_, addr := startTestServer(t, r, nil)

	var (
		gotName string
		gotSize int64
		counted countingReader
	)

	c := testClient()
	c.Progress = func(name string, size int64, rd io.Reader) io.Reader {
		gotName, gotSize = name, size
		counted.r = rd
		return &counted
	}

	data, err := c.FetchFile(t.Context(), addr, "blob.bin")
	require.NoError(t, err)
	assert.Equal(t, content, data)

	assert.Equal(t, "blob.bin", gotName)
	assert.Equal(t, int64(len(content)), gotSize)
	assert.Equal(t, int64(len(content)), counted.n)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
