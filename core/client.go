package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/Dyastin-0/fileshare/logger"
	"github.com/Dyastin-0/fileshare/types"
)

const (
	DefaultDialTimeout = 5 * time.Second

	maxListingSize = 64 * 1024 * 1024
	maxPrealloc    = 64 * 1024 * 1024
)

type ClientConfig struct {
	Port        int
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Port:        TransferPort,
		DialTimeout: DefaultDialTimeout,
		IOTimeout:   DefaultIOTimeout,
	}
}

// Client issues one request per connection against a peer's Server.
type Client struct {
	cfg   ClientConfig
	proto *Proto
	log   logger.Logger

	// Progress, when set, wraps the payload reader of FetchFile.
	Progress func(name string, size int64, r io.Reader) io.Reader
}

func NewClient(cfg ClientConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Port == 0 {
		cfg.Port = TransferPort
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}

	return &Client{
		cfg:   cfg,
		proto: NewProto(),
		log:   log.WithStr("component", "client"),
	}
}

// ListPeerFiles asks addr for its shared files. The listing is never nil,
// it is empty when err is set.
func (c *Client) ListPeerFiles(ctx context.Context, addr string) ([]types.FileInfo, error) {
	files, err := c.listPeerFiles(ctx, addr)
	if err != nil {
		c.log.WithStr("remote", addr).WithErr(err).Warn("failed to list peer files")
		return []types.FileInfo{}, err
	}

	return files, nil
}

func (c *Client) listPeerFiles(ctx context.Context, addr string) ([]types.FileInfo, error) {
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := c.writeRequest(conn, NewListFilesRequest()); err != nil {
		return nil, err
	}

	hd, err := c.proto.ReadHeader(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if hd.Type != TypeListing {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnexpectedResponse, hd.Type)
	}
	if hd.Length > maxListingSize {
		return nil, ErrPayloadTooLarge
	}

	payload := make([]byte, hd.Length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, fmt.Errorf("failed to read listing: %w", err)
	}

	return c.proto.DeserializeListing(payload)
}

// FetchFile downloads name from addr. A missing file yields ErrFileNotFound,
// an empty file yields an empty, non-nil slice.
func (c *Client) FetchFile(ctx context.Context, addr, name string) ([]byte, error) {
	log := c.log.WithStr("remote", addr).WithStr("name", name)

	data, err := c.fetchFile(ctx, addr, name)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			log.Info("peer does not share file")
		} else {
			log.WithErr(err).Warn("failed to fetch file")
		}
		return nil, err
	}

	log.WithInt("bytes", len(data)).Info("fetched file")
	return data, nil
}

func (c *Client) fetchFile(ctx context.Context, addr, name string) ([]byte, error) {
	req := NewFetchFileRequest(name)
	if err := c.proto.validateRequest(req); err != nil {
		return nil, err
	}

	conn, err := c.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := c.writeRequest(conn, req); err != nil {
		return nil, err
	}

	hd, err := c.proto.ReadHeader(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch hd.Type {
	case TypeNotFound:
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	case TypeFile:
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnexpectedResponse, hd.Type)
	}

	size := int64(hd.Length)

	var rd io.Reader = conn
	if c.Progress != nil {
		rd = c.Progress(name, size, rd)
	}

	buf := bytes.NewBuffer(make([]byte, 0, min(size, maxPrealloc)))
	n, err := io.CopyN(buf, rd, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: expected %d bytes, got %d: %w", name, size, n, err)
	}

	return buf.Bytes(), nil
}

func (c *Client) writeRequest(w io.Writer, req *Request) error {
	serialized, err := c.proto.SerializeRequest(req)
	if err != nil {
		return err
	}

	if _, err := w.Write(serialized); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}

	return nil
}

// dial connects to addr, appending the transfer port when addr has none.
// The connection is closed when ctx is done.
func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	target := c.target(addr)

	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPeerUnreachable, target, err)
	}

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})

	return &ctxConn{Conn: withIdleTimeout(conn, c.cfg.IOTimeout), stop: stop}, nil
}

func (c *Client) target(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(c.cfg.Port))
}

type ctxConn struct {
	net.Conn
	stop func() bool
}

func (c *ctxConn) Close() error {
	c.stop()
	return c.Conn.Close()
}
