package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Dyastin-0/fileshare/logger"
	"github.com/Dyastin-0/fileshare/types"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	TransferPort = 8888

	DefaultMaxWorkers   = 64
	DefaultDrainTimeout = 5 * time.Second
	DefaultIOTimeout    = 30 * time.Second
)

type ServerConfig struct {
	Addr         string
	MaxWorkers   int64
	DrainTimeout time.Duration
	IOTimeout    time.Duration
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         fmt.Sprintf(":%d", TransferPort),
		MaxWorkers:   DefaultMaxWorkers,
		DrainTimeout: DefaultDrainTimeout,
		IOTimeout:    DefaultIOTimeout,
	}
}

// Server serves the registry to peers, one request per connection.
type Server struct {
	cfg      ServerConfig
	registry *Registry
	proto    *Proto
	log      logger.Logger
	sem      *semaphore.Weighted

	mu      sync.Mutex
	ln      net.Listener
	cancel  context.CancelFunc
	conns   map[net.Conn]struct{}
	closing atomic.Bool

	acceptDone chan struct{}
	workers    sync.WaitGroup
}

func NewServer(cfg ServerConfig, registry *Registry, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}

	return &Server{
		cfg:      cfg,
		registry: registry,
		proto:    NewProto(),
		log:      log.WithStr("component", "server"),
		sem:      semaphore.NewWeighted(cfg.MaxWorkers),
		conns:    make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and launches the accept loop.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.ln = ln
	s.cancel = cancel
	s.closing.Store(false)
	s.acceptDone = make(chan struct{})

	go s.listen(ctx, ln, s.acceptDone)

	s.log.WithStr("addr", ln.Addr().String()).WithInt("max_workers", int(s.cfg.MaxWorkers)).Info("server started")
	return nil
}

// Addr is the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops accepting new connections and returns once the accept loop
// has exited. In-flight workers keep running.
func (s *Server) Close() error {
	s.mu.Lock()
	ln, cancel, done := s.ln, s.cancel, s.acceptDone
	s.mu.Unlock()

	if ln == nil || s.closing.Swap(true) {
		return nil
	}

	cancel()
	err := ln.Close()
	<-done

	return err
}

// Wait drains in-flight workers for up to timeout, then force closes the
// connections of the stragglers and waits for them to return. It reports
// whether the drain finished before the timeout.
func (s *Server) Wait(timeout time.Duration) bool {
	drained := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(drained)
	}()

	clean := true
	select {
	case <-drained:
	case <-time.After(timeout):
		clean = false

		s.mu.Lock()
		n := len(s.conns)
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()

		s.log.WithInt("connections", n).Warn("drain timed out, closing remaining connections")
		<-drained
	}

	s.mu.Lock()
	s.ln = nil
	s.mu.Unlock()

	return clean
}

// Stop closes the listener and drains workers with the configured timeout.
func (s *Server) Stop() error {
	err := s.Close()
	s.Wait(s.cfg.DrainTimeout)
	s.log.Info("server stopped")

	return err
}

func (s *Server) listen(ctx context.Context, ln net.Listener, done chan<- struct{}) {
	defer close(done)

	for {
		// wait for a worker slot before taking the next connection
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}

		conn, err := ln.Accept()
		if err != nil {
			s.sem.Release(1)

			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return
			}

			s.log.WithErr(err).Warn("accept error")
			continue
		}

		if !s.track(conn) {
			s.sem.Release(1)
			conn.Close()
			return
		}

		go func(conn net.Conn) {
			defer s.workers.Done()
			defer s.sem.Release(1)
			defer s.untrack(conn)
			defer conn.Close()

			log := s.log.
				WithStr("request_id", uuid.NewString()).
				WithStr("remote", conn.RemoteAddr().String())

			if err := s.handleConn(conn, log); err != nil {
				log.WithErr(err).Warn("connection handler error")
			}
		}(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing.Load() {
		return false
	}

	s.conns[conn] = struct{}{}
	s.workers.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// handleConn serves exactly one request. Malformed requests get no response.
func (s *Server) handleConn(conn net.Conn, log logger.Logger) error {
	conn = withIdleTimeout(conn, s.cfg.IOTimeout)

	req, err := s.proto.ReadRequest(conn)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to read request: %w", err)
	}

	switch req.Type {
	case TypeListFiles, TypeListFilesAlias:
		log.Debug("list files")
		return s.writeListing(conn, log)
	case TypeFetchFile:
		log.WithStr("name", req.Name).Debug("fetch file")
		return s.writeFile(conn, req.Name, log)
	}

	return ErrInvalidType
}

// writeListing sends the registry snapshot. Entries whose display name
// cannot go on the wire are left out.
func (s *Server) writeListing(w io.Writer, log logger.Logger) error {
	snapshot := s.registry.List()

	files := make([]types.FileInfo, 0, len(snapshot))
	for _, f := range snapshot {
		if err := s.proto.validateName(f.Name); err != nil {
			log.WithStr("name", f.Name).WithErr(err).Warn("skipping shared file with unlistable name")
			continue
		}
		files = append(files, f)
	}

	payload, err := s.proto.SerializeListing(files)
	if err != nil {
		return err
	}

	if err := s.proto.WriteHeader(w, TypeListing, uint64(len(payload))); err != nil {
		return err
	}

	_, err = w.Write(payload)
	return err
}

func (s *Server) writeFile(w io.Writer, name string, log logger.Logger) error {
	entry, ok := s.registry.Lookup(name)
	if !ok {
		return s.proto.WriteHeader(w, TypeNotFound, 0)
	}

	file, err := os.Open(entry.Path)
	if err != nil {
		log.WithStr("path", entry.Path).WithErr(err).Warn("shared file is not readable")
		return s.proto.WriteHeader(w, TypeNotFound, 0)
	}
	defer file.Close()

	fi, err := file.Stat()
	if err != nil || !fi.Mode().IsRegular() {
		log.WithStr("path", entry.Path).WithErr(err).Warn("shared file is not a regular file")
		return s.proto.WriteHeader(w, TypeNotFound, 0)
	}

	size := fi.Size()
	if err := s.proto.WriteHeader(w, TypeFile, uint64(size)); err != nil {
		return err
	}

	written, err := io.CopyN(w, file, size)
	if err != nil {
		return fmt.Errorf("corrupted: file %s expected %d bytes, wrote %d: %w", name, size, written, err)
	}

	return nil
}
