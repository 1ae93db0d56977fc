// Package server implements the TCP connection loop shared by the
// NFSv3 and MOUNT services: each accepted connection is read as a
// sequence of record-marked RPC messages and dispatched by program
// number, grounded on the teacher's (now-deleted) cmd/dittofs/main.go
// signal-to-context-cancel shutdown sequence and
// internal/protocol/portmap/server.go's accept loop.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marmos91/graymamba/internal/logger"
	"github.com/marmos91/graymamba/internal/mountproc"
	"github.com/marmos91/graymamba/internal/nfsproc"
	"github.com/marmos91/graymamba/internal/portmap"
	"github.com/marmos91/graymamba/internal/rpc"
)

// Config controls the address a Server listens on.
type Config struct {
	Addr string
}

// Server accepts NFSv3 and MOUNT RPC connections on one TCP listener
// and dispatches each call by its RPC program number.
type Server struct {
	cfg      Config
	nfs      *nfsproc.Handler
	mount    *mountproc.Handler
	listener net.Listener
	wg       sync.WaitGroup
}

// New constructs a Server bound to the given NFS and MOUNT handlers.
func New(cfg Config, nfs *nfsproc.Handler, mount *mountproc.Handler) *Server {
	return &Server{cfg: cfg, nfs: nfs, mount: mount}
}

// Serve listens on s.cfg.Addr and accepts connections until ctx is
// cancelled, at which point it closes the listener, waits for
// in-flight connections to finish their current request, and returns.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	logger.Info("nfs server listening", "addr", s.cfg.Addr)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return err
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	clientAddr := conn.RemoteAddr().String()

	// On cancellation, expire the read deadline so the loop leaves its
	// next (or pending) ReadRecord; a request already being dispatched
	// still gets its reply written first.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	for {
		msg, err := rpc.ReadRecord(conn)
		if err != nil {
			return
		}
		call, err := rpc.ReadCall(msg)
		if err != nil {
			logger.Debug("server: bad RPC call", "client", clientAddr, "error", err)
			return
		}

		var reply []byte
		switch call.Program {
		case portmap.ProgramNFS:
			if call.Version != 3 {
				reply, _ = rpc.MakeProgMismatchReply(call.XID, 3, 3)
			} else {
				reply = s.nfs.Dispatch(ctx, call)
			}
		case portmap.ProgramMount:
			if call.Version != 3 {
				reply, _ = rpc.MakeProgMismatchReply(call.XID, 3, 3)
			} else {
				reply = s.mount.Dispatch(ctx, call)
			}
		default:
			reply = rpc.MakeErrorReply(call.XID, rpc.RPCProgUnavail)
		}

		if reply == nil {
			continue
		}
		if _, err := conn.Write(reply); err != nil {
			logger.Debug("server: write reply failed", "client", clientAddr, "error", err)
			return
		}
	}
}

// Shutdown closes the listener, refusing new connections.
func (s *Server) Shutdown() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
