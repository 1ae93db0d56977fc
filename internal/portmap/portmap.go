// Package portmap implements the minimal RFC 1833/1057 PORTMAP service
// SPEC_FULL.md scopes in: NULL and GETPORT only, enough for clients
// that probe portmap before connecting directly to the well-known
// NFS/MOUNT ports. DUMP, SET, and UNSET are out of scope and answer
// PROC_UNAVAIL, grounded on the teacher's
// internal/protocol/portmap/dispatch.go and server.go.
package portmap

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/marmos91/graymamba/internal/logger"
	"github.com/marmos91/graymamba/internal/rpc"
)

// Well-known RPC program numbers (RFC 1833 appendix).
const (
	ProgramPortmap = 100000
	ProgramNFS     = 100003
	ProgramMount   = 100005
)

const (
	PortmapVersion2 = 2

	ProcNull    = 0
	ProcSet     = 1
	ProcUnset   = 2
	ProcGetport = 3
	ProcDump    = 4
)

// Registry maps (program, version) to the port it is served on.
type Registry struct {
	ports map[[2]uint32]uint32
}

// NewRegistry constructs a Registry pre-populated with the NFS and
// MOUNT ports this server answers on.
func NewRegistry(nfsPort, mountPort uint32) *Registry {
	return &Registry{
		ports: map[[2]uint32]uint32{
			{ProgramNFS, 3}:   nfsPort,
			{ProgramMount, 3}: mountPort,
		},
	}
}

func (r *Registry) lookup(program, version uint32) (uint32, bool) {
	port, ok := r.ports[[2]uint32{program, version}]
	return port, ok
}

// Server is a TCP-only PORTMAP listener (UDP is not exposed; every
// client in SPEC_FULL.md's scope is expected to dial TCP).
type Server struct {
	registry *Registry
	listener net.Listener
}

// NewServer constructs a portmap Server bound to registry.
func NewServer(registry *Registry) *Server {
	return &Server{registry: registry}
}

// Serve listens on addr and blocks, accepting connections, until ctx
// is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("portmap: listen %s: %w", addr, err)
	}
	s.listener = ln
	logger.Info("portmap server listening", "addr", addr)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	clientAddr := conn.RemoteAddr().String()
	for {
		msg, err := rpc.ReadRecord(conn)
		if err != nil {
			return
		}
		reply := s.process(msg, clientAddr)
		if reply == nil {
			continue
		}
		if _, err := conn.Write(reply); err != nil {
			logger.Debug("portmap: write reply failed", "client", clientAddr, "error", err)
			return
		}
	}
}

func (s *Server) process(msg []byte, clientAddr string) []byte {
	call, err := rpc.ReadCall(msg)
	if err != nil {
		logger.Debug("portmap: bad call", "client", clientAddr, "error", err)
		return nil
	}
	if call.Program != ProgramPortmap {
		return rpc.MakeErrorReply(call.XID, rpc.RPCProgUnavail)
	}
	if call.Version != PortmapVersion2 {
		reply, _ := rpc.MakeProgMismatchReply(call.XID, PortmapVersion2, PortmapVersion2)
		return reply
	}

	switch call.Procedure {
	case ProcNull:
		return rpc.MakeSuccessReply(call.XID, nil)
	case ProcGetport:
		return s.handleGetport(call)
	default:
		return rpc.MakeErrorReply(call.XID, rpc.RPCProcUnavail)
	}
}

func (s *Server) handleGetport(call *rpc.CallMessage) []byte {
	args := call.Args()
	if len(args) < 16 {
		return rpc.MakeErrorReply(call.XID, rpc.RPCGarbageArgs)
	}
	program := binary.BigEndian.Uint32(args[0:4])
	version := binary.BigEndian.Uint32(args[4:8])

	port, ok := s.registry.lookup(program, version)
	if !ok {
		port = 0
	}
	var portBuf [4]byte
	binary.BigEndian.PutUint32(portBuf[:], port)
	return rpc.MakeSuccessReply(call.XID, portBuf[:])
}
