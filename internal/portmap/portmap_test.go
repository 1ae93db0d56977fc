package portmap

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/graymamba/internal/rpc"
)

func buildCall(t *testing.T, prog, vers, proc uint32, args []byte) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, uint32(7))
	_ = binary.Write(buf, binary.BigEndian, rpc.RPCCall)
	_ = binary.Write(buf, binary.BigEndian, uint32(2))
	_ = binary.Write(buf, binary.BigEndian, prog)
	_ = binary.Write(buf, binary.BigEndian, vers)
	_ = binary.Write(buf, binary.BigEndian, proc)
	_ = binary.Write(buf, binary.BigEndian, rpc.AuthNull)
	_ = binary.Write(buf, binary.BigEndian, uint32(0))
	_ = binary.Write(buf, binary.BigEndian, rpc.AuthNull)
	_ = binary.Write(buf, binary.BigEndian, uint32(0))
	buf.Write(args)
	return buf.Bytes()
}

func getportArgs(program, version uint32) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], program)
	binary.BigEndian.PutUint32(buf[4:8], version)
	return buf
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(2049, 2049)
	port, ok := r.lookup(ProgramNFS, 3)
	assert.True(t, ok)
	assert.Equal(t, uint32(2049), port)

	_, ok = r.lookup(ProgramPortmap, 2)
	assert.False(t, ok)
}

func TestProcessNull(t *testing.T) {
	s := &Server{registry: NewRegistry(2049, 2049)}
	reply := s.process(buildCall(t, ProgramPortmap, PortmapVersion2, ProcNull, nil), "test")
	assert.NotEmpty(t, reply)
}

func TestProcessGetportKnownProgram(t *testing.T) {
	s := &Server{registry: NewRegistry(2049, 2049)}
	reply := s.process(buildCall(t, ProgramPortmap, PortmapVersion2, ProcGetport, getportArgs(ProgramNFS, 3)), "test")
	require.NotEmpty(t, reply)

	port := binary.BigEndian.Uint32(reply[len(reply)-4:])
	assert.Equal(t, uint32(2049), port)
}

func TestProcessGetportUnknownProgramReturnsZero(t *testing.T) {
	s := &Server{registry: NewRegistry(2049, 2049)}
	reply := s.process(buildCall(t, ProgramPortmap, PortmapVersion2, ProcGetport, getportArgs(999999, 1)), "test")
	require.NotEmpty(t, reply)

	port := binary.BigEndian.Uint32(reply[len(reply)-4:])
	assert.Equal(t, uint32(0), port)
}

func TestProcessWrongProgramRejected(t *testing.T) {
	s := &Server{registry: NewRegistry(2049, 2049)}
	reply := s.process(buildCall(t, ProgramNFS, 3, ProcNull, nil), "test")
	assert.NotEmpty(t, reply)
	acceptStat := binary.BigEndian.Uint32(reply[24:28])
	assert.Equal(t, rpc.RPCProgUnavail, acceptStat)
}

func TestProcessWrongVersionRejected(t *testing.T) {
	s := &Server{registry: NewRegistry(2049, 2049)}
	reply := s.process(buildCall(t, ProgramPortmap, 99, ProcNull, nil), "test")
	assert.NotEmpty(t, reply)
	acceptStat := binary.BigEndian.Uint32(reply[24:28])
	assert.Equal(t, rpc.RPCProgMismatch, acceptStat)
}

func TestProcessUnsupportedProcedure(t *testing.T) {
	s := &Server{registry: NewRegistry(2049, 2049)}
	reply := s.process(buildCall(t, ProgramPortmap, PortmapVersion2, ProcDump, nil), "test")
	assert.NotEmpty(t, reply)
	acceptStat := binary.BigEndian.Uint32(reply[24:28])
	assert.Equal(t, rpc.RPCProcUnavail, acceptStat)
}

func TestProcessGarbledMessageIgnored(t *testing.T) {
	s := &Server{registry: NewRegistry(2049, 2049)}
	reply := s.process([]byte{1, 2, 3}, "test")
	assert.Nil(t, reply)
}
