// Package collector reassembles the two wire streams emitted by the
// kernel probe (internal/probe) into an ordered stream of whole
// TraceEvents. See Assembler for the correlation/ordering logic.
package collector

import (
	"strconv"

	"github.com/itzagasta/sentryd/internal/wire"
)

// Result is a syscall return value normalized per spec.md §4.3: a
// negative 32-bit-signed value is an errno (kept as the negative value);
// a non-negative value is the successful result (fd, byte count, PID).
type Result int64

// OK reports whether the syscall succeeded.
func (r Result) OK() bool { return r >= 0 }

// Errno returns the positive errno number, or 0 if the call succeeded.
func (r Result) Errno() int {
	if r < 0 {
		return int(-r)
	}
	return 0
}

// normalizeReturn converts a raw 64-bit return value into a Result,
// treating it as a sign-extended 32-bit value per the syscall ABI.
func normalizeReturn(raw uint64) Result {
	return Result(int64(int32(uint32(raw))))
}

// AccessType is the three-bit read/write/execute classification attached
// to files and path categories.
type AccessType struct {
	Read    bool
	Write   bool
	Execute bool
}

// Merge ORs another AccessType's bits into this one.
func (a *AccessType) Merge(b AccessType) {
	a.Read = a.Read || b.Read
	a.Write = a.Write || b.Write
	a.Execute = a.Execute || b.Execute
}

// Any reports whether any bit is set.
func (a AccessType) Any() bool { return a.Read || a.Write || a.Execute }

// RawBytes is a captured byte payload. encoding/json marshals a plain
// []byte as a base64 string; spec.md §6 requires byte payloads on the
// wire as raw arrays, so RawBytes marshals itself as a JSON array of
// integers instead.
type RawBytes []byte

// MarshalJSON renders b as a JSON array of byte values, e.g. [1,2,3].
func (b RawBytes) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	out := make([]byte, 0, 2+len(b)*4)
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, uint64(v), 10)
	}
	out = append(out, ']')
	return out, nil
}

// OpenPayload is an Open/Openat/Creat syscall.
type OpenPayload struct {
	Path           string
	Flags          int64
	Mode           int64
	FileDescriptor Result
}

// ReadPayload is a Read syscall.
type ReadPayload struct {
	FileDescriptor int64
	RequestedCount int64
	Captured       RawBytes
	BytesRead      Result
}

// WritePayload is a Write syscall.
type WritePayload struct {
	FileDescriptor int64
	RequestedCount int64
	Captured       RawBytes
	BytesWritten   Result
}

// ClosePayload is a Close syscall.
type ClosePayload struct {
	FileDescriptor int64
	Status         Result
}

// SocketPayload is a Socket syscall.
type SocketPayload struct {
	Domain         int64
	Type           int64
	Protocol       int64
	FileDescriptor Result
}

// ShutdownPayload is a Shutdown syscall.
type ShutdownPayload struct {
	FileDescriptor int64
	How            int64
	Status         Result
}

// ForkPayload is a Fork syscall.
type ForkPayload struct {
	ChildPID Result
}

// ExecvePayload is an Execve/Execveat syscall.
type ExecvePayload struct {
	Path    string
	ArgvPtr uint64
	EnvpPtr uint64
	Dirfd   *int64
	Flags   *int64
}

// ExitPayload is an Exit/ExitGroup syscall.
type ExitPayload struct {
	Status int64
}

// UnhandledPayload is any syscall without a bespoke handler.
type UnhandledPayload struct {
	SyscallNum uint64
	Arg        [6]uint64
	ReturnVal  Result
}

// EventPayload is implemented by every concrete *Payload type above.
type EventPayload interface {
	Kind() string
}

func (OpenPayload) Kind() string      { return "open" }
func (ReadPayload) Kind() string      { return "read" }
func (WritePayload) Kind() string     { return "write" }
func (ClosePayload) Kind() string     { return "close" }
func (SocketPayload) Kind() string    { return "socket" }
func (ShutdownPayload) Kind() string  { return "shutdown" }
func (ForkPayload) Kind() string      { return "fork" }
func (ExecvePayload) Kind() string    { return "execve" }
func (ExitPayload) Kind() string      { return "exit" }
func (UnhandledPayload) Kind() string { return "unhandled" }

// TraceEvent is one fully assembled syscall: the entry and exit records
// have been paired and any captured payload attached.
type TraceEvent struct {
	Tgid           uint32
	Tid            uint32
	EnterTimestamp uint64
	ExitTimestamp  uint64
	Payload        EventPayload
}
