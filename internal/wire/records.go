// Package wire defines the fixed-layout records shared between the kernel
// probe and the userspace collector. Every type here must stay encodable
// with encoding/binary in a fixed field order: these are the bytes that
// cross the kernel/userspace boundary through a BPF ring buffer (one
// shared ring buffer per stream, not one per CPU), not ordinary Go values.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// BufferCapacity is the fixed size of the captured-payload byte array,
// matching the reference eBPF layout (blackbox-common's BUFFER_SIZE).
const BufferCapacity = 1024

// noReturnVal and noPayloadLength are the sentinels used to represent an
// absent optional field on the wire, per the "max value means absent"
// convention spec.md leaves to the implementer.
const (
	noReturnVal     uint64 = ^uint64(0)
	noPayloadLength uint32 = ^uint32(0)
)

// SyscallID classifies the syscalls the probe handles specially. Values
// are the real x86-64 syscall numbers; Unhandled is a sentinel for
// anything the probe saw but doesn't have bespoke handling for.
type SyscallID uint64

const (
	SysRead      SyscallID = 0
	SysWrite     SyscallID = 1
	SysOpen      SyscallID = 2
	SysClose     SyscallID = 3
	SysSocket    SyscallID = 41
	SysShutdown  SyscallID = 48
	SysFork      SyscallID = 57
	SysExecve    SyscallID = 59
	SysExit      SyscallID = 60
	SysCreat     SyscallID = 85
	SysOpenat    SyscallID = 257
	SysExitGroup SyscallID = 231
	SysExecveat  SyscallID = 322

	// SysUnhandled is never a real syscall number; it is returned by
	// Classify for anything not in the table above.
	SysUnhandled SyscallID = 1<<64 - 1
)

var known = map[SyscallID]string{
	SysRead: "read", SysWrite: "write", SysOpen: "open", SysClose: "close",
	SysSocket: "socket", SysShutdown: "shutdown", SysFork: "fork",
	SysExecve: "execve", SysExit: "exit", SysCreat: "creat",
	SysOpenat: "openat", SysExitGroup: "exit_group", SysExecveat: "execveat",
}

// Classify maps a raw syscall number to a known SyscallID, or SysUnhandled
// if the probe has no bespoke handler for it.
func Classify(num uint64) SyscallID {
	id := SyscallID(num)
	if _, ok := known[id]; ok {
		return id
	}
	return SysUnhandled
}

// String renders the syscall name, or "unhandled(<num>)" for anything
// outside the known table.
func (s SyscallID) String() string {
	if name, ok := known[s]; ok {
		return name
	}
	return fmt.Sprintf("unhandled(%d)", uint64(s))
}

// IsExit reports whether this syscall terminates the traced thread group
// (exit, exit_group never produce a matching exit record).
func (s SyscallID) IsExit() bool {
	return s == SysExit || s == SysExitGroup
}

// EventKey is the triple that correlates a SyscallRecord with its
// DataBuffer. It is unique per emitted record in practice because the
// monotonic clock has nanosecond resolution and the probe emits both
// halves from the same handler invocation.
type EventKey struct {
	Timestamp uint64
	Tgid      uint32
	Tid       uint32
}

// SyscallRecord is the fixed-size record emitted by the probe for every
// syscall entry and exit that passes the PID filter.
//
// Field order matters: this is read field-by-field off the wire via
// encoding/binary, so reordering fields changes the decode.
type SyscallRecord struct {
	Timestamp  uint64
	Tgid       uint32
	Tid        uint32
	SyscallNum uint64
	Arg        [6]uint64

	// RawReturnVal and RawPayloadLength carry sentinel-encoded optionals.
	// Use ReturnVal/PayloadLength to read them.
	RawReturnVal     uint64
	RawPayloadLength uint32
}

// ReturnVal reports the syscall's return value and whether this is an
// exit record (entry records never carry one).
func (r *SyscallRecord) ReturnVal() (val uint64, ok bool) {
	if r.RawReturnVal == noReturnVal {
		return 0, false
	}
	return r.RawReturnVal, true
}

// SetReturnVal marks this record as an exit record with the given value.
func (r *SyscallRecord) SetReturnVal(v uint64) { r.RawReturnVal = v }

// ClearReturnVal marks this record as an entry record.
func (r *SyscallRecord) ClearReturnVal() { r.RawReturnVal = noReturnVal }

// IsEntry reports whether this record is a syscall-entry record (no
// return value attached).
func (r *SyscallRecord) IsEntry() bool {
	_, ok := r.ReturnVal()
	return !ok
}

// PayloadLength reports the captured-buffer length and whether a
// DataBuffer was emitted alongside this record.
func (r *SyscallRecord) PayloadLength() (n uint32, ok bool) {
	if r.RawPayloadLength == noPayloadLength {
		return 0, false
	}
	return r.RawPayloadLength, true
}

// SetPayloadLength marks this record as carrying a captured buffer of
// length n.
func (r *SyscallRecord) SetPayloadLength(n uint32) { r.RawPayloadLength = n }

// ClearPayloadLength marks this record as carrying no buffer.
func (r *SyscallRecord) ClearPayloadLength() { r.RawPayloadLength = noPayloadLength }

// Key returns the correlation triple for this record.
func (r *SyscallRecord) Key() EventKey {
	return EventKey{Timestamp: r.Timestamp, Tgid: r.Tgid, Tid: r.Tid}
}

// Syscall returns the classified syscall ID for this record.
func (r *SyscallRecord) Syscall() SyscallID {
	return Classify(r.SyscallNum)
}

// syscallRecordSize is the encoded wire size of SyscallRecord: 8 + 4 + 4 +
// 8 + 6*8 + 8 + 4 bytes.
const syscallRecordSize = 8 + 4 + 4 + 8 + 6*8 + 8 + 4

// DecodeSyscallRecord parses a raw ring-buffer sample into a
// SyscallRecord. Returns an error if the sample is short.
func DecodeSyscallRecord(raw []byte) (SyscallRecord, error) {
	var r SyscallRecord
	if len(raw) < syscallRecordSize {
		return r, fmt.Errorf("wire: short syscall record: got %d bytes, want %d", len(raw), syscallRecordSize)
	}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &r); err != nil {
		return r, fmt.Errorf("wire: decode syscall record: %w", err)
	}
	return r, nil
}

// Encode serializes the record in the same field order DecodeSyscallRecord
// expects. Used by tests to round-trip records (R1).
func (r SyscallRecord) Encode() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(syscallRecordSize)
	_ = binary.Write(buf, binary.LittleEndian, r)
	return buf.Bytes()
}

// DataBuffer carries one captured userspace payload, correlated to its
// SyscallRecord by the (Timestamp, Tgid, Tid) triple.
type DataBuffer struct {
	Timestamp  uint64
	Tgid       uint32
	Tid        uint32
	SyscallNum uint64
	Bytes      [BufferCapacity]byte
}

const dataBufferSize = 8 + 4 + 4 + 8 + BufferCapacity

// Key returns the correlation triple for this buffer.
func (b *DataBuffer) Key() EventKey {
	return EventKey{Timestamp: b.Timestamp, Tgid: b.Tgid, Tid: b.Tid}
}

// DecodeDataBuffer parses a raw ring-buffer sample into a DataBuffer.
func DecodeDataBuffer(raw []byte) (DataBuffer, error) {
	var b DataBuffer
	if len(raw) < dataBufferSize {
		return b, fmt.Errorf("wire: short data buffer: got %d bytes, want %d", len(raw), dataBufferSize)
	}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &b); err != nil {
		return b, fmt.Errorf("wire: decode data buffer: %w", err)
	}
	return b, nil
}

// Encode serializes the buffer in the same field order DecodeDataBuffer
// expects.
func (b DataBuffer) Encode() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(dataBufferSize)
	_ = binary.Write(buf, binary.LittleEndian, b)
	return buf.Bytes()
}

// CStr trims a NUL-terminated capture down to the string it represents,
// mirroring how the probe copies path strings "up to and including their
// NUL terminator" (spec.md §3). strlen+1 is the captured length; CStr
// drops the terminator itself.
func CStr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
