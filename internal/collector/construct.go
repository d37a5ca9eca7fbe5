package collector

import (
	"golang.org/x/sys/unix"

	"github.com/itzagasta/sentryd/internal/wire"
)

// ret normalizes an exit record's return value, or 0 (success) if rec is
// nil (exit-class syscalls never have a separate exit record).
func ret(rec *wire.SyscallRecord) Result {
	if rec == nil {
		return 0
	}
	v, ok := rec.ReturnVal()
	if !ok {
		return 0
	}
	return normalizeReturn(v)
}

// capturedBytes extracts the payload (capped to its advertised length)
// from buf, preferring the entry side's payload_length when both sides
// claim one (spec.md §4.2, "entry side wins").
func capturedBytes(entry, exit *wire.SyscallRecord, buf *wire.DataBuffer) RawBytes {
	if buf == nil {
		return nil
	}
	length, ok := entry.PayloadLength()
	if !ok && exit != nil {
		length, ok = exit.PayloadLength()
	}
	if !ok {
		return nil
	}
	if int(length) > len(buf.Bytes) {
		length = uint32(len(buf.Bytes))
	}
	out := make(RawBytes, length)
	copy(out, buf.Bytes[:length])
	return out
}

func pathFromBuffer(buf *wire.DataBuffer) string {
	if buf == nil {
		return ""
	}
	return wire.CStr(buf.Bytes[:])
}

// buildTraceEvent maps a completed builder's records into a TraceEvent,
// dispatching on the classified syscall number per spec.md §4.3.
func buildTraceEvent(entry, exit *wire.SyscallRecord, buf *wire.DataBuffer) TraceEvent {
	class := wire.Classify(entry.SyscallNum)

	ev := TraceEvent{
		Tgid:           entry.Tgid,
		Tid:            entry.Tid,
		EnterTimestamp: entry.Timestamp,
	}
	if exit != nil {
		ev.ExitTimestamp = exit.Timestamp
	} else {
		ev.ExitTimestamp = entry.Timestamp
	}

	switch class {
	case wire.SysOpen:
		ev.Payload = OpenPayload{
			Path:           pathFromBuffer(buf),
			Flags:          int64(entry.Arg[1]),
			Mode:           int64(entry.Arg[2]),
			FileDescriptor: ret(exit),
		}
	case wire.SysOpenat:
		ev.Payload = OpenPayload{
			Path:           pathFromBuffer(buf),
			Flags:          int64(entry.Arg[2]),
			Mode:           int64(entry.Arg[3]),
			FileDescriptor: ret(exit),
		}
	case wire.SysCreat:
		// creat(path, mode) is rewritten as open(O_CREAT|O_WRONLY|O_TRUNC, mode).
		ev.Payload = OpenPayload{
			Path:           pathFromBuffer(buf),
			Flags:          int64(unix.O_CREAT | unix.O_WRONLY | unix.O_TRUNC),
			Mode:           int64(entry.Arg[1]),
			FileDescriptor: ret(exit),
		}
	case wire.SysRead:
		ev.Payload = ReadPayload{
			FileDescriptor: int64(entry.Arg[0]),
			RequestedCount: int64(entry.Arg[2]),
			Captured:       capturedBytes(entry, exit, buf),
			BytesRead:      ret(exit),
		}
	case wire.SysWrite:
		ev.Payload = WritePayload{
			FileDescriptor: int64(entry.Arg[0]),
			RequestedCount: int64(entry.Arg[2]),
			Captured:       capturedBytes(entry, exit, buf),
			BytesWritten:   ret(exit),
		}
	case wire.SysClose:
		ev.Payload = ClosePayload{
			FileDescriptor: int64(entry.Arg[0]),
			Status:         ret(exit),
		}
	case wire.SysSocket:
		ev.Payload = SocketPayload{
			Domain:         int64(entry.Arg[0]),
			Type:           int64(entry.Arg[1]),
			Protocol:       int64(entry.Arg[2]),
			FileDescriptor: ret(exit),
		}
	case wire.SysShutdown:
		ev.Payload = ShutdownPayload{
			FileDescriptor: int64(entry.Arg[0]),
			How:            int64(entry.Arg[1]),
			Status:         ret(exit),
		}
	case wire.SysFork:
		ev.Payload = ForkPayload{ChildPID: ret(exit)}
	case wire.SysExecve:
		ev.Payload = ExecvePayload{
			Path:    pathFromBuffer(buf),
			ArgvPtr: entry.Arg[1],
			EnvpPtr: entry.Arg[2],
		}
	case wire.SysExecveat:
		dirfd := int64(entry.Arg[0])
		flags := int64(entry.Arg[4])
		ev.Payload = ExecvePayload{
			Path:    pathFromBuffer(buf),
			ArgvPtr: entry.Arg[2],
			EnvpPtr: entry.Arg[3],
			Dirfd:   &dirfd,
			Flags:   &flags,
		}
	case wire.SysExit, wire.SysExitGroup:
		ev.Payload = ExitPayload{Status: int64(entry.Arg[0])}
	default:
		ev.Payload = UnhandledPayload{
			SyscallNum: entry.SyscallNum,
			Arg:        entry.Arg,
			ReturnVal:  ret(exit),
		}
	}

	return ev
}
