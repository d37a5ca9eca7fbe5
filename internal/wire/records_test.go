package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// R1: encoding a SyscallRecord and decoding it yields the same value
// bit-for-bit.
func TestSyscallRecordRoundTrip(t *testing.T) {
	var rec SyscallRecord
	rec.Timestamp = 123456789
	rec.Tgid = 42
	rec.Tid = 43
	rec.SyscallNum = uint64(SysWrite)
	rec.Arg = [6]uint64{1, 2, 3, 4, 5, 6}
	rec.SetReturnVal(6)
	rec.SetPayloadLength(6)

	decoded, err := DecodeSyscallRecord(rec.Encode())
	require.NoError(t, err)
	require.Equal(t, rec, decoded)
}

func TestSyscallRecordRoundTripEntry(t *testing.T) {
	var rec SyscallRecord
	rec.Timestamp = 10
	rec.Tgid = 1
	rec.Tid = 1
	rec.SyscallNum = uint64(SysOpen)
	rec.ClearReturnVal()
	rec.ClearPayloadLength()

	decoded, err := DecodeSyscallRecord(rec.Encode())
	require.NoError(t, err)
	require.True(t, decoded.IsEntry())
	_, ok := decoded.PayloadLength()
	require.False(t, ok)
}

func TestDataBufferRoundTrip(t *testing.T) {
	var buf DataBuffer
	buf.Timestamp = 999
	buf.Tgid = 7
	buf.Tid = 8
	buf.SyscallNum = uint64(SysRead)
	copy(buf.Bytes[:], []byte("hello\x00"))

	decoded, err := DecodeDataBuffer(buf.Encode())
	require.NoError(t, err)
	require.Equal(t, buf, decoded)
	require.Equal(t, buf.Key(), decoded.Key())
}

func TestDecodeSyscallRecordShort(t *testing.T) {
	_, err := DecodeSyscallRecord([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestClassifyUnhandled(t *testing.T) {
	require.Equal(t, SysUnhandled, Classify(9999))
	require.Equal(t, SysWrite, Classify(1))
}

func TestCStr(t *testing.T) {
	require.Equal(t, "hello", CStr([]byte("hello\x00world")))
	require.Equal(t, "noterm", CStr([]byte("noterm")))
}

func TestSyscallIDIsExit(t *testing.T) {
	require.True(t, SysExit.IsExit())
	require.True(t, SysExitGroup.IsExit())
	require.False(t, SysRead.IsExit())
}
