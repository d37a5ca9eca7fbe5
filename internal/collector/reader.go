package collector

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/sirupsen/logrus"

	"github.com/itzagasta/sentryd/internal/wire"
)

// RunRecordReader drains the probe's record ring buffer, decoding each
// sample into a wire.SyscallRecord and forwarding it on out. It returns
// when the ring buffer is closed (normal shutdown) or it hits a
// non-recoverable read error.
//
// Ring-buffer loss (spec.md §7, "Ring-buffer loss") is surfaced as a
// warning log, never fatal: a record overwritten before this reader
// caught it is simply gone, and the rest of the stream keeps flowing.
func RunRecordReader(m *ebpf.Map, out chan<- wire.SyscallRecord, log logrus.FieldLogger) error {
	rd, err := ringbuf.NewReader(m)
	if err != nil {
		return fmt.Errorf("collector: open record ring buffer: %w", err)
	}
	defer rd.Close()

	for {
		raw, err := rd.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				close(out)
				return nil
			}
			log.WithError(err).Warn("record ring buffer read error")
			continue
		}
		if raw.LostSamples > 0 {
			log.WithField("lost", raw.LostSamples).Warn("record ring buffer lost events")
		}
		rec, err := wire.DecodeSyscallRecord(raw.RawSample)
		if err != nil {
			log.WithError(err).Warn("failed to decode syscall record")
			continue
		}
		out <- rec
	}
}

// RunBufferReader is RunRecordReader's twin for the data-buffer stream.
func RunBufferReader(m *ebpf.Map, out chan<- wire.DataBuffer, log logrus.FieldLogger) error {
	rd, err := ringbuf.NewReader(m)
	if err != nil {
		return fmt.Errorf("collector: open buffer ring buffer: %w", err)
	}
	defer rd.Close()

	for {
		raw, err := rd.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				close(out)
				return nil
			}
			log.WithError(err).Warn("buffer ring buffer read error")
			continue
		}
		if raw.LostSamples > 0 {
			log.WithField("lost", raw.LostSamples).Warn("data buffer ring buffer lost events")
		}
		buf, err := wire.DecodeDataBuffer(raw.RawSample)
		if err != nil {
			log.WithError(err).Warn("failed to decode data buffer")
			continue
		}
		out <- buf
	}
}
