package collector

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/itzagasta/sentryd/internal/wire"
)

type builderKey struct {
	Tid        uint32
	SyscallNum uint64
}

// syscallBuilder tracks the in-flight state of one (tid, syscall_number)
// pair, per spec.md §3 "SyscallBuilder".
type syscallBuilder struct {
	entry  *wire.SyscallRecord
	exit   *wire.SyscallRecord
	buffer *wire.DataBuffer
}

func (b *syscallBuilder) expectsPayload() bool {
	if b.entry != nil {
		if _, ok := b.entry.PayloadLength(); ok {
			return true
		}
	}
	if b.exit != nil {
		if _, ok := b.exit.PayloadLength(); ok {
			return true
		}
	}
	return false
}

// complete reports whether this builder is ready to be turned into a
// TraceEvent: either both halves are present (and any required payload
// has arrived), or the entry is a non-returning call.
func (b *syscallBuilder) complete() bool {
	if b.entry == nil {
		return false
	}
	if wire.Classify(b.entry.SyscallNum).IsExit() {
		return true
	}
	if b.exit == nil {
		return false
	}
	if b.expectsPayload() && b.buffer == nil {
		return false
	}
	return true
}

// Assembler owns the per-(tid, syscall) builder map and the EventKey
// side table, pairing entry/exit records with their data buffers and
// emitting one ordered TraceEvent stream. No lock is held across a
// suspension point: the side table and builder map are touched only
// between channel receives, never during them (spec.md §5).
type Assembler struct {
	log            logrus.FieldLogger
	anchorEnabled  bool
	builders       map[builderKey]*syscallBuilder
	sideTable      map[wire.EventKey]wire.DataBuffer
	ready          []TraceEvent
	anchor         *uint64
	lostRecords    int
	lostBuffers    int
	discardedOrder int
}

// NewAssembler builds an Assembler. anchorEnabled is the negation of the
// CLI's --include-initial-execve flag (spec.md §6): when true, any event whose
// entry timestamp falls at or before the first observed execve is
// dropped, since it belongs to the launching shell, not the target.
func NewAssembler(anchorEnabled bool, log logrus.FieldLogger) *Assembler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Assembler{
		log:           log,
		anchorEnabled: anchorEnabled,
		builders:      make(map[builderKey]*syscallBuilder),
		sideTable:     make(map[wire.EventKey]wire.DataBuffer),
	}
}

// Run drains records and buffers until a terminating syscall (exit,
// exit_group) is observed, the context is cancelled, or both input
// channels close. It then sorts every completed event by entry
// timestamp, drops anything before the anchor and any exit-before-entry
// inversion (except the execve family, which tolerates it — spec.md
// §4.2), and sends the result on out before closing it.
//
// This is an offline-style analyzer bounded by the target's lifetime
// (spec.md §1): buffering the whole run before emitting is the simplest
// faithful way to guarantee global entry-timestamp ordering across
// however many producer streams fed the two input channels.
func (a *Assembler) Run(ctx context.Context, records <-chan wire.SyscallRecord, buffers <-chan wire.DataBuffer, out chan<- TraceEvent) error {
	defer close(out)

	recordsOpen, buffersOpen := true, true
	terminated := false

	for !terminated && (recordsOpen || buffersOpen) {
		select {
		case <-ctx.Done():
			a.flushReady(out)
			return ctx.Err()
		case rec, ok := <-records:
			if !ok {
				recordsOpen = false
				continue
			}
			if wire.Classify(rec.SyscallNum).IsExit() {
				terminated = true
			}
			a.handleRecord(rec)
		case buf, ok := <-buffers:
			if !ok {
				buffersOpen = false
				continue
			}
			a.handleBuffer(buf)
		}
	}

	a.flushReady(out)
	return nil
}

func (a *Assembler) handleRecord(rec wire.SyscallRecord) {
	key := builderKey{Tid: rec.Tid, SyscallNum: rec.SyscallNum}
	b := a.builders[key]
	if b == nil {
		b = &syscallBuilder{}
		a.builders[key] = b
	}

	if _, ok := rec.PayloadLength(); ok {
		if buf, ok2 := a.sideTable[rec.Key()]; ok2 {
			bufCopy := buf
			b.buffer = &bufCopy
			delete(a.sideTable, rec.Key())
		}
	}

	if rec.IsEntry() {
		recCopy := rec
		b.entry = &recCopy
		if a.anchorEnabled && a.anchor == nil {
			class := wire.Classify(rec.SyscallNum)
			if class == wire.SysExecve || class == wire.SysExecveat {
				ts := rec.Timestamp
				a.anchor = &ts
			}
		}
	} else {
		recCopy := rec
		b.exit = &recCopy
	}

	if b.complete() {
		a.completeBuilder(key, b)
	}
}

func (a *Assembler) handleBuffer(buf wire.DataBuffer) {
	key := buf.Key()
	for bk, b := range a.builders {
		matched := false
		if b.entry != nil && b.entry.Key() == key {
			if _, ok := b.entry.PayloadLength(); ok {
				bufCopy := buf
				b.buffer = &bufCopy
				matched = true
			}
		}
		if !matched && b.exit != nil && b.exit.Key() == key {
			if _, ok := b.exit.PayloadLength(); ok {
				bufCopy := buf
				b.buffer = &bufCopy
				matched = true
			}
		}
		if matched {
			if b.complete() {
				a.completeBuilder(bk, b)
			}
			return
		}
	}
	a.sideTable[key] = buf
}

func (a *Assembler) completeBuilder(key builderKey, b *syscallBuilder) {
	delete(a.builders, key)

	ev := buildTraceEvent(b.entry, b.exit, b.buffer)

	class := wire.Classify(b.entry.SyscallNum)
	isExecveFamily := class == wire.SysExecve || class == wire.SysExecveat
	if b.exit != nil && ev.ExitTimestamp < ev.EnterTimestamp && !isExecveFamily {
		a.discardedOrder++
		a.log.WithFields(logrus.Fields{
			"tid": b.entry.Tid, "syscall": class.String(),
			"enter": ev.EnterTimestamp, "exit": ev.ExitTimestamp,
		}).Warn("discarding event: exit timestamp precedes entry timestamp")
		return
	}

	a.ready = append(a.ready, ev)
}

// flushReady sorts every completed event by entry timestamp, applies the
// anchor cutoff, and sends the result on out.
func (a *Assembler) flushReady(out chan<- TraceEvent) {
	sort.SliceStable(a.ready, func(i, j int) bool {
		return a.ready[i].EnterTimestamp < a.ready[j].EnterTimestamp
	})

	var anchor uint64
	if a.anchor != nil {
		anchor = *a.anchor
	}

	for _, ev := range a.ready {
		if a.anchorEnabled && a.anchor != nil && ev.EnterTimestamp <= anchor {
			continue
		}
		out <- ev
	}
	a.ready = nil
}

// Stats reports counters useful for diagnostics (spec.md §7): builders
// that never completed before shutdown are discarded silently and are
// not counted here, matching "correlation timeout... not treated as an
// error".
func (a *Assembler) Stats() (discardedOrderInversions int) {
	return a.discardedOrder
}
