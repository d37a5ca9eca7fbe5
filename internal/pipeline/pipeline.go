// Package pipeline wires the probe's ring buffers through the collector
// and summarizer into a single Report, per spec.md §2's data-flow
// diagram: syscall hooks -> ring buffers (one shared ring buffer per
// stream, not one per CPU) -> reader tasks -> merge
// channels -> assembler -> ordered event stream -> summarizer -> report.
package pipeline

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/itzagasta/sentryd/internal/collector"
	"github.com/itzagasta/sentryd/internal/export"
	"github.com/itzagasta/sentryd/internal/probe"
	"github.com/itzagasta/sentryd/internal/report"
	"github.com/itzagasta/sentryd/internal/summarize"
	"github.com/itzagasta/sentryd/internal/wire"
)

const channelDepth = 4096

// Pipeline is one run of the full probe->collector->summarizer chain
// for a single traced process.
type Pipeline struct {
	// RunID labels every log line this run emits, grounded on the
	// teacher's practice of per-client channel identity in broadcastEvents
	// (here applied to log correlation instead of gRPC fan-out).
	RunID uuid.UUID
	log   logrus.FieldLogger
}

// New builds a Pipeline bound to log.
func New(log logrus.FieldLogger) *Pipeline {
	if log == nil {
		log = logrus.StandardLogger()
	}
	id := uuid.New()
	return &Pipeline{RunID: id, log: log.WithField("run_id", id.String())}
}

// Options configures one pipeline run.
type Options struct {
	// AnchorEnabled mirrors --include-initial-execve's negation: true
	// drops events at or before the first execve (the launching shell).
	AnchorEnabled bool
	// JSONOut, if non-nil, receives one JSON line per assembled
	// TraceEvent as they are produced (spec.md §6).
	JSONOut io.Writer
	// RingSize overrides channelDepth for every channel between the ring
	// buffer readers and the assembler (the CLI's --ring-size). Zero or
	// negative means "use the default".
	RingSize int
}

// Run drains handle's two ring buffers through the collector and
// summarizer, returning the finished Report when the traced process
// exits (an Exit/ExitGroup syscall is observed) or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, handle *probe.Handle, opts Options) (report.Report, error) {
	depth := opts.RingSize
	if depth <= 0 {
		depth = channelDepth
	}

	records := make(chan wire.SyscallRecord, depth)
	buffers := make(chan wire.DataBuffer, depth)
	traceEvents := make(chan collector.TraceEvent, depth)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := collector.RunRecordReader(handle.Objects.Records, records, p.log); err != nil {
			p.log.WithError(err).Error("record reader stopped")
		}
	}()
	go func() {
		defer wg.Done()
		if err := collector.RunBufferReader(handle.Objects.Buffers, buffers, p.log); err != nil {
			p.log.WithError(err).Error("buffer reader stopped")
		}
	}()

	assembler := collector.NewAssembler(opts.AnchorEnabled, p.log)
	asmDone := make(chan error, 1)
	go func() {
		asmDone <- assembler.Run(ctx, records, buffers, traceEvents)
	}()

	// Fan out the ordered event stream to every live sink, per the
	// teacher's broadcastEvents pattern (SPEC_FULL.md §3, "Live
	// TraceEvent tap") — here the sinks are the summarizer and,
	// optionally, the JSON exporter, not remote gRPC clients.
	summarizerIn := make(chan collector.TraceEvent, depth)
	var exportIn chan collector.TraceEvent
	if opts.JSONOut != nil {
		exportIn = make(chan collector.TraceEvent, depth)
	}

	go func() {
		defer close(summarizerIn)
		if exportIn != nil {
			defer close(exportIn)
		}
		for ev := range traceEvents {
			summarizerIn <- ev
			if exportIn != nil {
				exportIn <- ev
			}
		}
	}()

	slot := NewReportSlot()
	go func() {
		s := summarize.New(p.log)
		slot.Publish(s.Summarize(summarizerIn))
	}()

	exportDone := make(chan struct{})
	if exportIn != nil {
		go func() {
			defer close(exportDone)
			n, err := export.WriteJSONLines(opts.JSONOut, exportIn)
			if err != nil {
				p.log.WithError(err).WithField("lines_written", n).Warn("json export ended early")
			}
		}()
	} else {
		close(exportDone)
	}

	// The assembler terminates on traced-process Exit, external
	// cancellation, or both input channels closing (spec.md §5). Once it
	// does, detach the probe so the still-running readers see their ring
	// buffers close and drain out, rather than blocking forever.
	var closeOnce sync.Once
	detach := func() { closeOnce.Do(func() { _ = handle.Close() }) }

	asmErr := <-asmDone
	detach()

	// The assembler has stopped reading records/buffers, but a reader
	// goroutine can still be parked mid-send on a full channel from
	// before it exited: handle.Close() only unblocks a future rd.Read(),
	// not an in-flight send. Drain both channels so the readers can reach
	// their own ErrClosed and return, instead of risking wg.Wait() below
	// hanging on leftover post-exit records.
	drained := make(chan struct{}, 2)
	go func() {
		for range records {
		}
		drained <- struct{}{}
	}()
	go func() {
		for range buffers {
		}
		drained <- struct{}{}
	}()

	wg.Wait()
	<-drained
	<-drained
	<-exportDone

	// Every stage above has returned, so the summarizer has already
	// published; wait without ctx so a cancelled run still gets its Report.
	rep, _ := slot.Wait(context.Background())
	if asmErr != nil && asmErr != context.Canceled {
		return rep, asmErr
	}
	return rep, nil
}
