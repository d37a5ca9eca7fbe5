package pipeline

import (
	"context"
	"sync"

	"github.com/itzagasta/sentryd/internal/report"
)

// ReportSlot is the single-writer/single-reader handoff spec.md §5
// describes: "placed into a single-writer/single-reader slot guarded by
// a mutex plus a one-shot notification primitive; the viewer waits on
// the notification and consumes the slot."
type ReportSlot struct {
	mu    sync.Mutex
	ready chan struct{}
	once  sync.Once
	rep   report.Report
}

// NewReportSlot builds an empty, unpublished slot.
func NewReportSlot() *ReportSlot {
	return &ReportSlot{ready: make(chan struct{})}
}

// Publish stores r and fires the one-shot notification. Safe to call
// exactly once; subsequent calls are no-ops (the Report is produced
// exactly once per spec.md §3).
func (s *ReportSlot) Publish(r report.Report) {
	s.once.Do(func() {
		s.mu.Lock()
		s.rep = r
		s.mu.Unlock()
		close(s.ready)
	})
}

// Wait blocks until Publish is called or ctx is cancelled. ok is false
// if ctx was cancelled first — the "processing incomplete" case spec.md
// §7 describes for the viewer.
func (s *ReportSlot) Wait(ctx context.Context) (r report.Report, ok bool) {
	select {
	case <-s.ready:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.rep, true
	case <-ctx.Done():
		return report.Report{}, false
	}
}
