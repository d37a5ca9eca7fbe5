// Package export writes the assembled TraceEvent stream to an external
// consumer as newline-delimited JSON (spec.md §6, "Exported event
// format"): one JSON object per line, no framing, no header.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/itzagasta/sentryd/internal/collector"
)

// jsonEvent is the line-oriented wire shape: field names match the
// internal TraceEvent structure, the payload is nested as an object under
// "payload", and its kind is named in a "type" field so each line stands
// alone.
type jsonEvent struct {
	Tgid           uint32                 `json:"tgid"`
	Tid            uint32                 `json:"tid"`
	EnterTimestamp uint64                 `json:"enter_timestamp"`
	ExitTimestamp  uint64                 `json:"exit_timestamp"`
	Type           string                 `json:"type"`
	Payload        collector.EventPayload `json:"payload"`
}

// WriteJSONLines consumes events until the channel closes, writing one
// JSON object per line to w. It writes however many lines it received
// before the channel closed or ctx-equivalent shutdown happened
// upstream — the exporter has no opinion on why the stream ended
// (spec.md §7, "the JSON exporter writes however many lines it received
// before shutdown").
func WriteJSONLines(w io.Writer, events <-chan collector.TraceEvent) (int, error) {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	enc := json.NewEncoder(bw)
	n := 0
	for ev := range events {
		line := jsonEvent{
			Tgid:           ev.Tgid,
			Tid:            ev.Tid,
			EnterTimestamp: ev.EnterTimestamp,
			ExitTimestamp:  ev.ExitTimestamp,
			Type:           ev.Payload.Kind(),
			Payload:        ev.Payload,
		}
		if err := enc.Encode(line); err != nil {
			return n, fmt.Errorf("export: encode event %d: %w", n, err)
		}
		n++
	}
	return n, bw.Flush()
}
