package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/itzagasta/sentryd/internal/collector"
)

func TestWriteJSONLinesCountAndShape(t *testing.T) {
	events := make(chan collector.TraceEvent, 2)
	events <- collector.TraceEvent{
		Tgid: 1, Tid: 1, EnterTimestamp: 10, ExitTimestamp: 11,
		Payload: collector.OpenPayload{Path: "/tmp/a", Flags: 0, FileDescriptor: 4},
	}
	events <- collector.TraceEvent{
		Tgid: 1, Tid: 1, EnterTimestamp: 12, ExitTimestamp: 12,
		Payload: collector.ExitPayload{Status: 0},
	}
	close(events)

	var buf bytes.Buffer
	n, err := WriteJSONLines(&buf, events)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	scanner := bufio.NewScanner(&buf)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "open", first["type"])
	require.EqualValues(t, 1, first["tgid"])
	require.EqualValues(t, 10, first["enter_timestamp"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Equal(t, "exit", second["type"])
}

func TestWriteJSONLinesEmptyChannel(t *testing.T) {
	events := make(chan collector.TraceEvent)
	close(events)

	var buf bytes.Buffer
	n, err := WriteJSONLines(&buf, events)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Empty(t, buf.String())
}
