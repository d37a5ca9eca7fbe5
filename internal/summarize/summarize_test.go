package summarize

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/itzagasta/sentryd/internal/collector"
	"github.com/itzagasta/sentryd/internal/report"
)

func feed(events []collector.TraceEvent) <-chan collector.TraceEvent {
	ch := make(chan collector.TraceEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

// Scenario: "hello world" read from stdin and echoed to stdout.
func TestSummarizeHelloWorldStdio(t *testing.T) {
	events := []collector.TraceEvent{
		{Tgid: 1, Tid: 1, EnterTimestamp: 1, ExitTimestamp: 2,
			Payload: collector.ReadPayload{FileDescriptor: 0, Captured: []byte("hi\n"), BytesRead: 3}},
		{Tgid: 1, Tid: 1, EnterTimestamp: 3, ExitTimestamp: 4,
			Payload: collector.WritePayload{FileDescriptor: 1, Captured: []byte("hi\n"), BytesWritten: 3}},
		{Tgid: 1, Tid: 1, EnterTimestamp: 5, ExitTimestamp: 5,
			Payload: collector.ExitPayload{Status: 0}},
	}

	rep := New(nil).Summarize(feed(events))
	require.True(t, rep.FileSummary.Behavior[report.CategoryStdio].Read)
	require.True(t, rep.FileSummary.Behavior[report.CategoryStdio].Write)
	require.EqualValues(t, 3, rep.FileSummary.BytesRead)
	require.EqualValues(t, 3, rep.FileSummary.BytesWritten)
	require.Len(t, rep.Alerts, 1)
	require.Equal(t, report.SeverityInfo, rep.Alerts[0].Severity)

	// Stdio is reported via the behavior matrix only, never as a listed
	// or counted FileAccess (spec.md §8 scenario 1: files_accessed=0 for
	// a stdin/stdout-only run).
	require.Equal(t, 0, rep.FileSummary.AccessCount)
	require.Empty(t, rep.FileAccesses)
}

// Scenario: a write into a system path triggers the urgent alert and the
// system behavior bit.
func TestSummarizeWriteToSystemPath(t *testing.T) {
	events := []collector.TraceEvent{
		{Tgid: 1, Tid: 1, EnterTimestamp: 1, ExitTimestamp: 2,
			Payload: collector.OpenPayload{Path: "/etc/motd", Flags: unix.O_WRONLY, FileDescriptor: 4}},
		{Tgid: 1, Tid: 1, EnterTimestamp: 3, ExitTimestamp: 4,
			Payload: collector.WritePayload{FileDescriptor: 4, Captured: []byte("x"), BytesWritten: 1}},
		{Tgid: 1, Tid: 1, EnterTimestamp: 5, ExitTimestamp: 6,
			Payload: collector.ClosePayload{FileDescriptor: 4, Status: 0}},
		{Tgid: 1, Tid: 1, EnterTimestamp: 7, ExitTimestamp: 7,
			Payload: collector.ExitPayload{Status: 0}},
	}

	rep := New(nil).Summarize(feed(events))
	require.True(t, rep.FileSummary.Behavior[report.CategorySystem].Write)
	require.Contains(t, rep.FileSummary.Directories, "/etc")

	found := false
	for _, a := range rep.Alerts {
		if a.Severity == report.SeverityUrgent && a.Message == "wrote into a system path" {
			found = true
		}
	}
	require.True(t, found)

	// P3: end_time >= start_time for every reconstructed access.
	for _, fa := range rep.FileAccesses {
		require.GreaterOrEqual(t, fa.EndTime, fa.StartTime)
	}
}

// Scenario: fork followed by execve. P6: an Execve spawn's parent and
// child PID are the same tgid (exec replaces the image, no new process).
func TestSummarizeForkAndExec(t *testing.T) {
	events := []collector.TraceEvent{
		{Tgid: 10, Tid: 10, EnterTimestamp: 1, ExitTimestamp: 2,
			Payload: collector.ForkPayload{ChildPID: 11}},
		{Tgid: 10, Tid: 10, EnterTimestamp: 3, ExitTimestamp: 4,
			Payload: collector.ExecvePayload{Path: "/usr/bin/ls"}},
		{Tgid: 10, Tid: 10, EnterTimestamp: 5, ExitTimestamp: 5,
			Payload: collector.ExitPayload{Status: 0}},
	}

	rep := New(nil).Summarize(feed(events))
	require.Equal(t, 2, rep.ProcessSummary.ProcessesCreated)
	require.Contains(t, rep.ProcessSummary.Programs, "/usr/bin/ls")

	for _, se := range rep.SpawnEvents {
		if se.Type == report.SpawnExec {
			require.Equal(t, se.ParentPID, se.ChildPID)
		}
	}
}

// Scenario: a socket is opened, used, and shut down — its lifetime is
// reconstructed as a Connection, not a FileAccess.
func TestSummarizeSocketLifetime(t *testing.T) {
	events := []collector.TraceEvent{
		{Tgid: 1, Tid: 1, EnterTimestamp: 1, ExitTimestamp: 2,
			Payload: collector.SocketPayload{Domain: unix.AF_INET, Type: 1, Protocol: unix.IPPROTO_TCP, FileDescriptor: 5}},
		{Tgid: 1, Tid: 1, EnterTimestamp: 3, ExitTimestamp: 4,
			Payload: collector.ShutdownPayload{FileDescriptor: 5, How: 2, Status: 0}},
		{Tgid: 1, Tid: 1, EnterTimestamp: 5, ExitTimestamp: 5,
			Payload: collector.ExitPayload{Status: 0}},
	}

	rep := New(nil).Summarize(feed(events))
	require.Len(t, rep.Connections, 1)
	require.Equal(t, report.DomainIPv4, rep.Connections[0].Domain)
	require.Equal(t, report.ProtocolTCP, rep.Connections[0].Protocol)
	require.Empty(t, rep.FileAccesses)

	// P5: domain/protocol enum closure.
	require.Contains(t, []report.Domain{report.DomainIPv4, report.DomainIPv6, report.DomainOther}, rep.Connections[0].Domain)
	require.Contains(t, []report.Protocol{report.ProtocolTCP, report.ProtocolUDP, report.ProtocolOther}, rep.Connections[0].Protocol)
}

// Scenario: the read succeeded per its return value but the payload
// buffer never arrived (copy failure) — DataLength still accounts for
// the byte count even though Captured stays empty.
func TestSummarizePayloadCopyFailure(t *testing.T) {
	events := []collector.TraceEvent{
		{Tgid: 1, Tid: 1, EnterTimestamp: 1, ExitTimestamp: 2,
			Payload: collector.OpenPayload{Path: "data.bin", Flags: unix.O_RDONLY, FileDescriptor: 4}},
		{Tgid: 1, Tid: 1, EnterTimestamp: 3, ExitTimestamp: 4,
			Payload: collector.ReadPayload{FileDescriptor: 4, Captured: nil, BytesRead: 128}},
		{Tgid: 1, Tid: 1, EnterTimestamp: 5, ExitTimestamp: 6,
			Payload: collector.ClosePayload{FileDescriptor: 4, Status: 0}},
		{Tgid: 1, Tid: 1, EnterTimestamp: 7, ExitTimestamp: 7,
			Payload: collector.ExitPayload{Status: 0}},
	}

	rep := New(nil).Summarize(feed(events))
	require.Len(t, rep.FileAccesses, 1)
	require.EqualValues(t, 128, rep.FileAccesses[0].DataLength)
	require.Empty(t, rep.FileAccesses[0].ReadData)
}

// P7: a path under /root triggers the critical alert.
func TestSummarizeRootAccessIsCritical(t *testing.T) {
	events := []collector.TraceEvent{
		{Tgid: 1, Tid: 1, EnterTimestamp: 1, ExitTimestamp: 2,
			Payload: collector.OpenPayload{Path: "/root/.ssh/id_rsa", Flags: unix.O_RDONLY, FileDescriptor: 4}},
		{Tgid: 1, Tid: 1, EnterTimestamp: 3, ExitTimestamp: 4,
			Payload: collector.ClosePayload{FileDescriptor: 4, Status: 0}},
		{Tgid: 1, Tid: 1, EnterTimestamp: 5, ExitTimestamp: 5,
			Payload: collector.ExitPayload{Status: 0}},
	}

	rep := New(nil).Summarize(feed(events))
	require.Equal(t, report.SeverityCritical, rep.Alerts[0].Severity)
}

// P8: the alert list is never empty, and the "no suspicious activity"
// alert appears only when every other rule stayed silent.
func TestSummarizeAlertsNeverEmptyAndInfoOnlyAlone(t *testing.T) {
	empty := New(nil).Summarize(feed([]collector.TraceEvent{
		{Tgid: 1, Tid: 1, EnterTimestamp: 1, ExitTimestamp: 1, Payload: collector.ExitPayload{Status: 0}},
	}))
	require.Len(t, empty.Alerts, 1)
	require.Equal(t, report.SeverityInfo, empty.Alerts[0].Severity)

	busy := New(nil).Summarize(feed([]collector.TraceEvent{
		{Tgid: 1, Tid: 1, EnterTimestamp: 1, ExitTimestamp: 2,
			Payload: collector.OpenPayload{Path: "/root/secret", Flags: unix.O_RDONLY, FileDescriptor: 4}},
		{Tgid: 1, Tid: 1, EnterTimestamp: 3, ExitTimestamp: 4,
			Payload: collector.ClosePayload{FileDescriptor: 4, Status: 0}},
		{Tgid: 1, Tid: 1, EnterTimestamp: 5, ExitTimestamp: 5,
			Payload: collector.ExitPayload{Status: 0}},
	}))
	for _, a := range busy.Alerts {
		require.NotEqual(t, report.SeverityInfo, a.Severity)
	}
}

// P4: directories are sorted, deduplicated, and never contain empties.
func TestComputeDirectoriesSortedDeduped(t *testing.T) {
	fileAccesses := []report.FileAccess{
		{Filename: "/var/log/a.log"},
		{Filename: "/var/log/b.log"},
		{Filename: "/etc/passwd"},
		{Filename: ""},
		{Filename: "unknown"},
		{Filename: "justafile"},
	}
	dirs := computeDirectories(fileAccesses)
	require.Equal(t, []string{"/etc", "/var/log"}, dirs)
}

// R2: summarizing the same input twice yields equal reports.
func TestSummarizeIsIdempotent(t *testing.T) {
	events := []collector.TraceEvent{
		{Tgid: 1, Tid: 1, EnterTimestamp: 1, ExitTimestamp: 2,
			Payload: collector.OpenPayload{Path: "/tmp/x", Flags: unix.O_RDONLY, FileDescriptor: 4}},
		{Tgid: 1, Tid: 1, EnterTimestamp: 3, ExitTimestamp: 4,
			Payload: collector.ClosePayload{FileDescriptor: 4, Status: 0}},
		{Tgid: 1, Tid: 1, EnterTimestamp: 5, ExitTimestamp: 5,
			Payload: collector.ExitPayload{Status: 0}},
	}

	rep1 := New(nil).Summarize(feed(events))
	rep2 := New(nil).Summarize(feed(events))
	require.Equal(t, rep1, rep2)
}
