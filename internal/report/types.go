// Package report defines the final, immutable Report object handed off
// to the external viewer and JSON exporter (spec.md §3, "Report").
package report

import "github.com/itzagasta/sentryd/internal/collector"

// AccessType re-exports collector.AccessType so callers of this package
// never need to import collector directly.
type AccessType = collector.AccessType

// FileAccess is the reconstructed lifetime of one file descriptor
// between its opening syscall and its close.
type FileAccess struct {
	Filename       string             `json:"filename"`
	FileDescriptor int64              `json:"file_descriptor"`
	DataLength     int64              `json:"data_length"`
	ReadData       collector.RawBytes `json:"read_data,omitempty"`
	WriteData      collector.RawBytes `json:"write_data,omitempty"`
	StartTime      uint64             `json:"start_time"`
	EndTime        uint64             `json:"end_time"`
	ErrorCount     int                `json:"error_count"`
	Access         AccessType         `json:"access"`
}

// Domain is a Connection's address family, collapsed to the three
// values spec.md's P5 allows to leak through.
type Domain string

const (
	DomainIPv4  Domain = "IPv4"
	DomainIPv6  Domain = "IPv6"
	DomainOther Domain = "Other"
)

// Protocol is a Connection's transport protocol.
type Protocol string

const (
	ProtocolTCP   Protocol = "TCP"
	ProtocolUDP   Protocol = "UDP"
	ProtocolOther Protocol = "Other"
)

// Connection is the reconstructed lifetime of one socket.
type Connection struct {
	FileDescriptor int64    `json:"file_descriptor"`
	Domain         Domain   `json:"domain"`
	Protocol       Protocol `json:"protocol"`
	StartTime      uint64   `json:"start_time"`
	EndTime        uint64   `json:"end_time"`
}

// SpawnType distinguishes process-creation events.
type SpawnType string

const (
	SpawnFork SpawnType = "Fork"
	SpawnExec SpawnType = "Exec"
)

// SpawnEvent is one Fork or Exec.
type SpawnEvent struct {
	Type      SpawnType `json:"type"`
	ParentPID uint32    `json:"parent_pid"`
	ChildPID  uint32    `json:"child_pid"`
	Timestamp uint64    `json:"timestamp"`
	Command   string    `json:"command,omitempty"`
}

// Severity ranks an Alert; lower is more severe (spec.md §4.4).
type Severity int

const (
	SeverityCritical Severity = 0
	SeverityUrgent   Severity = 1
	SeverityCaution  Severity = 2
	SeverityNote     Severity = 3
	SeverityInfo     Severity = 4
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "Critical"
	case SeverityUrgent:
		return "Urgent"
	case SeverityCaution:
		return "Caution"
	case SeverityNote:
		return "Note"
	default:
		return "Info"
	}
}

// Alert is one triggered rule from the fixed ruleset.
type Alert struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// FileSummary aggregates the file-access side of the Report.
type FileSummary struct {
	AccessCount  int                         `json:"access_count"`
	BytesRead    int64                       `json:"bytes_read"`
	BytesWritten int64                       `json:"bytes_written"`
	Directories  []string                    `json:"directories"`
	Behavior     map[PathCategory]AccessType `json:"behavior"`
}

// NetworkSummary aggregates the connection side of the Report.
type NetworkSummary struct {
	ConnectionCount int        `json:"connection_count"`
	Domains         []Domain   `json:"domains"`
	Protocols       []Protocol `json:"protocols"`
}

// ProcessSummary aggregates the spawn side of the Report.
type ProcessSummary struct {
	ProcessesCreated int       `json:"processes_created"`
	MostCommonSpawn  SpawnType `json:"most_common_spawn_type"`
	Programs         []string  `json:"programs"`
}

// Report is the final, immutable structure produced exactly once per
// traced process (spec.md §3).
type Report struct {
	FileSummary    FileSummary    `json:"file_summary"`
	FileAccesses   []FileAccess   `json:"file_accesses"`
	NetworkSummary NetworkSummary `json:"network_summary"`
	Connections    []Connection   `json:"connections"`
	ProcessSummary ProcessSummary `json:"process_summary"`
	SpawnEvents    []SpawnEvent   `json:"spawn_events"`
	Alerts         []Alert        `json:"alerts"`
	Unhandled      []uint64       `json:"unhandled_syscalls"`
}
