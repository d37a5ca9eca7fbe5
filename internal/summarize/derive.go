package summarize

import (
	"path"
	"sort"

	"github.com/itzagasta/sentryd/internal/collector"
	"github.com/itzagasta/sentryd/internal/report"
)

// deriveSpawns is the spawn half of Phase C: Fork and Execve events are
// sorted by exit timestamp and turned into SpawnEvents. Execve also
// contributes to the program list and the set of paths that were
// executed from, which feeds the behavior matrix and alerts.
func deriveSpawns(spawns []collector.TraceEvent) (events []report.SpawnEvent, programs []string, execPaths []string) {
	sorted := append([]collector.TraceEvent(nil), spawns...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ExitTimestamp < sorted[j].ExitTimestamp })

	for _, ev := range sorted {
		switch p := ev.Payload.(type) {
		case collector.ForkPayload:
			var child uint32
			if p.ChildPID.OK() {
				child = uint32(p.ChildPID)
			}
			events = append(events, report.SpawnEvent{
				Type:      report.SpawnFork,
				ParentPID: ev.Tgid,
				ChildPID:  child,
				Timestamp: ev.ExitTimestamp,
			})
		case collector.ExecvePayload:
			if p.Path != "" {
				programs = append(programs, p.Path)
				execPaths = append(execPaths, p.Path)
			}
			events = append(events, report.SpawnEvent{
				Type: report.SpawnExec,
				// exec replaces the image in place: no new PID is created
				// (spec.md P6), so parent and child are the same tgid.
				ParentPID: ev.Tgid,
				ChildPID:  ev.Tgid,
				Timestamp: ev.ExitTimestamp,
				Command:   p.Path,
			})
		}
	}
	return events, programs, execPaths
}

// computeBehavior classifies every accessed path into one of the five
// path categories and unions (bitwise-OR) the observed AccessType into
// that category's entry (spec.md §4.4).
func computeBehavior(fileAccesses []report.FileAccess, execPaths []string) map[report.PathCategory]report.AccessType {
	matrix := make(map[report.PathCategory]report.AccessType, len(report.AllCategories))
	for _, c := range report.AllCategories {
		matrix[c] = report.AccessType{}
	}

	for _, fa := range fileAccesses {
		if report.IsStdioFD(fa.FileDescriptor) {
			merge(matrix, report.CategoryStdio, fa.Access)
			continue
		}
		if fa.Filename == "" || fa.Filename == "unknown" {
			continue
		}
		if cat, ok := report.ClassifyPath(fa.Filename); ok {
			merge(matrix, cat, fa.Access)
		}
	}

	for _, p := range execPaths {
		if cat, ok := report.ClassifyPath(p); ok {
			merge(matrix, cat, report.AccessType{Execute: true})
		}
	}

	return matrix
}

func merge(matrix map[report.PathCategory]report.AccessType, cat report.PathCategory, at report.AccessType) {
	cur := matrix[cat]
	cur.Merge(at)
	matrix[cat] = cur
}

// computeDirectories builds the sorted, deduplicated, empty-free
// directory list (P4): the parent of every accessed file's path.
func computeDirectories(fileAccesses []report.FileAccess) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, fa := range fileAccesses {
		if fa.Filename == "" || fa.Filename == "unknown" {
			continue
		}
		dir := path.Dir(fa.Filename)
		if dir == "" || dir == "." {
			continue
		}
		if _, ok := seen[dir]; !ok {
			seen[dir] = struct{}{}
			out = append(out, dir)
		}
	}
	sort.Strings(out)
	return out
}
