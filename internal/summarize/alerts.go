package summarize

import "github.com/itzagasta/sentryd/internal/report"

// computeAlerts evaluates the fixed, ordered ruleset from spec.md §4.4.
// All triggered alerts are included — they are not mutually exclusive —
// except that the severity-4 "no suspicious activity" alert only appears
// when nothing else fired (P8).
func computeAlerts(fileAccesses []report.FileAccess, execPaths []string, behavior map[report.PathCategory]report.AccessType) []report.Alert {
	var alerts []report.Alert

	for _, fa := range fileAccesses {
		if fa.Filename != "" && report.MatchesRoot(fa.Filename) {
			alerts = append(alerts, report.Alert{
				Severity: report.SeverityCritical,
				Message:  "accessed a path under /root: " + fa.Filename,
			})
			break
		}
	}

	for _, fa := range fileAccesses {
		if fa.Filename != "" && report.MatchesSuspiciousFile(fa.Filename) {
			alerts = append(alerts, report.Alert{
				Severity: report.SeverityUrgent,
				Message:  "accessed sensitive files: " + fa.Filename,
			})
			break
		}
	}

	if behavior[report.CategorySystem].Write {
		alerts = append(alerts, report.Alert{
			Severity: report.SeverityUrgent,
			Message:  "wrote into a system path",
		})
	}

	if categoryFor(execPaths, report.CategoryCurrentDir) {
		alerts = append(alerts, report.Alert{
			Severity: report.SeverityUrgent,
			Message:  "executed a program from the current directory",
		})
	}

	if categoryFor(execPaths, report.CategoryHomeDir) || categoryFor(execPaths, report.CategoryRuntime) {
		alerts = append(alerts, report.Alert{
			Severity: report.SeverityCaution,
			Message:  "executed a program from the home directory or a runtime path",
		})
	}

	if behavior[report.CategoryRuntime].Read || behavior[report.CategoryRuntime].Write {
		alerts = append(alerts, report.Alert{
			Severity: report.SeverityNote,
			Message:  "read or wrote a runtime path (/tmp, /run, /proc, /dev)",
		})
	}

	if len(alerts) == 0 {
		alerts = append(alerts, report.Alert{
			Severity: report.SeverityInfo,
			Message:  "no suspicious activity detected",
		})
	}

	return alerts
}

func categoryFor(paths []string, cat report.PathCategory) bool {
	for _, p := range paths {
		if got, ok := report.ClassifyPath(p); ok && got == cat {
			return true
		}
	}
	return false
}
