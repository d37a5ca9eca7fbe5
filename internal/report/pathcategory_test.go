package report

import "testing"

import "github.com/stretchr/testify/require"

func TestClassifyPathHomeDir(t *testing.T) {
	cat, ok := ClassifyPath("/home/alice/.bashrc")
	require.True(t, ok)
	require.Equal(t, CategoryHomeDir, cat)

	cat, ok = ClassifyPath("~/notes.txt")
	require.True(t, ok)
	require.Equal(t, CategoryHomeDir, cat)
}

func TestClassifyPathSystem(t *testing.T) {
	for _, p := range []string{"/usr/bin/ls", "/etc/passwd", "/var/log/syslog", "/opt/app"} {
		cat, ok := ClassifyPath(p)
		require.True(t, ok, p)
		require.Equal(t, CategorySystem, cat)
	}
}

func TestClassifyPathRuntime(t *testing.T) {
	for _, p := range []string{"/tmp/foo", "/run/lock", "/proc/1/status", "/dev/null"} {
		cat, ok := ClassifyPath(p)
		require.True(t, ok, p)
		require.Equal(t, CategoryRuntime, cat)
	}
}

func TestClassifyPathCurrentDirIsRelativeOnly(t *testing.T) {
	cat, ok := ClassifyPath("relative/path.txt")
	require.True(t, ok)
	require.Equal(t, CategoryCurrentDir, cat)
}

// An unmatched absolute path (outside home/system/runtime) belongs to no
// category: current_dir is only "any relative path", not a catch-all.
func TestClassifyPathUnmatchedAbsoluteIsUnclassified(t *testing.T) {
	_, ok := ClassifyPath("/mediaxyz/file")
	require.False(t, ok)
}

func TestMatchesRoot(t *testing.T) {
	require.True(t, MatchesRoot("/root/.bash_history"))
	require.False(t, MatchesRoot("/home/alice/.bash_history"))
}

func TestMatchesSuspiciousFile(t *testing.T) {
	require.True(t, MatchesSuspiciousFile("/home/alice/.bash_history"))
	require.True(t, MatchesSuspiciousFile("/etc/passwd"))
	require.True(t, MatchesSuspiciousFile("/home/alice/.aws/credentials"))
	require.False(t, MatchesSuspiciousFile("/home/alice/notes.txt"))
}

func TestIsStdioFD(t *testing.T) {
	require.True(t, IsStdioFD(0))
	require.True(t, IsStdioFD(1))
	require.True(t, IsStdioFD(2))
	require.False(t, IsStdioFD(3))
	require.False(t, IsStdioFD(-1))
}
