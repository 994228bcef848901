package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTerminalHandlerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(NewTerminalHandlerWithLevel(&buf, slog.LevelInfo, false))

	l.Debug(HamtMonitoring, "below threshold")
	require.Empty(t, buf.String())

	l.Info(HamtMonitoring, "flushed shard", "nodes", 4)
	require.Contains(t, buf.String(), "flushed shard")
	require.Contains(t, buf.String(), "nodes=4")
}

func TestDiscardHandlerDropsEverything(t *testing.T) {
	l := NewLogger(DiscardHandler())
	require.False(t, l.Enabled(nil, LevelCrit))
	l.Error(BranchMonitoring, "should be silently dropped")
}

func TestModuleGating(t *testing.T) {
	DisableModule(BranchMonitoring)
	defer EnableModule(BranchMonitoring)

	var buf bytes.Buffer
	SetDefault(NewLogger(NewTerminalHandlerWithLevel(&buf, LevelTrace, false)))

	Debug(BranchMonitoring, "suppressed by module gate")
	require.False(t, strings.Contains(buf.String(), "suppressed"))

	EnableModule(BranchMonitoring)
	Debug(BranchMonitoring, "passes the module gate")
	require.Contains(t, buf.String(), "passes the module gate")
}
