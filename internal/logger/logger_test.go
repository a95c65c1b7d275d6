package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLogger(t *testing.T) {
	t.Cleanup(func() { _ = Init(Options{}) })
}

func TestInitDisabledDiscards(t *testing.T) {
	resetLogger(t)
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Enabled: true, Writer: &buf}))
	require.NoError(t, Init(Options{Enabled: false}))

	Default().Error("should not appear")
	assert.Zero(t, buf.Len())
}

func TestInitWriterLevel(t *testing.T) {
	resetLogger(t)
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Enabled: true, Writer: &buf}))

	Default().Debug("below the default level")
	assert.Zero(t, buf.Len())

	require.NoError(t, Init(Options{Enabled: true, Writer: &buf, Level: slog.LevelDebug}))
	Default().Debug("registered device", "mount", `\Device\A`)
	assert.Contains(t, buf.String(), "registered device")
	assert.Contains(t, buf.String(), `\Device\A`)
}

func TestForFollowsProcessLogger(t *testing.T) {
	resetLogger(t)
	log := For(nil, "vfs").With("mount", "d:")

	var buf bytes.Buffer
	require.NoError(t, Init(Options{Enabled: true, Writer: &buf, Level: slog.LevelDebug}))
	log.WithGroup("open").Info("downgraded", "path", "x")

	out := buf.String()
	assert.Contains(t, out, "component=vfs")
	assert.Contains(t, out, "mount=d:")
	assert.Contains(t, out, "open.path=x")
}

func TestForExplicitLogger(t *testing.T) {
	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, nil))
	For(custom, "memory").Info("heap alloc")
	assert.Contains(t, buf.String(), "component=memory")
}

func TestInitLogDirPrunesOldLogs(t *testing.T) {
	resetLogger(t)
	dir := t.TempDir()
	old := filepath.Join(dir, logPrefix+time.Now().AddDate(0, 0, -(retentionDays+5)).Format(logDateLayout)+logSuffix)
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	recent := filepath.Join(dir, logPrefix+time.Now().AddDate(0, 0, -1).Format(logDateLayout)+logSuffix)
	require.NoError(t, os.WriteFile(recent, []byte("x"), 0o644))
	unrelated := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("x"), 0o644))

	require.NoError(t, Init(Options{Enabled: true, LogDir: dir}))
	Default().Info("hello")

	assert.NoFileExists(t, old)
	assert.FileExists(t, recent)
	assert.FileExists(t, unrelated)

	today := filepath.Join(dir, logPrefix+time.Now().Format(logDateLayout)+logSuffix)
	data, err := os.ReadFile(today)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
