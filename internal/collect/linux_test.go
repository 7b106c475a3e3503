//go:build linux

package collect

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/forensant/triage-collector/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinuxBackend_Supports(t *testing.T) {
	b := linuxBackend{}
	assert.True(t, b.Supports(config.ArtifactType{Category: "Linux", Variant: "SysLogs"}))
	assert.True(t, b.Supports(config.ArtifactType{Category: "Generic", Variant: "Logs"}))
	assert.False(t, b.Supports(config.ArtifactType{Category: "Windows", Variant: "MFT"}))
}

func TestLinuxBackend_CollectSysLogsFallsThroughToGeneric(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "syslog")
	require.NoError(t, os.WriteFile(source, []byte("log line"), 0640))

	b := linuxBackend{}
	artifact := config.Artifact{
		ArtifactType: config.ArtifactType{Category: "Linux", Variant: "SysLogs"},
		SourcePath:   source,
	}

	dest := filepath.Join(dir, "out", "syslog")
	meta, err := b.Collect(context.Background(), artifact, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len("log line")), meta.FileSize)
}

func TestLinuxBackend_CollectProcSelfWritesNote(t *testing.T) {
	dir := t.TempDir()
	b := linuxBackend{}
	artifact := config.Artifact{
		ArtifactType: config.ArtifactType{Category: "Linux", Variant: "Proc"},
		SourcePath:   "/proc/self/status",
	}

	dest := filepath.Join(dir, "out", "proc-self")
	meta, err := b.Collect(context.Background(), artifact, dest)
	require.NoError(t, err)
	assert.Greater(t, meta.FileSize, int64(0))

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(content), "skipped self-referential proc entry")
}

func TestLinuxBackend_CollectProcOtherEntryUsesGenericCopy(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "1", "status")
	require.NoError(t, os.MkdirAll(filepath.Dir(source), 0750))
	require.NoError(t, os.WriteFile(source, []byte("pid status"), 0640))

	b := linuxBackend{}
	artifact := config.Artifact{
		ArtifactType: config.ArtifactType{Category: "Linux", Variant: "Proc"},
		SourcePath:   source,
	}

	dest := filepath.Join(dir, "out", "status")
	meta, err := b.Collect(context.Background(), artifact, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len("pid status")), meta.FileSize)
}
