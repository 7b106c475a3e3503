package volatile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollect_PopulatesSnapshotOrRecordsErrors(t *testing.T) {
	snap := Collect(context.Background())
	require := assert.New(t)

	// At least one of system_info/memory should succeed on any host
	// this test runs on; a probe that fails must explain itself in
	// Errors rather than leaving a nil field silently.
	if snap.SystemInfo == nil {
		require.Contains(snap.Errors, "system_info")
	}
	if snap.Memory == nil {
		require.Contains(snap.Errors, "memory")
	}
}

func TestSummarize_ZeroValueSnapshot(t *testing.T) {
	sum := Summarize(&Snapshot{})
	assert.Equal(t, 0, sum.ProcessCount)
	assert.Equal(t, 0, sum.DiskCount)
	assert.Equal(t, uint64(0), sum.TotalMemoryMB)
}

func TestSummarize_PopulatedSnapshot(t *testing.T) {
	snap := &Snapshot{
		SystemInfo: &SystemInfo{Hostname: "triage-host", OSVersion: "22.04", CPUCount: 8},
		Memory:     &MemoryInfo{TotalMemory: 16 * 1024 * 1024 * 1024},
		Processes:  []ProcessInfo{{PID: 1}, {PID: 2}},
		Network:    &NetworkInfo{Interfaces: []NetworkInterface{{Name: "eth0"}}},
		Disks:      []DiskInfo{{Name: "/dev/sda1"}},
	}

	sum := Summarize(snap)
	assert.Equal(t, "triage-host", sum.SystemName)
	assert.Equal(t, "22.04", sum.OSVersion)
	assert.Equal(t, 8, sum.CPUCount)
	assert.Equal(t, uint64(16*1024), sum.TotalMemoryMB)
	assert.Equal(t, 2, sum.ProcessCount)
	assert.Equal(t, 1, sum.NetworkInterfaceCount)
	assert.Equal(t, 1, sum.DiskCount)
}
