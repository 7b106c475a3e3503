package summary

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensant/triage-collector/internal/collect"
	"github.com/forensant/triage-collector/internal/memproc"
	"github.com/forensant/triage-collector/internal/volatile"
)

func writeArtifact(t *testing.T, collectionRoot, relPath string, content []byte) {
	t.Helper()
	full := filepath.Join(collectionRoot, "fs", relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0750))
	require.NoError(t, os.WriteFile(full, content, 0640))
}

func TestBuild_ProducesOneRecordPerArtifactWithHash(t *testing.T) {
	collectionRoot := t.TempDir()
	writeArtifact(t, collectionRoot, "etc/passwd", []byte("root:x:0:0"))
	writeArtifact(t, collectionRoot, "var/log/syslog", []byte("log line"))

	results := &collect.Results{
		Entries: map[string]collect.Metadata{
			"etc/passwd":     {OriginalPath: "/etc/passwd", FileSize: 10},
			"var/log/syslog": {OriginalPath: "/var/log/syslog", FileSize: 8},
		},
	}

	doc := Build(results, collectionRoot, nil, nil, Options{Hostname: "triage-host"})

	require.Len(t, doc.Artifacts, 2)
	assert.Equal(t, "triage-host", doc.Hostname)
	assert.Equal(t, organization, doc.Organization)
	assert.NotEmpty(t, doc.CollectionID)
	assert.Nil(t, doc.VolatileData)
	assert.Nil(t, doc.ProcessMemory)

	byPath := map[string]ArtifactRecord{}
	for _, r := range doc.Artifacts {
		byPath[r.Path] = r
	}
	assert.NotEqual(t, noHash, byPath["etc/passwd"].SHA256)
	assert.Equal(t, "/etc/passwd", byPath["etc/passwd"].OriginalPath)
}

func TestBuild_MissingOnDiskFileGetsNoHashNotError(t *testing.T) {
	collectionRoot := t.TempDir()
	results := &collect.Results{
		Entries: map[string]collect.Metadata{
			"gone": {OriginalPath: "/gone", FileSize: 0},
		},
	}

	doc := Build(results, collectionRoot, nil, nil, Options{Hostname: "h"})

	require.Len(t, doc.Artifacts, 1)
	assert.Equal(t, noHash, doc.Artifacts[0].SHA256)
}

func TestBuild_GeneratesDistinctCollectionIDsPerCall(t *testing.T) {
	results := &collect.Results{Entries: map[string]collect.Metadata{}}
	a := Build(results, t.TempDir(), nil, nil, Options{Hostname: "h"})
	b := Build(results, t.TempDir(), nil, nil, Options{Hostname: "h"})
	assert.NotEqual(t, a.CollectionID, b.CollectionID)
}

func TestBuild_IncludesVolatileAndProcessMemorySectionsWhenProvided(t *testing.T) {
	results := &collect.Results{Entries: map[string]collect.Metadata{}}
	vs := volatile.Summary{SystemName: "host1", CPUCount: 4, ProcessCount: 120}
	ms := memproc.CollectionSummary{
		ProcessesExamined:  10,
		ProcessesCollected: 8,
		StartTime:          time.Now().UTC().Format(time.RFC3339),
		EndTime:            time.Now().UTC().Format(time.RFC3339),
	}

	doc := Build(results, t.TempDir(), &vs, &ms, Options{Hostname: "h"})

	require.NotNil(t, doc.VolatileData)
	assert.Equal(t, "host1", doc.VolatileData.SystemName)
	assert.Equal(t, defaultVolatileFiles, doc.VolatileData.Files)

	require.NotNil(t, doc.ProcessMemory)
	assert.Equal(t, 10, doc.ProcessMemory.ProcessesExamined)
	assert.Equal(t, "process_memory/memory_collection_summary.json", doc.ProcessMemory.SummaryFile)
}

func TestWrite_ProducesValidJSONAtPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "collection_summary.json")

	doc := Build(&collect.Results{Entries: map[string]collect.Metadata{}}, t.TempDir(), nil, nil, Options{Hostname: "h"})

	require.NoError(t, Write(doc, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "h", decoded["hostname"])
	assert.Equal(t, organization, decoded["organization"])
	assert.NotContains(t, decoded, "volatile_data")
	assert.NotContains(t, decoded, "process_memory")
}
