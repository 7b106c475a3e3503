// Package collect implements the platform acquisition back-ends (C2),
// the regex directory walker (C3), and the bounded-parallel artifact
// scheduler (C4).
package collect

import (
	"context"
	"time"

	"github.com/forensant/triage-collector/internal/config"
)

// Metadata describes a successfully collected artifact. Created once
// by a Backend.Collect call and never mutated afterward.
type Metadata struct {
	OriginalPath string     `json:"original_path"`
	CollectionTime string   `json:"collection_time"`
	FileSize     int64      `json:"file_size"`
	CreatedTime  *time.Time `json:"created_time,omitempty"`
	AccessedTime *time.Time `json:"accessed_time,omitempty"`
	ModifiedTime *time.Time `json:"modified_time,omitempty"`
	IsLocked     bool       `json:"is_locked"`
}

// Backend is the platform acquisition contract: copy one artifact from
// the live system into outputPath with OS-appropriate semantics.
type Backend interface {
	// Collect copies the artifact's source into outputPath and returns
	// its metadata. outputPath's parent directories are created by
	// Collect itself.
	Collect(ctx context.Context, artifact config.Artifact, outputPath string) (Metadata, error)

	// Supports reports whether this backend can service the given
	// artifact type on the current platform.
	Supports(artifactType config.ArtifactType) bool
}

// PrivilegeEnabler attempts to raise the process token privileges a
// platform backend needs (e.g. SeBackupPrivilege on Windows). Real
// elevation probing is out of scope here; callers inject a no-op
// default (see NewBackend) or their own implementation.
type PrivilegeEnabler interface {
	EnablePrivileges() error
}

// NoopPrivilegeEnabler enables nothing and never fails. It is the
// default passed to NewBackend on platforms or builds with no real
// privilege prober wired in.
type NoopPrivilegeEnabler struct{}

// EnablePrivileges implements PrivilegeEnabler by doing nothing.
func (NoopPrivilegeEnabler) EnablePrivileges() error { return nil }

// Result is the outcome of dispatching one artifact: either a single
// Metadata record (direct collection) or several (regex walk fan-out),
// keyed by their final relative path under the collection root.
type Result struct {
	Artifact string
	Entries  map[string]Metadata
	Err      error
}
