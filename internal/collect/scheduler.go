package collect

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/forensant/triage-collector/internal/config"
	"github.com/forensant/triage-collector/internal/pathresolver"
	"github.com/forensant/triage-collector/pkg/errors"
)

// maxConcurrency bounds the worker pool at min(NumCPU*2, 32), matching
// the collector's own rate-limiting policy for concurrent I/O.
func maxConcurrency() int {
	n := runtime.NumCPU() * 2
	if n > 32 {
		return 32
	}
	if n < 1 {
		return 1
	}
	return n
}

// Scheduler dispatches a declared artifact list across a bounded
// worker pool and assembles the results into a single shared map.
type Scheduler struct {
	backend Backend
}

// NewScheduler wires a Scheduler to the platform-appropriate Backend.
func NewScheduler(backend Backend) *Scheduler {
	return &Scheduler{backend: backend}
}

// Results is the outcome of one Run: a map from normalized relative
// path (always forward-slash separated) to collection metadata, plus
// per-artifact errors that did not abort the run.
type Results struct {
	mu      sync.Mutex
	Entries map[string]Metadata
	Errors  []ArtifactError
}

// ArtifactError names the artifact and whether it was required when
// its collection failed.
type ArtifactError struct {
	Artifact string
	Required bool
	Err      error
}

func newResults() *Results {
	return &Results{Entries: make(map[string]Metadata)}
}

func (r *Results) put(relativePath string, m Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Entries[relativePath] = m
}

func (r *Results) fail(artifact string, required bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, ArtifactError{Artifact: artifact, Required: required, Err: err})
}

// Run collects every artifact in artifacts into a fresh "fs"
// subdirectory of baseDir, with concurrency bounded by maxConcurrency.
// A failed optional artifact is recorded in Results.Errors and does
// not stop the run; a failed required artifact is recorded the same
// way, so the overall collection still succeeds with warnings rather
// than aborting on the first failure.
func (s *Scheduler) Run(ctx context.Context, artifacts []config.Artifact, baseDir string) (*Results, error) {
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, errors.NewError(errors.ErrCodeOpenFailed, "failed to create base directory").
			WithComponent("collect").WithOperation("Run").WithCause(err)
	}

	fsDir := filepath.Join(baseDir, "fs")
	if err := os.MkdirAll(fsDir, 0750); err != nil {
		return nil, errors.NewError(errors.ErrCodeOpenFailed, "failed to create fs directory").
			WithComponent("collect").WithOperation("Run").WithCause(err)
	}

	results := newResults()
	sem := make(chan struct{}, maxConcurrency())
	seen := newDestinationTracker()

	var wg sync.WaitGroup
	for _, artifact := range artifacts {
		artifact := artifact
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results.fail(artifact.Name, artifact.Required, ctx.Err())
				return
			}
			defer func() { <-sem }()

			s.collectOne(ctx, artifact, fsDir, seen, results)
		}()
	}
	wg.Wait()

	return results, nil
}

func (s *Scheduler) collectOne(ctx context.Context, artifact config.Artifact, fsDir string, seen *destinationTracker, results *Results) {
	artifact.SourcePath = pathresolver.Expand(artifact.SourcePath)

	destPath, err := destinationPath(fsDir, artifact)
	if err != nil {
		results.fail(artifact.Name, artifact.Required, err)
		return
	}
	destPath = seen.resolve(destPath)

	if err := os.MkdirAll(filepath.Dir(destPath), 0750); err != nil {
		results.fail(artifact.Name, artifact.Required, err)
		return
	}

	if artifact.Regex != nil && artifact.Regex.Enabled {
		s.collectRegex(artifact, destPath, fsDir, results)
		return
	}

	meta, err := s.backend.Collect(ctx, artifact, destPath)
	if err != nil {
		results.fail(artifact.Name, artifact.Required, err)
		return
	}
	results.put(relativeToBase(destPath, fsDir), meta)
}

func (s *Scheduler) collectRegex(artifact config.Artifact, destPath, fsDir string, results *Results) {
	walker, err := NewWalkerFromConfig(artifact.Regex)
	if err != nil {
		results.fail(artifact.Name, artifact.Required, err)
		return
	}

	entries, walkErrors := walker.Walk(artifact.SourcePath, destPath)
	for _, e := range entries {
		full := filepath.Join(destPath, e.RelativePath)
		results.put(relativeToBase(full, fsDir), e.Metadata)
	}
	for _, werr := range walkErrors {
		results.fail(artifact.Name, artifact.Required, werr)
	}
}

// destinationPath computes where an artifact lands under fsDir:
// special artifacts (no natural on-disk path) use their declared
// destination name directly; everything else preserves the original
// path structure with its root separator or drive letter stripped.
// The relative component is run through pathresolver.ResolveOutputPath
// so a config-supplied destination_name or source_path can't escape
// fsDir via a ".." component.
func destinationPath(fsDir string, artifact config.Artifact) (string, error) {
	rel := artifact.DestinationName
	if !artifact.IsSpecial() {
		rel = stripRoot(artifact.SourcePath)
	}

	resolved, err := pathresolver.ResolveOutputPath(rel, fsDir)
	if err != nil {
		return "", errors.NewError(errors.ErrCodePathEscape, "artifact destination escapes collection tree").
			WithComponent("collect").WithOperation("destinationPath").
			WithContext("artifact", artifact.Name).WithCause(err)
	}
	return resolved, nil
}

func stripRoot(sourcePath string) string {
	if len(sourcePath) >= 2 && sourcePath[1] == ':' {
		// Drive-letter absolute path, e.g. C:\Windows\System32.
		return strings.TrimLeft(sourcePath[2:], `\/`)
	}
	return strings.TrimLeft(sourcePath, `\/`)
}

// relativeToBase renders path relative to baseDir with forward
// slashes regardless of host separator, for stable map keys and
// summary output across platforms.
func relativeToBase(path, baseDir string) string {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		rel = path
	}
	return strings.ReplaceAll(rel, `\`, "/")
}

// destinationTracker resolves filename collisions by appending a
// numeric suffix before the extension, matching handle_duplicate_filename's
// counting-up behavior. It is safe for concurrent use since multiple
// scheduled artifacts may compute the same destination path.
type destinationTracker struct {
	mu    sync.Mutex
	inUse map[string]bool
}

func newDestinationTracker() *destinationTracker {
	return &destinationTracker{inUse: make(map[string]bool)}
}

func (t *destinationTracker) resolve(path string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.inUse[path] && !pathExists(path) {
		t.inUse[path] = true
		return path
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for counter := 1; ; counter++ {
		candidate := stem + "_" + strconv.Itoa(counter) + ext
		if !t.inUse[candidate] && !pathExists(candidate) {
			t.inUse[candidate] = true
			return candidate
		}
	}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
