package collect

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/forensant/triage-collector/internal/buffer"
	"github.com/forensant/triage-collector/internal/config"
	"github.com/forensant/triage-collector/pkg/errors"
)

// genericBackend implements the file/directory copy machinery shared
// by every platform backend. Platform backends embed it and override
// the artifact types that need OS-specific treatment.
type genericBackend struct{}

// collectFile copies a single regular file, streaming through the
// shared byte pool, and stamps the result with the source's
// filesystem times where available.
func (genericBackend) collectFile(source, dest string) (Metadata, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeOpenFailed, "failed to create output directory").
			WithComponent("collect").WithOperation("collectFile").WithCause(err)
	}

	info, err := os.Stat(source)
	if err != nil {
		return Metadata{}, classifyOpenError(source, err)
	}

	in, err := os.Open(source)
	if err != nil {
		return Metadata{}, classifyOpenError(source, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeOpenFailed, "failed to create destination file").
			WithComponent("collect").WithOperation("collectFile").WithCause(err)
	}
	defer out.Close()

	buf := buffer.GetBuffer(8 * 1024 * 1024)
	defer buffer.PutBuffer(buf)

	written, err := io.CopyBuffer(out, in, buf)
	if err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeCollectionFailed, "failed to copy file contents").
			WithComponent("collect").WithOperation("collectFile").WithCause(err)
	}

	return metadataFromStat(source, written, info), nil
}

// collectDirectory recursively copies a directory tree.
func (g genericBackend) collectDirectory(source, dest string) (Metadata, error) {
	info, err := os.Stat(source)
	if err != nil {
		return Metadata{}, classifyOpenError(source, err)
	}

	if err := os.MkdirAll(dest, 0750); err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeOpenFailed, "failed to create output directory").
			WithComponent("collect").WithOperation("collectDirectory").WithCause(err)
	}

	var total int64
	err = filepath.Walk(source, func(path string, entryInfo os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, relErr := filepath.Rel(source, path)
		if relErr != nil {
			return relErr
		}
		target := filepath.Join(dest, rel)
		if entryInfo.IsDir() {
			return os.MkdirAll(target, 0750)
		}
		m, copyErr := g.collectFile(path, target)
		if copyErr != nil {
			return copyErr
		}
		total += m.FileSize
		return nil
	})
	if err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeCollectionFailed, "failed to copy directory contents").
			WithComponent("collect").WithOperation("collectDirectory").WithCause(err)
	}

	return metadataFromStat(source, total, info), nil
}

func metadataFromStat(source string, size int64, info os.FileInfo) Metadata {
	now := time.Now().UTC()
	modified := info.ModTime().UTC()
	return Metadata{
		OriginalPath:   source,
		CollectionTime: now.Format(time.RFC3339),
		FileSize:       size,
		ModifiedTime:   &modified,
	}
}

func classifyOpenError(path string, err error) error {
	if os.IsNotExist(err) {
		return errors.NewError(errors.ErrCodeOpenFailed, "source not found").
			WithComponent("collect").WithOperation("collect").WithContext("path", path).WithCause(err)
	}
	if os.IsPermission(err) {
		return errors.NewError(errors.ErrCodePermissionDenied, "permission denied").
			WithComponent("collect").WithOperation("collect").WithContext("path", path).WithCause(err)
	}
	return errors.NewError(errors.ErrCodeOpenFailed, "failed to open source").
		WithComponent("collect").WithOperation("collect").WithContext("path", path).WithCause(err)
}

// Supports reports true for every Generic and Custom artifact type;
// platform backends embed this and only special-case their own
// OS-tagged variants.
func (genericBackend) Supports(t config.ArtifactType) bool {
	switch t.Category {
	case "Generic", "Custom", "VolatileData":
		return true
	default:
		return false
	}
}

// Collect dispatches to collectFile or collectDirectory based on the
// source's type. Used directly by platforms with no OS-specific
// acquisition semantics for a given artifact.
func (g genericBackend) Collect(ctx context.Context, artifact config.Artifact, outputPath string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}

	source := artifact.SourcePath
	info, err := os.Stat(source)
	if err != nil {
		return Metadata{}, classifyOpenError(source, err)
	}
	if info.IsDir() {
		return g.collectDirectory(source, outputPath)
	}
	return g.collectFile(source, outputPath)
}
