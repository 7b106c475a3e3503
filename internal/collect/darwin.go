//go:build darwin

package collect

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forensant/triage-collector/internal/config"
	"github.com/forensant/triage-collector/pkg/errors"
)

// darwinBackend collects macOS artifacts. UnifiedLogs and Plist both
// prefer an external tool (log(1), plutil(1)) and degrade to a plain
// copy when the tool is missing or fails, rather than aborting the
// artifact. A Full Disk Access refusal fails only the artifact whose
// read was refused: the scheduler records it in Results.Errors and the
// remaining artifacts are still collected. This backend logs nothing
// about the refusal.
type darwinBackend struct {
	genericBackend
}

func newPlatformBackend(_ PrivilegeEnabler) Backend {
	return darwinBackend{}
}

func (b darwinBackend) Supports(t config.ArtifactType) bool {
	if t.Category == "MacOS" {
		return true
	}
	return b.genericBackend.Supports(t)
}

func (b darwinBackend) Collect(ctx context.Context, artifact config.Artifact, outputPath string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}

	if artifact.ArtifactType.Category != "MacOS" {
		return b.genericBackend.Collect(ctx, artifact, outputPath)
	}

	switch artifact.ArtifactType.Variant {
	case "UnifiedLogs":
		return b.collectUnifiedLogs(artifact.SourcePath, outputPath)
	case "Plist":
		return b.collectPlist(artifact.SourcePath, outputPath)
	default:
		// FSEvents, Spotlight, Quarantine, KnowledgeC, LaunchAgents,
		// LaunchDaemons all reduce to a plain file-or-directory copy.
		return b.genericBackend.Collect(ctx, artifact, outputPath)
	}
}

// collectUnifiedLogs copies source directly when it already exists as
// a file or directory (e.g. an archived logarchive bundle); otherwise
// it shells out to `log show` to export the live unified log.
func (b darwinBackend) collectUnifiedLogs(source, dest string) (Metadata, error) {
	if info, err := os.Stat(source); err == nil {
		if info.IsDir() {
			return b.collectDirectory(source, dest)
		}
		return b.collectFile(source, dest)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeOpenFailed, "failed to create output directory").
			WithComponent("collect").WithOperation("collectUnifiedLogs").WithCause(err)
	}

	output, err := exec.Command("log", "show", "--style=json", "--last=1d").Output()
	if err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeCollectionFailed, "log show failed and source does not exist").
			WithComponent("collect").WithOperation("collectUnifiedLogs").
			WithContext("path", source).WithCause(err)
	}

	if err := os.WriteFile(dest, output, 0640); err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeCollectionFailed, "failed to write unified log export").
			WithComponent("collect").WithOperation("collectUnifiedLogs").WithCause(err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return Metadata{}, classifyOpenError(dest, err)
	}
	return metadataFromStat(source, info.Size(), info), nil
}

// collectPlist sniffs source with file(1) and, for binary plists,
// converts to XML via plutil before copying so the artifact is
// human-readable; any failure of that pipeline falls back to a raw
// byte-for-byte copy of the original binary plist.
func (b darwinBackend) collectPlist(source, dest string) (Metadata, error) {
	info, err := os.Stat(source)
	if err != nil {
		return Metadata{}, classifyOpenError(source, err)
	}
	if info.IsDir() {
		return b.collectDirectory(source, dest)
	}

	if !isBinaryPlist(source) {
		return b.collectFile(source, dest)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeOpenFailed, "failed to create output directory").
			WithComponent("collect").WithOperation("collectPlist").WithCause(err)
	}

	if err := exec.Command("plutil", "-convert", "xml1", "-o", dest, source).Run(); err != nil {
		return b.collectFile(source, dest)
	}

	out, err := os.Stat(dest)
	if err != nil {
		return Metadata{}, classifyOpenError(dest, err)
	}
	return metadataFromStat(source, out.Size(), out), nil
}

func isBinaryPlist(path string) bool {
	output, err := exec.Command("file", path).Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(output), "binary property list")
}
