//go:build linux

package collect

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/forensant/triage-collector/internal/config"
	"github.com/forensant/triage-collector/pkg/errors"
)

// procSelfPaths are the self-referential /proc entries that resolve
// to whichever process reads them; collecting them verbatim would
// capture the collector's own process, not the system under
// investigation.
var procSelfPaths = []string{"/proc/self", "/proc/thread-self"}

// linuxBackend collects Linux artifacts. journalctl is preferred for
// the systemd journal; a missing binary degrades to a directory copy
// rather than failing the artifact.
type linuxBackend struct {
	genericBackend
}

func newPlatformBackend(_ PrivilegeEnabler) Backend {
	return linuxBackend{}
}

// Supports matches Linux-tagged artifacts plus every Generic/Custom
// type the embedded genericBackend already handles.
func (b linuxBackend) Supports(t config.ArtifactType) bool {
	if t.Category == "Linux" {
		return true
	}
	return b.genericBackend.Supports(t)
}

func (b linuxBackend) Collect(ctx context.Context, artifact config.Artifact, outputPath string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}

	if artifact.ArtifactType.Category != "Linux" {
		return b.genericBackend.Collect(ctx, artifact, outputPath)
	}

	switch artifact.ArtifactType.Variant {
	case "Journal":
		return b.collectJournal(artifact.SourcePath, outputPath)
	case "Proc":
		return b.collectProc(artifact.SourcePath, outputPath)
	default:
		// SysLogs, Audit, Cron, Bash, Apt, Dpkg, Yum, Systemd all
		// reduce to a plain file-or-directory copy.
		return b.genericBackend.Collect(ctx, artifact, outputPath)
	}
}

// collectJournal shells out to journalctl for a JSON export of the
// last day's entries, falling back to copying the journal directory
// verbatim when the binary is missing or exits non-zero.
func (b linuxBackend) collectJournal(source, dest string) (Metadata, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeOpenFailed, "failed to create output directory").
			WithComponent("collect").WithOperation("collectJournal").WithCause(err)
	}

	output, err := exec.Command("journalctl", "--no-pager", "--output=json", "--since=yesterday").Output()
	if err != nil {
		return b.collectDirectory(source, dest)
	}

	if err := os.WriteFile(dest, output, 0640); err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeCollectionFailed, "failed to write journal export").
			WithComponent("collect").WithOperation("collectJournal").WithCause(err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return Metadata{}, classifyOpenError(dest, err)
	}

	return metadataFromStat(source, info.Size(), info), nil
}

// collectProc special-cases /proc/self and /proc/thread-self, which
// would otherwise resolve to the collector's own process, by writing
// a note file instead of the dynamic target. Every other proc entry
// falls through to plain file/directory collection.
func (b linuxBackend) collectProc(source, dest string) (Metadata, error) {
	for _, self := range procSelfPaths {
		if source == self || strings.HasPrefix(source, self+"/") {
			return b.writeNote(source, dest,
				fmt.Sprintf("skipped self-referential proc entry: %s\n", source))
		}
	}

	info, err := os.Stat(source)
	if err != nil {
		return Metadata{}, classifyOpenError(source, err)
	}
	if info.IsDir() {
		return b.collectDirectory(source, dest)
	}
	return b.collectFile(source, dest)
}

func (b linuxBackend) writeNote(source, dest, note string) (Metadata, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeOpenFailed, "failed to create output directory").
			WithComponent("collect").WithOperation("collectProc").WithCause(err)
	}
	if err := os.WriteFile(dest, []byte(note), 0640); err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeCollectionFailed, "failed to write proc note").
			WithComponent("collect").WithOperation("collectProc").WithCause(err)
	}

	now := time.Now().UTC()
	info, err := os.Stat(dest)
	if err != nil {
		return Metadata{}, classifyOpenError(dest, err)
	}
	return Metadata{
		OriginalPath:   source,
		CollectionTime: now.Format(time.RFC3339),
		FileSize:       info.Size(),
		ModifiedTime:   &now,
	}, nil
}
