//go:build windows

package collect

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/windows"

	"github.com/forensant/triage-collector/internal/buffer"
	"github.com/forensant/triage-collector/internal/config"
	"github.com/forensant/triage-collector/pkg/errors"
)

// backupPrivileges are enabled once at backend construction so locked
// system files (the MFT, live registry hives, in-use event logs) open
// successfully via FILE_FLAG_BACKUP_SEMANTICS.
var backupPrivileges = []string{
	"SeBackupPrivilege",
	"SeRestorePrivilege",
	"SeSecurityPrivilege",
	"SeTakeOwnershipPrivilege",
	"SeDebugPrivilege",
}

// windowsBackend opens every source through CreateFile with
// FILE_FLAG_BACKUP_SEMANTICS, which lets an elevated process read
// files that the standard open path would report as in-use.
type windowsBackend struct {
	genericBackend
}

func newPlatformBackend(privilege PrivilegeEnabler) Backend {
	if privilege == nil {
		privilege = NoopPrivilegeEnabler{}
	}
	_ = privilege.EnablePrivileges()
	enableBackupPrivileges()
	return windowsBackend{}
}

// enableBackupPrivileges adjusts the current process token so the
// raw-handle reads below can bypass normal locking. It is best effort:
// every error and the AdjustTokenPrivileges result are discarded, and
// nothing checks whether a privilege is enabled once the call returns.
func enableBackupPrivileges() {
	var token windows.Token
	proc := windows.CurrentProcess()
	if err := windows.OpenProcessToken(proc,
		windows.TOKEN_ADJUST_PRIVILEGES|windows.TOKEN_QUERY, &token); err != nil {
		return
	}
	defer token.Close()

	for _, name := range backupPrivileges {
		enableSinglePrivilege(token, name)
	}
}

func enableSinglePrivilege(token windows.Token, name string) {
	var luid windows.LUID
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return
	}
	if err := windows.LookupPrivilegeValue(nil, namePtr, &luid); err != nil {
		return
	}

	privileges := windows.Tokenprivileges{
		PrivilegeCount: 1,
		Privileges: [1]windows.LUIDAndAttributes{
			{Luid: luid, Attributes: windows.SE_PRIVILEGE_ENABLED},
		},
	}
	_ = windows.AdjustTokenPrivileges(token, false, &privileges, 0, nil, nil)
}

func (b windowsBackend) Supports(t config.ArtifactType) bool {
	if t.Category == "Windows" {
		return true
	}
	return b.genericBackend.Supports(t)
}

// Collect routes MFT, Registry, EventLog, Prefetch, and USNJournal
// artifacts through the raw backup-semantics reader; everything else
// falls back to the plain file/directory copy.
func (b windowsBackend) Collect(ctx context.Context, artifact config.Artifact, outputPath string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}

	switch artifact.ArtifactType.Variant {
	case "MFT", "Registry", "EventLog", "Prefetch", "USNJournal":
		return b.collectRawHandle(artifact.SourcePath, outputPath)
	default:
		return b.genericBackend.Collect(ctx, artifact, outputPath)
	}
}

// collectRawHandle opens source with FILE_FLAG_BACKUP_SEMANTICS so
// locked or in-use files can still be read, then streams the content
// to dest through the shared buffer pool exactly like the generic
// path does.
func (b windowsBackend) collectRawHandle(source, dest string) (Metadata, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeOpenFailed, "failed to create output directory").
			WithComponent("collect").WithOperation("collectRawHandle").WithCause(err)
	}

	sourcePtr, err := windows.UTF16PtrFromString(source)
	if err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeInvalidPath, "invalid source path").
			WithComponent("collect").WithOperation("collectRawHandle").WithCause(err)
	}

	handle, err := windows.CreateFile(
		sourcePtr,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeOpenFailed, "failed to open source with backup semantics").
			WithComponent("collect").WithOperation("collectRawHandle").
			WithContext("path", source).WithCause(err)
	}
	defer windows.CloseHandle(handle)

	in := os.NewFile(uintptr(handle), source)
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return Metadata{}, errors.NewError(errors.ErrCodeOpenFailed, "failed to create destination file").
			WithComponent("collect").WithOperation("collectRawHandle").WithCause(err)
	}
	defer out.Close()

	buf := buffer.GetBuffer(8 * 1024 * 1024)
	defer buffer.PutBuffer(buf)

	written, err := io.CopyBuffer(out, in, buf)
	if err != nil {
		// A raw handle read failing partway through a locked system
		// file is reported, not silently truncated: callers decide
		// whether a partial MFT/hive is still useful.
		return Metadata{}, errors.NewError(errors.ErrCodeLockedFileFallback, "failed reading locked file via raw handle").
			WithComponent("collect").WithOperation("collectRawHandle").
			WithContext("path", source).WithCause(err)
	}

	now := time.Now().UTC()
	return Metadata{
		OriginalPath:   source,
		CollectionTime: now.Format(time.RFC3339),
		FileSize:       written,
		IsLocked:       true,
	}, nil
}
