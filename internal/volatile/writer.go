package volatile

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/forensant/triage-collector/pkg/errors"
)

// WriteSnapshot writes each populated section of snap as its own JSON
// file under dir/volatile: system-info.json, processes.json,
// network-connections.json, memory.json, disks.json. A section the
// corresponding sub-probe failed to collect is simply not written.
func WriteSnapshot(snap *Snapshot, dir string) error {
	volatileDir := filepath.Join(dir, "volatile")
	if err := os.MkdirAll(volatileDir, 0750); err != nil {
		return errors.NewError(errors.ErrCodeOpenFailed, "failed to create volatile output directory").
			WithComponent("volatile").WithOperation("WriteSnapshot").WithCause(err)
	}

	if snap.SystemInfo != nil {
		if err := writeJSON(filepath.Join(volatileDir, "system-info.json"), snap.SystemInfo); err != nil {
			return err
		}
	}
	if snap.Processes != nil {
		if err := writeJSON(filepath.Join(volatileDir, "processes.json"), snap.Processes); err != nil {
			return err
		}
	}
	if snap.Network != nil {
		if err := writeJSON(filepath.Join(volatileDir, "network-connections.json"), snap.Network); err != nil {
			return err
		}
	}
	if snap.Memory != nil {
		if err := writeJSON(filepath.Join(volatileDir, "memory.json"), snap.Memory); err != nil {
			return err
		}
	}
	if snap.Disks != nil {
		if err := writeJSON(filepath.Join(volatileDir, "disks.json"), snap.Disks); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.NewError(errors.ErrCodeSummarySerializeError, "failed to marshal volatile data section").
			WithComponent("volatile").WithOperation("writeJSON").WithContext("path", path).WithCause(err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return errors.NewError(errors.ErrCodeOpenFailed, "failed to write volatile data section").
			WithComponent("volatile").WithOperation("writeJSON").WithContext("path", path).WithCause(err)
	}
	return nil
}
