//go:build !linux

package memproc

import (
	"context"

	"github.com/forensant/triage-collector/pkg/errors"
)

// unsupportedEnumerator is the documented gap for Windows and macOS:
// process-memory forensics there needs a VAD walk or a Mach VM walk,
// both of which require libraries this module cannot reach without
// cgo. Every call fails with ErrCodePlatformUnsupported rather than
// silently returning an empty result.
type unsupportedEnumerator struct{}

// NewEnumerator returns the platform-appropriate Enumerator.
func NewEnumerator() Enumerator {
	return unsupportedEnumerator{}
}

func unsupportedErr(op string) error {
	return errors.NewError(errors.ErrCodePlatformUnsupported, "memory acquisition is not implemented on this platform").
		WithComponent("memproc").WithOperation(op)
}

func (unsupportedEnumerator) EnumerateRegions(context.Context, int32) ([]MemoryRegionInfo, error) {
	return nil, unsupportedErr("EnumerateRegions")
}

func (unsupportedEnumerator) EnumerateModules(context.Context, int32) ([]ModuleInfo, error) {
	return nil, unsupportedErr("EnumerateModules")
}

func (unsupportedEnumerator) Read(context.Context, int32, uint64, int) ([]byte, error) {
	return nil, unsupportedErr("Read")
}
