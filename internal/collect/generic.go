//go:build !windows && !linux && !darwin

package collect

// newPlatformBackend on unsupported platforms falls back to the plain
// file/directory copy backend: no OS-tagged artifact type will ever
// match, but Generic/Custom artifacts still collect correctly so the
// rest of the module stays buildable on any GOOS.
func newPlatformBackend(_ PrivilegeEnabler) Backend {
	return genericBackend{}
}
