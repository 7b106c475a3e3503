package collect

// NewBackend constructs the Backend appropriate for the running
// platform. The concrete type is chosen per build (see generic.go,
// linux.go, windows.go, darwin.go): exactly one of these files is
// compiled into any given build, so there is exactly one NewBackend
// in the final binary.
//
// privilege is consulted only by windowsBackend; other platforms
// ignore it but still accept it so callers don't need a build-tagged
// call site of their own.
func NewBackend(privilege PrivilegeEnabler) Backend {
	return newPlatformBackend(privilege)
}
