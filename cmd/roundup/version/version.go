package version

import "runtime/debug"

// Version is set with -ldflags "-X github.com/venslabs/roundup/cmd/roundup/version.Version=v0.1.0".
var Version = ""

// GetVersion returns Version, or the module version recorded in the build info.
func GetVersion() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}
