// Package version holds build identification stamped in via ldflags.
package version

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is when the binary was built.
	BuildTime = "unknown"
)

// String renders the three fields as a single display line.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
