package version

// Version is the agent version. It is set at build time:
// -ldflags "-X github.com/rxtech-lab/argo-perp/internal/version.Version=0.4.0"
// The default value "main" indicates a development build.
var Version = "main"

// GetVersion returns the running agent version.
func GetVersion() string {
	return Version
}
