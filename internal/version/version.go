package version

// Version is the application version, set via build-time ldflags:
// go build -ldflags "-X git.home.luguber.info/inful/wikimirror/internal/version.Version=v1.2.0".
var Version = "unknown"

// Build metadata, also populated by ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by the version command.
func String() string {
	return Version + " (built " + BuildTime + ", commit " + GitCommit + ")"
}
