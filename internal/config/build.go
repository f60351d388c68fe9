package config

// Build identification, stamped via -ldflags at release time.
// These feed the version subcommand and the build-info block of issue reports.
var (
	Version = "0.3.0"
	Commit  = "dev"
)

// BuildInfo returns the "version (commit)" string used in issue bodies.
func BuildInfo() string {
	return Version + " (" + Commit + ")"
}
