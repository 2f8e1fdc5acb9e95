// Package version carries build metadata injected at link time.
package version

// Injected via -ldflags at build time.
var (
	// Version is the semantic version of the jitdiff binary.
	Version = "dev"
	// Commit is the Git hash the binary was built from.
	Commit = "<unknown>"
	// Date is the build timestamp.
	Date = "<unknown>"
)
