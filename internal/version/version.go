// ABOUTME: Version and product identification
// ABOUTME: Version is overridden at build time via -ldflags
package version

import (
	"fmt"
	"runtime"
)

// Version is the release version, set with -ldflags "-X .../version.Version=..."
var Version = "0.3.0"

// CommitID is the git commit the binary was built from
var CommitID = "unknown"

const (
	// Product is the software name reported to stream listeners
	Product = "codecbridge"

	// Manufacturer identifies the maintainers
	Manufacturer = "Resonate Protocol"
)

// String returns a one-line description for --version
func String() string {
	return fmt.Sprintf("%s %s (commit %s, %s %s/%s)", Product, Version, CommitID, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
