// Package version holds build metadata injected at link time.
package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags "-X github.com/jackzampolin/folio/version.GitRelease=..." at build time.
var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
)

// GoInfo reports the toolchain and platform the binary was built with.
var GoInfo = fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
