// Package useragent builds the User-Agent sent to upstream endpoints.
package useragent

import (
	"fmt"
	"runtime"
)

// Version is the version of the binary, set by the main package.
var Version = "dev"

// Get returns the User-Agent of finch.
func Get() string {
	return fmt.Sprintf("finch/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
}
