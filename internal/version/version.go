// Package version provides the release version of the noba-da3 server.
package version

import "fmt"

var (
	// Version is the semantic version of the current build.
	Version = "0.3.1"
	// DevVersion is the version suffix used outside prod mode.
	DevVersion = "0.3.1"
)

func GetCurrentVersion(mode string) string {
	if mode == "prod" {
		return Version
	}
	return fmt.Sprintf("%s-%s", DevVersion, mode)
}
