// Package buildinfo holds release metadata stamped in with -ldflags:
//
//	-X 'github.com/m3rciful/callerbot/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/callerbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/callerbot/core/buildinfo.Date=2025-08-30T12:00:00Z'
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = "local"
	// Date is RFC3339; empty for local builds.
	Date = ""
)

// String renders the metadata as "version (commit: c, built: d)".
func String() string {
	date := Date
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, date)
}
