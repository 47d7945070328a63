// Package zvtversion holds the driver library's own semantic version and
// a helper for comparing it against a terminal's reported firmware
// version string during diagnostics.
package zvtversion

import (
	"strings"

	"github.com/blang/semver"
)

// Current is this driver library's own version, reported by diagnostic
// tooling alongside the terminal's own firmware version.
var Current = semver.MustParse("0.1.0")

// FirmwareAtLeast reports whether reported (e.g. a
// CVendFunctionsEnhancedSystemInformationCompletion.SwVersion string like
// "GER-APP-v2.0.9") embeds a semantic version that is >= want. Firmware
// version strings aren't bare semver, so this first extracts the
// "vX.Y.Z" substring; if none is found it falls back to a plain substring
// containment check against want's string form.
func FirmwareAtLeast(reported string, want semver.Version) (bool, error) {
	idx := strings.IndexByte(reported, 'v')
	for idx >= 0 {
		candidate := reported[idx+1:]
		if end := strings.IndexAny(candidate, " \t"); end >= 0 {
			candidate = candidate[:end]
		}
		if v, err := semver.Parse(candidate); err == nil {
			return v.GTE(want), nil
		}
		next := strings.IndexByte(reported[idx+1:], 'v')
		if next < 0 {
			break
		}
		idx = idx + 1 + next
	}
	return strings.Contains(reported, want.String()), nil
}
