// semver.go provides version string validation and comparison helpers used
// when recording project versions and deployment runs.
package validation

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// ValidateVersion validates that a version string parses as a semantic-ish
// version (go-version also accepts common forms like "1.2" and "v1.2.3").
func ValidateVersion(versionStr string) error {
	_, err := version.NewVersion(versionStr)
	if err != nil {
		return fmt.Errorf("invalid version: %w", err)
	}
	return nil
}

// CompareVersions compares two version strings.
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func CompareVersions(v1Str, v2Str string) (int, error) {
	v1, err := version.NewVersion(v1Str)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", v1Str, err)
	}

	v2, err := version.NewVersion(v2Str)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", v2Str, err)
	}

	return v1.Compare(v2), nil
}
