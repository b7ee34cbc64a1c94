package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

// InitialVersionNumber is assigned to a study's first protocol version.
const InitialVersionNumber = "v1.0"

var versionNumberPattern = regexp.MustCompile(`^v(\d+)\.(\d+)$`)

// ParseVersionNumber splits a vMAJOR.MINOR version string into its components.
// Malformed input is reported as an error; there is no silent fallback.
func ParseVersionNumber(s string) (major, minor int, err error) {
	m := versionNumberPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("malformed version number %q: expected vMAJOR.MINOR", s)
	}
	major, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed version number %q: %w", s, err)
	}
	minor, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed version number %q: %w", s, err)
	}
	return major, minor, nil
}

// FormatVersionNumber renders major/minor components as a version string.
func FormatVersionNumber(major, minor int) string {
	return fmt.Sprintf("v%d.%d", major, minor)
}

// NextVersionNumber computes the version number following current for the
// given amendment type. An empty current yields the initial version. MAJOR
// and SAFETY amendments bump the major component and reset the minor; all
// other types bump the minor component.
func NextVersionNumber(current string, amendmentType AmendmentType) (string, error) {
	if current == "" {
		return InitialVersionNumber, nil
	}
	major, minor, err := ParseVersionNumber(current)
	if err != nil {
		return "", err
	}
	switch amendmentType {
	case AmendmentTypeMajor, AmendmentTypeSafety:
		return FormatVersionNumber(major+1, 0), nil
	default:
		return FormatVersionNumber(major, minor+1), nil
	}
}

// CompareVersionNumbers orders two version strings: -1 when a precedes b,
// 0 when equal, +1 when a follows b.
func CompareVersionNumbers(a, b string) (int, error) {
	aMajor, aMinor, err := ParseVersionNumber(a)
	if err != nil {
		return 0, err
	}
	bMajor, bMinor, err := ParseVersionNumber(b)
	if err != nil {
		return 0, err
	}
	switch {
	case aMajor != bMajor:
		if aMajor < bMajor {
			return -1, nil
		}
		return 1, nil
	case aMinor != bMinor:
		if aMinor < bMinor {
			return -1, nil
		}
		return 1, nil
	default:
		return 0, nil
	}
}
