package release

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Version is a published LibreOffice release number (ex: 24.2.3).
type Version string

// ParseVersion validates s is exactly three dot-separated numbers.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if !versionPattern.MatchString(s) {
		return "", fmt.Errorf("invalid version %q", s)
	}
	return Version(s), nil
}

// Compare returns -1, 0 or +1 comparing each component as a number.
func (v Version) Compare(other Version) int {
	return semver.Compare(v.canonical(), other.canonical())
}

func (v Version) String() string {
	return string(v)
}

// canonical returns the form understood by the semver package.
// Leading zeros are not valid semver so they are stripped first.
func (v Version) canonical() string {
	parts := strings.Split(string(v), ".")
	for i, p := range parts {
		p = strings.TrimLeft(p, "0")
		if p == "" {
			p = "0"
		}
		parts[i] = p
	}
	return "v" + strings.Join(parts, ".")
}

// Latest returns the highest version of the list.
// Entries that are not valid versions are ignored.
func Latest(candidates []string) (Version, bool) {
	var latest Version
	found := false
	for _, c := range candidates {
		v, err := ParseVersion(c)
		if err != nil {
			continue
		}
		if !found || v.Compare(latest) > 0 {
			latest = v
			found = true
		}
	}
	return latest, found
}
