package release

import "golang.org/x/mod/semver"

// Canonical normalizes a version string to the "v"-prefixed form used
// throughout overhaul. Empty strings stay empty.
func Canonical(v string) string {
	if v == "" {
		return ""
	}
	if v[0] != 'v' {
		v = "v" + v
	}
	return v
}

// IsValid reports whether v (after Canonical) is a valid semantic version.
func IsValid(v string) bool {
	return semver.IsValid(Canonical(v))
}

// Same reports whether two version strings denote the same release,
// tolerating a missing "v" prefix on either side. Strings that are not
// valid semver fall back to exact comparison.
func Same(a, b string) bool {
	ca, cb := Canonical(a), Canonical(b)
	if semver.IsValid(ca) && semver.IsValid(cb) {
		return semver.Compare(ca, cb) == 0
	}
	return a == b
}
