package version

import (
	"strconv"
	"strings"
)

// parseSemver extracts major.minor.patch, ignoring a leading "v",
// prerelease and build metadata. Unparsable parts read as 0.
func parseSemver(v string) [3]int {
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	var out [3]int
	for i, part := range strings.SplitN(v, ".", 3) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return [3]int{}
		}
		out[i] = n
	}
	return out
}

// isNewer reports whether latest has a higher core version than current.
func isNewer(latest, current string) bool {
	l, c := parseSemver(latest), parseSemver(current)
	for i := range l {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}
