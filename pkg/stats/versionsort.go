package stats

import (
	"regexp"
	"strings"
)

var versionPart = regexp.MustCompile(`\d+|[a-zA-Z]+`)

// CompareVersions orders version strings segment by segment, comparing digit runs
// numerically and letter runs lexically, so "10.9" < "10.10". A numeric segment
// sorts after a letter segment in the same position, and when one version is a
// prefix of the other the longer one is greater. Returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	pa := versionPart.FindAllString(a, -1)
	pb := versionPart.FindAllString(b, -1)

	for i := 0; i < len(pa) && i < len(pb); i++ {
		if c := compareSegment(pa[i], pb[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(pa) < len(pb):
		return -1
	case len(pa) > len(pb):
		return 1
	}
	return strings.Compare(a, b)
}

func compareSegment(a, b string) int {
	aNum, bNum := isDigits(a), isDigits(b)
	switch {
	case aNum && bNum:
		a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	case aNum:
		return 1
	case bNum:
		return -1
	}
	return strings.Compare(a, b)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
