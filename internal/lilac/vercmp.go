package lilac

import (
	"strings"
)

// VerCmp compares two package versions the way pacman does: an optional
// numeric epoch before ':', then alternating alphabetic/numeric segments
// where numeric segments order numerically and any numeric segment is
// newer than any alphabetic one. Returns -1, 0 or 1.
func VerCmp(a, b string) int {
	epochA, restA := splitEpoch(a)
	epochB, restB := splitEpoch(b)
	if c := cmpNumeric(epochA, epochB); c != 0 {
		return c
	}
	// pkgrel is just another segment separated by '-'
	return rpmVerCmp(restA, restB)
}

func splitEpoch(v string) (string, string) {
	if i := strings.IndexByte(v, ':'); i >= 0 {
		return v[:i], v[i+1:]
	}
	return "0", v
}

func cmpNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func rpmVerCmp(a, b string) int {
	if a == b {
		return 0
	}
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		// skip separators
		for i < len(a) && !isAlnum(a[i]) {
			i++
		}
		for j < len(b) && !isAlnum(b[j]) {
			j++
		}
		if i >= len(a) || j >= len(b) {
			break
		}

		// walk one homogeneous segment from each side
		si, sj := i, j
		numeric := isDigit(a[i])
		if numeric {
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			for j < len(b) && isDigit(b[j]) {
				j++
			}
		} else {
			for i < len(a) && isAlnum(a[i]) && !isDigit(a[i]) {
				i++
			}
			for j < len(b) && isAlnum(b[j]) && !isDigit(b[j]) {
				j++
			}
		}

		segA, segB := a[si:i], b[sj:j]
		if segB == "" {
			// a has a numeric segment where b has letters, or vice versa;
			// numeric wins
			if numeric {
				return 1
			}
			return -1
		}
		var c int
		if numeric {
			c = cmpNumeric(segA, segB)
		} else {
			c = strings.Compare(segA, segB)
		}
		if c != 0 {
			return c
		}
	}

	// one string exhausted: the longer one is newer, except a trailing
	// alphabetic segment sorts older than nothing (1.0 > 1.0rc)
	switch {
	case i >= len(a) && j >= len(b):
		return 0
	case i >= len(a):
		if j < len(b) && !isDigit(b[j]) && isAlnum(b[j]) {
			return 1
		}
		return -1
	default:
		if i < len(a) && !isDigit(a[i]) && isAlnum(a[i]) {
			return -1
		}
		return 1
	}
}
