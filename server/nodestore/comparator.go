package nodestore

import "strings"

// NodeDocumentIdComparator orders ids (plain node ids or composite ids) by
// their path-depth prefix first, then lexicographically by the full string.
// For composite ids this naturally orders the numeric "/<modified>" tail as
// a string suffix once the depth and path prefix agree, since the suffix
// only needs to be compared when everything before it is already equal.
// Ids that fail to expose a leading depth sort after every id that does, and
// by raw bytes among themselves, so the order stays total even when a
// malformed id slips through.
func NodeDocumentIdComparator(a, b string) int {
	da, oka := leadingDepth(a)
	db, okb := leadingDepth(b)
	if oka != okb {
		if oka {
			return -1
		}
		return 1
	}
	if oka && da != db {
		if da < db {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func leadingDepth(s string) (int, bool) {
	colon := strings.IndexByte(s, ':')
	if colon <= 0 {
		return 0, false
	}
	depth := 0
	for _, c := range s[:colon] {
		if c < '0' || c > '9' {
			return 0, false
		}
		depth = depth*10 + int(c-'0')
	}
	return depth, true
}
