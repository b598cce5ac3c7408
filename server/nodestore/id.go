package nodestore

import (
	"strconv"
	"strings"
)

// NewNodeID builds a path-depth encoded node id ("<depth>:<path>") from a
// sequence of path segments. An empty segment list encodes the root ("0:/").
// Rejecting a segment containing a literal '/' at construction time closes
// the escaping gap that would otherwise let two distinct segment sequences
// collide on the same encoded path.
func NewNodeID(segments ...string) (string, error) {
	for _, s := range segments {
		if s == "" || strings.Contains(s, "/") {
			return "", &InvalidPathSegmentError{Segment: s}
		}
	}
	return strconv.Itoa(len(segments)) + ":/" + strings.Join(segments, "/"), nil
}

// ParseNodeID splits a "<depth>:<path>" id into its path and validates that
// the stated depth matches the number of non-empty segments in the path.
func ParseNodeID(id string) (path string, depth int, err error) {
	colon := strings.IndexByte(id, ':')
	if colon <= 0 {
		return "", 0, &MalformedNodeIDError{ID: id}
	}
	depth, convErr := strconv.Atoi(id[:colon])
	if convErr != nil || depth < 0 {
		return "", 0, &MalformedNodeIDError{ID: id}
	}
	path = id[colon+1:]
	if !strings.HasPrefix(path, "/") {
		return "", 0, &MalformedNodeIDError{ID: id}
	}
	segments := segmentsOf(path)
	if len(segments) != depth {
		return "", 0, &MalformedNodeIDError{ID: id}
	}
	return path, depth, nil
}

func segmentsOf(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// PreviousIDFor derives the id of a first-level (height 0) previous document
// belonging to the main document mainID, for the given revision, without
// requiring a store read.
func PreviousIDFor(mainID string, revision string) (string, error) {
	path, depth, err := ParseNodeID(mainID)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(depth) + ":p" + path + "/" + revision, nil
}

// FormatCompositeID renders the "<doc-id>/<modified>" grammar used to tag a
// candidate with the modification timestamp observed at collection time.
func FormatCompositeID(id string, modifiedSecs int64) string {
	return id + "/" + strconv.FormatInt(modifiedSecs, 10)
}

// ParseCompositeID splits a composite id on its last '/', validates the
// doc-id component under the path-depth rule, and parses the modified
// suffix. A malformed doc-id component is a MalformedCompositeIDError (drop
// the candidate); a malformed numeric suffix is an InvalidModifiedSuffixError
// carrying the valid doc-id with modifiedSecs=-1 (substitute and continue).
func ParseCompositeID(composite string) (id string, modifiedSecs int64, err error) {
	slash := strings.LastIndexByte(composite, '/')
	if slash < 0 {
		return "", 0, &MalformedCompositeIDError{CompositeID: composite}
	}
	idPart, modPart := composite[:slash], composite[slash+1:]
	if _, _, perr := ParseNodeID(idPart); perr != nil {
		return "", 0, &MalformedCompositeIDError{CompositeID: composite}
	}
	mod, perr := strconv.ParseInt(modPart, 10, 64)
	if perr != nil {
		return idPart, -1, &InvalidModifiedSuffixError{CompositeID: composite}
	}
	return idPart, mod, nil
}
