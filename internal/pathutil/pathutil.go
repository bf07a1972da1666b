// Package pathutil implements path splitting for the FATX path resolver
// (component G): breaking an absolute "/"-separated path into segments, and
// deriving the dirname/basename segment lists used to resolve a parent
// directory and a target name separately.
//
// Grounded on the teacher's use of filepath.Clean/SplitList in
// driverbase.go's resolvePathToDirent, but implemented directly rather than
// through path/filepath: FATX imposes a 42-byte segment length limit with
// its own failure mode ("not found", not a generic parse error) that
// path/filepath has no hook for.
package pathutil

import (
	"strconv"
	"strings"

	"github.com/dargueta/fatx/fatxerr"
)

// MaxSegmentLength is the longest a single path segment may be (§4.G, §6).
const MaxSegmentLength = 42

// Split breaks an absolute path into its segments. "", "/", and nil all
// denote the root and yield an empty, non-nil slice. Trailing slashes are
// ignored. A segment longer than MaxSegmentLength fails resolution with
// NotFound rather than being silently truncated or accepted.
func Split(path string) ([]string, error) {
	segments := []string{}
	if path == "" || path == "/" {
		return segments, nil
	}

	trimmed := strings.TrimPrefix(path, "/")
	for _, part := range strings.Split(trimmed, "/") {
		if part == "" {
			// Either a trailing slash or a doubled separator; neither
			// contributes a segment.
			continue
		}
		if len(part) > MaxSegmentLength {
			return nil, fatxerr.NotFound.WithMessage(
				"path segment exceeds " + strconv.Itoa(MaxSegmentLength) + " bytes: " + part)
		}
		segments = append(segments, part)
	}
	return segments, nil
}

// Dirname returns every segment but the last, a freshly-owned copy. It
// returns nil (denoting root) when there's one segment or fewer.
func Dirname(segments []string) []string {
	if len(segments) <= 1 {
		return nil
	}
	out := make([]string, len(segments)-1)
	copy(out, segments[:len(segments)-1])
	return out
}

// Basename returns the last segment as a singleton slice, or nil if
// `segments` is empty.
func Basename(segments []string) []string {
	if len(segments) == 0 {
		return nil
	}
	return []string{segments[len(segments)-1]}
}
