package docstore

import (
	"fmt"
	"strings"
)

// joinPath validates segments and joins them with "/". A collection path has
// an odd number of segments, a document path an even one.
func joinPath(segments []string, collection bool) (string, error) {
	if len(segments) == 0 {
		return "", fmt.Errorf("%w: no segments", ErrInvalidPath)
	}
	if odd := len(segments)%2 == 1; odd != collection {
		kind := "document"
		if collection {
			kind = "collection"
		}
		return "", fmt.Errorf("%w: %d segments cannot name a %s", ErrInvalidPath, len(segments), kind)
	}
	for i, seg := range segments {
		if err := checkSegment(seg); err != nil {
			return "", fmt.Errorf("segment %d: %w", i, err)
		}
	}
	return strings.Join(segments, "/"), nil
}

func checkSegment(seg string) error {
	if strings.TrimSpace(seg) == "" {
		return fmt.Errorf("%w: empty segment", ErrInvalidPath)
	}
	if strings.Contains(seg, "/") {
		return fmt.Errorf("%w: %q contains '/'", ErrInvalidPath, seg)
	}
	return nil
}

// splitDocPath splits "a/b/c/d" into "a/b/c" and "d".
func splitDocPath(p string) (parent, docID string) {
	i := strings.LastIndexByte(p, '/')
	return p[:i], p[i+1:]
}

// childID returns the document id of key if key is a direct child of the
// collection whose key prefix is prefix (the collection path plus "/").
func childID(key, prefix string) (string, bool) {
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	rest := key[len(prefix):]
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
