package vfs

import "strings"

// Guest paths use backslash separators and compare case-insensitively.
const separator = '\\'

// CanonicalizePath normalizes a guest path: forward slashes become
// backslashes, empty and "." segments are dropped and ".." removes the
// previous segment. A leading separator is kept; a trailing one is not.
func CanonicalizePath(path string) string {
	rooted := len(path) > 0 && (path[0] == '\\' || path[0] == '/')
	parts := SplitPath(path)
	out := parts[:0]
	for _, p := range parts {
		switch p {
		case ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, p)
		}
	}
	joined := strings.Join(out, string(separator))
	if rooted {
		return string(separator) + joined
	}
	return joined
}

// SplitPath returns the non-empty segments of a guest path. Both separators
// are accepted.
func SplitPath(path string) []string {
	return strings.FieldsFunc(path, isSeparator)
}

// JoinPath joins guest path segments with a single separator between them.
func JoinPath(elem ...string) string {
	var b strings.Builder
	for _, e := range elem {
		e = strings.TrimRight(e, `\/`)
		if e == "" {
			continue
		}
		if b.Len() > 0 && !isSeparator(rune(e[0])) {
			b.WriteByte(separator)
		}
		b.WriteString(e)
	}
	return b.String()
}

// BasePath returns everything before the last separator of path, or "" when
// path has a single segment.
func BasePath(path string) string {
	path = strings.TrimRight(path, `\/`)
	i := strings.LastIndexAny(path, `\/`)
	if i < 0 {
		return ""
	}
	return path[:i]
}

// NameFromPath returns the last segment of path.
func NameFromPath(path string) string {
	path = strings.TrimRight(path, `\/`)
	return path[strings.LastIndexAny(path, `\/`)+1:]
}

// hasPathPrefixFold reports whether prefix is a case-insensitive prefix of
// path ending on a segment boundary, so "\Device\A" matches "\Device\A\x"
// but not "\Device\AB".
func hasPathPrefixFold(path, prefix string) bool {
	if len(prefix) > len(path) || !strings.EqualFold(path[:len(prefix)], prefix) {
		return false
	}
	if len(prefix) == len(path) || prefix == "" {
		return true
	}
	return isSeparator(rune(prefix[len(prefix)-1])) || isSeparator(rune(path[len(prefix)]))
}

func isSeparator(r rune) bool { return r == '\\' || r == '/' }
