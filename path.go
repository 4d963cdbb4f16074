package treetar

import "strings"

// Separator is the path separator used in entry names.
const Separator = "/"

// Join composes the path of child inside parent.
// It does not clean the result: ".." elements and repeated separators are kept as given.
func Join(parent, child string) string {
	return parent + Separator + child
}

// TrimTrailingSeparators removes trailing separators from p.
// A path made only of separators is reduced to a single separator.
func TrimTrailingSeparators(p string) string {
	trimmed := strings.TrimRight(p, Separator)
	if trimmed == "" && p != "" {
		return Separator
	}
	return trimmed
}
