package treetar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoin(t *testing.T) {
	tests := []struct {
		parent, child, want string
	}{
		{"a", "b", "a/b"},
		{"a/b", "c.txt", "a/b/c.txt"},
		{"/abs", "x", "/abs/x"},
		{".", "x", "./x"},
		// no normalization
		{"a/..", "b", "a/../b"},
		{"a//b", "c", "a//b/c"},
		{"/", "etc", "//etc"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Join(tt.parent, tt.child))
	}
}

func TestTrimTrailingSeparators(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no slash", "dir", "dir"},
		{"one slash", "dir/", "dir"},
		{"many slashes", "dir///", "dir"},
		{"nested", "a/b/", "a/b"},
		{"internal kept", "a//b/", "a//b"},
		{"root", "/", "/"},
		{"only slashes", "///", "/"},
		{"empty", "", ""},
		{"dot", "./", "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrimTrailingSeparators(tt.input))
		})
	}
}
