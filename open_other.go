//go:build !unix

package treetar

import (
	"io/fs"
	"os"

	"github.com/pkg/errors"
)

// openNoFollow opens a file or directory for reading without following symlinks.
// A path which has been replaced by a symlink yields ErrUnsupportedKind.
func openNoFollow(path string) (*os.File, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return nil, errors.Wrapf(ErrUnsupportedKind, "%s (symlink)", path)
	}
	return os.Open(path)
}
