//go:build unix

package treetar

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// openNoFollow opens a file or directory for reading without following symlinks.
// A path which has been replaced by a symlink yields ErrUnsupportedKind.
// O_NONBLOCK keeps a fifo swapped in after the listing from stalling the walk.
func openNoFollow(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NOFOLLOW|syscall.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, syscall.ELOOP) {
			return nil, errors.Wrapf(ErrUnsupportedKind, "%s (symlink)", path)
		}
		return nil, err
	}
	return f, nil
}
