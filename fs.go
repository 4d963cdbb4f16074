package treetar

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// listBatch is the number of directory entries read from the filesystem at a time.
const listBatch = 256

// UnsupportedPolicy selects what Create does with files which are neither directories nor regular files.
type UnsupportedPolicy uint8

const (
	// UnsupportedSkip leaves the file out of the archive and reports a warning.
	UnsupportedSkip UnsupportedPolicy = iota

	// UnsupportedFail aborts Create with an error wrapping ErrUnsupportedKind.
	UnsupportedFail
)

// CreateOptions are a set of options for encoding a directory tree into a stream.
// They may be used with Create.
type CreateOptions struct {
	// Unsupported selects the handling of symlinks, devices, sockets and fifos.
	// Defaults to UnsupportedSkip.
	Unsupported UnsupportedPolicy

	// Progress receives a line for every archived path when non-nil.
	Progress io.Writer

	// OnWarning is called for every recovered condition: entries which could not be inspected (ErrStat),
	// skipped unsupported files (ErrUnsupportedKind) and files which changed size while being read (ErrIntegrity).
	// If nil, warnings are logged to Logger.
	OnWarning func(err error)

	// Logger receives warnings and debug output.
	// Optional.
	Logger *zap.Logger
}

// CheckRoot verifies that root names an existing directory, following a symlink given as root.
func CheckRoot(root string) (fs.FileInfo, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, newOpError(ErrNotADirectory, "stat", root, err)
	}
	if !info.IsDir() {
		return nil, errors.Wrap(ErrNotADirectory, root)
	}
	return info, nil
}

// Create encodes the directory tree at root into a stream.
//
// Trailing separators are removed from root, which then becomes the name of the first entry.
// Every other entry is named Join(parent, base), so names are relative exactly when root is.
// Directories are visited depth-first using an explicit worklist, and each directory is written before its contents.
//
// Create fails with ErrNotADirectory before writing anything if root is not a directory.
func Create(dst *Writer, root string, opts CreateOptions) error {
	root = TrimTrailingSeparators(root)
	if _, err := CheckRoot(root); err != nil {
		return err
	}

	c := &creator{w: dst, opts: opts, logger: opts.Logger}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger.Debug("creating archive", zap.String("root", root))

	pending := []string{root}
	for len(pending) > 0 {
		dir := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		subdirs, err := c.writeDir(dir, dir == root)
		if err != nil {
			return err
		}

		// push in reverse so that the first listed subdirectory is visited first
		for i := len(subdirs) - 1; i >= 0; i-- {
			pending = append(pending, subdirs[i])
		}
	}

	c.logger.Debug("archive created",
		zap.String("root", root),
		zap.Int("dirs", c.dirs),
		zap.Int("files", c.files),
		zap.Int64("bytes", c.bytes),
		zap.Int("warnings", c.warnings),
	)
	return nil
}

// creator holds state for a single Create call.
type creator struct {
	w      *Writer
	opts   CreateOptions
	logger *zap.Logger

	dirs, files, warnings int
	bytes                 int64
}

// writeDir writes the entry for dir and its regular files, and returns its subdirectories.
// Only the root may be reached through a symlink; a subdirectory replaced by one after listing is treated as unsupported.
func (c *creator) writeDir(dir string, isRoot bool) ([]string, error) {
	open := openNoFollow
	if isRoot {
		open = os.Open
	}
	f, err := open(dir)
	if err != nil {
		if isRoot {
			return nil, newOpError(ErrRead, "open", dir, err)
		}
		if errors.Is(err, ErrUnsupportedKind) {
			return nil, c.unsupported(err)
		}
		c.warn(newOpError(ErrStat, "open", dir, err))
		return nil, nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		if isRoot {
			return nil, newOpError(ErrRead, "stat", dir, err)
		}
		c.warn(newOpError(ErrStat, "stat", dir, err))
		return nil, nil
	}
	md, err := MetadataFromInfo(info)
	if err != nil || md.Kind != KindDirectory {
		return nil, c.unsupported(errors.Wrapf(ErrUnsupportedKind, "%s (%s)", dir, info.Mode().Type()))
	}

	if err := c.w.Directory(dir, md); err != nil {
		return nil, err
	}
	c.dirs++
	c.progress(dir)

	var subdirs []string
	for {
		list, err := f.ReadDir(listBatch)
		for _, d := range list {
			sub, err := c.writeChild(dir, d)
			if err != nil {
				return nil, err
			}
			if sub != "" {
				subdirs = append(subdirs, sub)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if isRoot {
				return nil, newOpError(ErrRead, "readdir", dir, err)
			}
			c.warn(newOpError(ErrStat, "readdir", dir, err))
			break
		}
	}
	return subdirs, nil
}

// writeChild classifies one directory entry.
// Regular files are written immediately; the path of a subdirectory is returned for later.
func (c *creator) writeChild(dir string, d fs.DirEntry) (string, error) {
	name := d.Name()
	if name == "." || name == ".." {
		return "", nil
	}
	path := Join(dir, name)

	info, err := d.Info()
	if err != nil {
		c.warn(newOpError(ErrStat, "lstat", path, err))
		return "", nil
	}

	switch {
	case info.IsDir():
		return path, nil
	case info.Mode().IsRegular():
		return "", c.writeFile(path)
	default:
		return "", c.unsupported(errors.Wrapf(ErrUnsupportedKind, "%s (%s)", path, info.Mode().Type()))
	}
}

// writeFile writes a regular file entry.
// The recorded size comes from the open file, so it matches the content being copied unless the file is modified concurrently.
func (c *creator) writeFile(path string) error {
	f, err := openNoFollow(path)
	if err != nil {
		if errors.Is(err, ErrUnsupportedKind) {
			return c.unsupported(err)
		}
		c.warn(newOpError(ErrStat, "open", path, err))
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		c.warn(newOpError(ErrStat, "stat", path, err))
		return nil
	}
	md, err := MetadataFromInfo(info)
	if err != nil || md.Kind != KindRegular {
		return c.unsupported(errors.Wrapf(ErrUnsupportedKind, "%s (%s)", path, info.Mode().Type()))
	}

	n, err := c.w.File(path, md, f)
	switch {
	case errors.Is(err, ErrIntegrity):
		c.warn(err)
	case err != nil:
		return err
	}
	c.files++
	c.bytes += md.Size
	c.logger.Debug("archived file", zap.String("path", path), zap.Int64("size", md.Size), zap.Int64("read", n))
	c.progress(path)
	return nil
}

func (c *creator) unsupported(err error) error {
	if c.opts.Unsupported == UnsupportedFail {
		return err
	}
	c.warn(err)
	return nil
}

func (c *creator) warn(err error) {
	c.warnings++
	if c.opts.OnWarning != nil {
		c.opts.OnWarning(err)
		return
	}
	c.logger.Warn("skipped or altered entry", zap.Error(err))
}

func (c *creator) progress(path string) {
	if c.opts.Progress != nil {
		fmt.Fprintf(c.opts.Progress, "%s: processing\n", path)
	}
}

// ExtractOptions is a set of options for decoding a stream into the filesystem.
type ExtractOptions struct {
	// Base is the directory against which entry names are resolved.
	// Defaults to the current directory. Absolute entry names are placed inside Base when it is set.
	Base string

	// PreserveModTime is whether to restore modification times from the stream.
	PreserveModTime bool

	// Progress receives a line for every extracted path when non-nil.
	Progress io.Writer

	// Logger receives debug output.
	// Optional.
	Logger *zap.Logger
}

// Extract decodes a stream into the filesystem.
//
// Extract never creates missing parents and never overwrites: a directory or file which already exists fails with ErrAlreadyExists,
// and an entry whose parent has not been created fails with an error matching fs.ErrNotExist.
// Directory permissions and modification times are applied once the stream ends or extraction stops,
// so that directories without write permission can still be filled.
// Nothing is removed when extraction fails.
func Extract(src *Reader, opts ExtractOptions) error {
	x := &extractor{opts: opts, logger: opts.Logger, buf: make([]byte, DefaultChunkSize)}
	if x.logger == nil {
		x.logger = zap.NewNop()
	}

	err := x.extractAll(src)
	ferr := x.finish()
	if err != nil {
		if ferr != nil {
			x.logger.Debug("restoring directory attributes after failed extraction", zap.Error(ferr))
		}
		return err
	}
	return ferr
}

// extractor holds state for a single Extract call.
type extractor struct {
	opts   ExtractOptions
	logger *zap.Logger
	buf    []byte

	// dirs are the created directories, in creation order, awaiting their final attributes.
	dirs []pendingDir
}

type pendingDir struct {
	path string
	md   Metadata
}

func (x *extractor) extractAll(src *Reader) error {
	for {
		e, err := src.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		path := e.Name
		if x.opts.Base != "" {
			path = filepath.Join(x.opts.Base, e.Name)
		}

		switch e.Metadata.Kind {
		case KindDirectory:
			err = x.mkdir(path, e.Metadata)
		case KindRegular:
			err = x.writeFile(path, e)
		default:
			err = errors.Wrapf(ErrFormat, "entry %q has unknown kind %d", e.Name, e.Metadata.Kind)
		}
		if err != nil {
			return err
		}

		x.logger.Debug("extracted entry", zap.String("path", path), zap.Stringer("kind", e.Metadata.Kind))
		if x.opts.Progress != nil {
			fmt.Fprintf(x.opts.Progress, "%s: processing\n", e.Name)
		}
	}
}

func (x *extractor) mkdir(path string, md Metadata) error {
	if err := os.Mkdir(path, 0700); err != nil {
		if os.IsExist(err) {
			return newOpError(ErrAlreadyExists, "mkdir", path, err)
		}
		return newOpError(ErrWrite, "mkdir", path, err)
	}
	x.dirs = append(x.dirs, pendingDir{path: path, md: md})
	return nil
}

func (x *extractor) writeFile(path string, e *Entry) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return newOpError(ErrAlreadyExists, "create", path, err)
		}
		return newOpError(ErrWrite, "create", path, err)
	}

	if err := copyChunks(f, e, x.buf, path); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return newOpError(ErrWrite, "close", path, err)
	}

	return x.setAttributes(path, e.Metadata)
}

// finish applies the attributes of created directories, deepest first.
// Every directory is attempted; the first failure is returned.
func (x *extractor) finish() error {
	var first error
	for i := len(x.dirs) - 1; i >= 0; i-- {
		d := x.dirs[i]
		if err := x.setAttributes(d.path, d.md); err != nil && first == nil {
			first = err
		}
	}
	x.dirs = nil
	return first
}

func (x *extractor) setAttributes(path string, md Metadata) error {
	if err := os.Chmod(path, md.Mode); err != nil {
		return newOpError(ErrWrite, "chmod", path, err)
	}
	if x.opts.PreserveModTime {
		if err := os.Chtimes(path, md.ModTime, md.ModTime); err != nil {
			return newOpError(ErrWrite, "chtimes", path, err)
		}
	}
	return nil
}

// copyChunks copies src to dst through buf.
// Errors from src are returned as is; errors from dst wrap ErrWrite.
func copyChunks(dst io.Writer, src io.Reader, buf []byte, path string) error {
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return newOpError(ErrWrite, "write", path, err)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
