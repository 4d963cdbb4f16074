package treetar

import "github.com/pkg/errors"

// Error classes.
// Returned errors wrap one of these, so callers can test them with errors.Is.
var (
	// ErrNotADirectory indicates that the root of a Create call is missing or is not a directory.
	ErrNotADirectory = errors.New("not a directory")

	// ErrStat indicates that a directory entry could not be inspected or opened while creating an archive.
	// Create recovers from these by skipping the entry.
	ErrStat = errors.New("stat failed")

	// ErrRead indicates a failure reading file content or archive data.
	ErrRead = errors.New("read failed")

	// ErrWrite indicates a failure writing archive data or extracted files.
	ErrWrite = errors.New("write failed")

	// ErrFormat indicates a malformed archive: bad magic, unsupported version, bad name, or an undecodable metadata record.
	ErrFormat = errors.New("malformed archive")

	// ErrTruncated indicates that the archive ended in the middle of an entry.
	ErrTruncated = errors.New("truncated archive")

	// ErrAlreadyExists indicates that an extraction target is already present.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnsupportedKind indicates a file that is neither a directory nor a regular file.
	ErrUnsupportedKind = errors.New("unsupported file kind")

	// ErrIntegrity indicates that a file changed size between being stat'ed and being archived.
	// The stream is still well formed: short content is padded with zeros and excess content is dropped.
	ErrIntegrity = errors.New("file changed during archive creation")
)

// OpError records a failed operation on a path.
type OpError struct {
	// Op is the operation, such as "open" or "mkdir".
	Op string

	// Path is the filesystem path or entry name involved.
	Path string

	// Err is the underlying error.
	Err error

	class error
}

func newOpError(class error, op, path string, err error) *OpError {
	return &OpError{Op: op, Path: path, Err: err, class: class}
}

func (e *OpError) Error() string {
	return e.Op + " " + e.Path + ": " + e.class.Error() + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *OpError) Unwrap() error { return e.Err }

// Is reports whether target is the class of e.
func (e *OpError) Is(target error) bool { return target == e.class }
