package treetar

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Reader is a treetar stream reader.
type Reader struct {
	// stream is the buffered source
	stream *bufio.Reader

	// buf is used to discard unread payloads
	buf []byte

	// cur is the most recent entry returned by Next
	cur *Entry

	// err is sticky: once set, Next keeps returning it
	err error
}

// NewReader creates a new Reader which reads from the source.
// It reads and validates the stream header.
func NewReader(src io.Reader) (*Reader, error) {
	br := bufio.NewReader(src)
	if err := readStreamHeader(br); err != nil {
		return nil, err
	}
	return &Reader{
		stream: br,
		buf:    make([]byte, DefaultChunkSize),
	}, nil
}

// Next reads the header of the next entry.
// Any unread payload of the previous entry is skipped.
// Returns io.EOF when the stream ends cleanly between two entries.
func (r *Reader) Next() (*Entry, error) {
	if r.err != nil {
		return nil, r.err
	}

	if r.cur != nil {
		if _, err := io.CopyBuffer(io.Discard, r.cur, r.buf); err != nil {
			return nil, err
		}
		r.cur = nil
	}

	e, err := r.readHeader()
	if err != nil {
		r.err = err
		return nil, err
	}
	r.cur = e
	return e, nil
}

func (r *Reader) readHeader() (*Entry, error) {
	var lb [4]byte
	switch _, err := io.ReadFull(r.stream, lb[:]); {
	case err == io.EOF:
		return nil, io.EOF
	case err != nil:
		return nil, r.wrapReadErr(err, "entry name length")
	}

	l := binary.BigEndian.Uint32(lb[:])
	if l == 0 || l > MaxNameLength {
		return nil, errors.Wrapf(ErrFormat, "entry name length %d out of range", l)
	}

	name := make([]byte, l)
	if _, err := io.ReadFull(r.stream, name); err != nil {
		return nil, r.wrapReadErr(err, "entry name")
	}
	if err := checkName(string(name)); err != nil {
		return nil, err
	}

	var rec [MetadataSize]byte
	if _, err := io.ReadFull(r.stream, rec[:]); err != nil {
		return nil, r.wrapReadErr(err, string(name))
	}
	md, err := UnmarshalMetadata(rec[:])
	if err != nil {
		return nil, errors.Wrapf(err, "entry %q", name)
	}

	return &Entry{
		Name:      string(name),
		Metadata:  md,
		reader:    r,
		remaining: md.Size,
	}, nil
}

// wrapReadErr classifies an error from reading inside an entry.
func (r *Reader) wrapReadErr(err error, what string) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrapf(ErrTruncated, "reading %s", what)
	}
	return newOpError(ErrRead, "read", what, err)
}

// Entry is a single entry of a stream.
// For regular files, Read returns the payload.
type Entry struct {
	// Name is the path of the entry, as recorded by the writer.
	Name string

	// Metadata is the decoded metadata record.
	Metadata Metadata

	reader    *Reader
	remaining int64
}

// IsDir returns whether the entry is a directory.
func (e *Entry) IsDir() bool {
	return e.Metadata.Kind == KindDirectory
}

// Read reads the payload of the entry.
// It returns an error wrapping ErrTruncated if the stream ends before the payload is complete.
func (e *Entry) Read(dst []byte) (int, error) {
	if e.remaining == 0 {
		return 0, io.EOF
	}
	if e.reader.cur != e {
		return 0, errors.Errorf("treetar: read of %q after moving to the next entry", e.Name)
	}
	if e.reader.err != nil {
		return 0, e.reader.err
	}

	if int64(len(dst)) > e.remaining {
		dst = dst[:e.remaining]
	}
	n, err := e.reader.stream.Read(dst)
	e.remaining -= int64(n)

	switch {
	case err == io.EOF && e.remaining > 0:
		err = errors.Wrapf(ErrTruncated, "payload of %q is missing %d bytes", e.Name, e.remaining)
	case err == io.EOF:
		err = nil
	case err != nil:
		err = newOpError(ErrRead, "read", e.Name, err)
	}
	if err != nil {
		e.reader.err = err
	}
	return n, err
}
