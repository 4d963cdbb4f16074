package treetar

import (
	"bufio"
	"encoding/binary"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// DefaultChunkSize is the default size of the buffer used to move file content through a stream.
const DefaultChunkSize = 32 * 1024

// WriterOptions are configuration options for a Writer.
type WriterOptions struct {
	// ChunkSize is the size of the buffer used to copy file content into the stream.
	// Defaults to DefaultChunkSize.
	ChunkSize int
}

// ErrWriterClosed is returned when writing to a Writer after Close.
var ErrWriterClosed = errors.New("treetar: writer closed")

// Writer is an encoder for a treetar stream.
// Entries must be written in pre-order: a directory before anything nested inside it.
type Writer struct {
	w       *bufio.Writer
	buf     []byte
	rec     []byte
	started bool
	closed  bool

	// err is the first fatal error, after which the stream can not be continued.
	err error
}

// NewWriter creates a new stream writer.
// The stream header is written along with the first entry, or by Close if there are no entries.
func NewWriter(dst io.Writer, opts WriterOptions) *Writer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Writer{
		w:   bufio.NewWriter(dst),
		buf: make([]byte, opts.ChunkSize),
		rec: make([]byte, 0, 4+MetadataSize),
	}
}

// Directory writes a directory entry.
// The Kind and Size of md are ignored.
func (w *Writer) Directory(name string, md Metadata) error {
	md.Kind = KindDirectory
	md.Size = 0
	return w.writeHeader(name, md)
}

// File writes a regular file entry with md.Size bytes of content.
//
// If content ends before md.Size bytes, the rest of the payload is filled with zeros.
// If content holds more than md.Size bytes, the excess is not written.
// Both cases return an error wrapping ErrIntegrity, and the stream remains usable.
// Any other error is fatal and is returned by all later calls.
func (w *Writer) File(name string, md Metadata, content io.Reader) (int64, error) {
	md.Kind = KindRegular
	if err := w.writeHeader(name, md); err != nil {
		return 0, err
	}

	n, err := w.copyPayload(name, content, md.Size)
	if err != nil {
		return n, err
	}

	if n < md.Size {
		if err := w.pad(name, md.Size-n); err != nil {
			return n, err
		}
		return n, errors.Wrapf(ErrIntegrity, "%s: declared %d bytes, read %d", name, md.Size, n)
	}

	var probe [1]byte
	if extra, _ := io.ReadFull(content, probe[:]); extra > 0 {
		return n, errors.Wrapf(ErrIntegrity, "%s: grew beyond the declared %d bytes", name, md.Size)
	}

	return n, nil
}

// Close ends the stream and flushes buffered data to the destination.
// It does not close the destination.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.start(); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return w.fail(newOpError(ErrWrite, "flush", "stream", err))
	}
	return nil
}

func (w *Writer) fail(err error) error {
	w.err = err
	return err
}

// start writes the stream header if it has not been written yet.
func (w *Writer) start() error {
	if w.started {
		return nil
	}
	w.started = true
	if err := writeStreamHeader(w.w); err != nil {
		return w.fail(newOpError(ErrWrite, "write", "stream header", err))
	}
	return nil
}

func (w *Writer) writeHeader(name string, md Metadata) error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return ErrWriterClosed
	}
	if err := checkName(name); err != nil {
		return err
	}

	rec := binary.BigEndian.AppendUint32(w.rec[:0], uint32(len(name)))
	rec, err := md.AppendBinary(rec)
	if err != nil {
		return err
	}

	if err := w.start(); err != nil {
		return err
	}

	// length prefix, then name, then the metadata record
	if _, err := w.w.Write(rec[:4]); err != nil {
		return w.fail(newOpError(ErrWrite, "write", name, err))
	}
	if _, err := w.w.WriteString(name); err != nil {
		return w.fail(newOpError(ErrWrite, "write", name, err))
	}
	if _, err := w.w.Write(rec[4:]); err != nil {
		return w.fail(newOpError(ErrWrite, "write", name, err))
	}
	return nil
}

// copyPayload copies at most size bytes of content into the stream, one chunk at a time.
func (w *Writer) copyPayload(name string, content io.Reader, size int64) (int64, error) {
	var written int64
	for written < size {
		chunk := w.buf
		if rem := size - written; rem < int64(len(chunk)) {
			chunk = chunk[:rem]
		}

		n, rerr := content.Read(chunk)
		if n > 0 {
			if _, err := w.w.Write(chunk[:n]); err != nil {
				return written, w.fail(newOpError(ErrWrite, "write", name, err))
			}
			written += int64(n)
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, w.fail(newOpError(ErrRead, "read", name, rerr))
		}
	}
	return written, nil
}

// pad writes n zero bytes.
func (w *Writer) pad(name string, n int64) error {
	clear(w.buf)
	for n > 0 {
		chunk := w.buf
		if n < int64(len(chunk)) {
			chunk = chunk[:n]
		}
		if _, err := w.w.Write(chunk); err != nil {
			return w.fail(newOpError(ErrWrite, "write", name, err))
		}
		n -= int64(len(chunk))
	}
	return nil
}

// checkName validates an entry name.
func checkName(name string) error {
	switch {
	case name == "":
		return errors.Wrap(ErrFormat, "empty entry name")
	case len(name) > MaxNameLength:
		return errors.Wrapf(ErrFormat, "entry name is %d bytes long (max %d)", len(name), MaxNameLength)
	case strings.Contains(name, "\x00"):
		return errors.Wrapf(ErrFormat, "illegal null character in entry name %q", name)
	}
	return nil
}
