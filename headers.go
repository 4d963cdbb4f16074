package treetar

import (
	"encoding/binary"
	"io"
	"io/fs"
	"math"
	"time"

	"github.com/pkg/errors"
)

// FormatVersion is the version of the treetar format written by this package.
// Readers refuse streams with a newer version.
const FormatVersion = 1

// magic is the prefix of every stream, followed by one version byte.
const magic = "TTR"

const streamHeaderSize = len(magic) + 1

// MetadataSize is the encoded length of a metadata record.
const MetadataSize = 1 + 4 + 8 + 8

// MaxNameLength is the longest entry name accepted by writers and readers.
const MaxNameLength = 4096

// permission mask bits of the portable record.
const (
	maskSticky = 01000
	maskSetgid = 02000
	maskSetuid = 04000
	maskAll    = 07777
)

// Kind is the type of an archived entry.
type Kind uint8

// Kinds known to FormatVersion 1.
// Every known kind has a payload length that a reader can compute from its record: Size for regular files, zero for directories.
const (
	KindDirectory Kind = 1
	KindRegular   Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindRegular:
		return "file"
	default:
		return "unknown"
	}
}

func (k Kind) valid() bool {
	return k == KindDirectory || k == KindRegular
}

// Metadata is the fixed-size record which precedes the payload of every entry.
type Metadata struct {
	// Kind is the type of the entry.
	Kind Kind

	// Mode holds the permission bits, plus the setuid, setgid and sticky bits.
	// Type bits are ignored; Kind carries the type.
	Mode fs.FileMode

	// Size is the length of the payload of a regular file.
	// It is always zero for directories.
	Size int64

	// ModTime is the modification time, stored with one-second precision.
	ModTime time.Time
}

// MetadataFromInfo builds the record for a directory or regular file.
// It fails with ErrUnsupportedKind for any other kind of file.
func MetadataFromInfo(info fs.FileInfo) (Metadata, error) {
	md := Metadata{
		Mode:    info.Mode() & (fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky),
		ModTime: info.ModTime(),
	}
	switch {
	case info.Mode().IsDir():
		md.Kind = KindDirectory
	case info.Mode().IsRegular():
		md.Kind = KindRegular
		md.Size = info.Size()
	default:
		return Metadata{}, errors.Wrapf(ErrUnsupportedKind, "%s (%s)", info.Name(), info.Mode().Type())
	}
	return md, nil
}

// MarshalBinary encodes the record.
func (md Metadata) MarshalBinary() ([]byte, error) {
	return md.AppendBinary(make([]byte, 0, MetadataSize))
}

// AppendBinary appends the encoded record to b.
func (md Metadata) AppendBinary(b []byte) ([]byte, error) {
	if !md.Kind.valid() {
		return b, errors.Wrapf(ErrFormat, "cannot encode entry kind %d", md.Kind)
	}

	var size uint64
	if md.Kind == KindRegular {
		if md.Size < 0 {
			return b, errors.Wrapf(ErrFormat, "negative file size %d", md.Size)
		}
		size = uint64(md.Size)
	}

	b = append(b, byte(md.Kind))
	b = binary.BigEndian.AppendUint32(b, modeToMask(md.Mode))
	b = binary.BigEndian.AppendUint64(b, size)
	b = binary.BigEndian.AppendUint64(b, uint64(md.ModTime.Unix()))
	return b, nil
}

// UnmarshalMetadata decodes a record produced by MarshalBinary.
func UnmarshalMetadata(b []byte) (Metadata, error) {
	if len(b) < MetadataSize {
		return Metadata{}, errors.Wrapf(ErrFormat, "metadata record is %d bytes, need %d", len(b), MetadataSize)
	}

	kind := Kind(b[0])
	if !kind.valid() {
		return Metadata{}, errors.Wrapf(ErrFormat, "unknown entry kind %d", b[0])
	}

	mask := binary.BigEndian.Uint32(b[1:5])
	if mask&^maskAll != 0 {
		return Metadata{}, errors.Wrapf(ErrFormat, "invalid permission mask %#o", mask)
	}

	size := binary.BigEndian.Uint64(b[5:13])
	if size > math.MaxInt64 {
		return Metadata{}, errors.Wrapf(ErrFormat, "file size %d out of range", size)
	}

	md := Metadata{
		Kind:    kind,
		Mode:    maskToMode(mask),
		ModTime: time.Unix(int64(binary.BigEndian.Uint64(b[13:21])), 0),
	}
	if kind == KindRegular {
		md.Size = int64(size)
	}
	return md, nil
}

func modeToMask(m fs.FileMode) uint32 {
	mask := uint32(m.Perm())
	if m&fs.ModeSticky != 0 {
		mask |= maskSticky
	}
	if m&fs.ModeSetgid != 0 {
		mask |= maskSetgid
	}
	if m&fs.ModeSetuid != 0 {
		mask |= maskSetuid
	}
	return mask
}

func maskToMode(mask uint32) fs.FileMode {
	m := fs.FileMode(mask) & fs.ModePerm
	if mask&maskSticky != 0 {
		m |= fs.ModeSticky
	}
	if mask&maskSetgid != 0 {
		m |= fs.ModeSetgid
	}
	if mask&maskSetuid != 0 {
		m |= fs.ModeSetuid
	}
	return m
}

// writeStreamHeader writes the header that goes at the beginning of the stream.
func writeStreamHeader(w io.Writer) error {
	_, err := w.Write(append([]byte(magic), FormatVersion))
	return err
}

// readStreamHeader reads and validates the stream header.
func readStreamHeader(r io.Reader) error {
	var hdr [streamHeaderSize]byte
	_, err := io.ReadFull(r, hdr[:])
	switch {
	case err == io.EOF:
		return errors.Wrap(ErrFormat, "empty stream")
	case err == io.ErrUnexpectedEOF:
		return errors.Wrap(ErrTruncated, "stream header")
	case err != nil:
		return newOpError(ErrRead, "read", "stream header", err)
	}

	if string(hdr[:len(magic)]) != magic {
		return errors.Wrap(ErrFormat, "not a treetar stream")
	}
	if v := hdr[len(magic)]; v == 0 || v > FormatVersion {
		return errors.Wrapf(ErrFormat, "treetar v%d format not supported (max supported: v%d)", v, FormatVersion)
	}
	return nil
}
