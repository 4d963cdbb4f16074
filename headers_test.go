package treetar_test

import (
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaddr2line/treetar"
)

func TestMetadataLayout(t *testing.T) {
	md := treetar.Metadata{
		Kind:    treetar.KindRegular,
		Mode:    0644 | fs.ModeSetuid,
		Size:    0x0102,
		ModTime: time.Unix(1700000000, 0),
	}
	b, err := md.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x02,
		0x00, 0x00, 0x09, 0xa4,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x02,
		0x00, 0x00, 0x00, 0x00, 0x65, 0x53, 0xf1, 0x00,
	}, b)
	assert.Len(t, b, treetar.MetadataSize)

	got, err := treetar.UnmarshalMetadata(b)
	require.NoError(t, err)
	assert.Equal(t, md.Kind, got.Kind)
	assert.Equal(t, md.Mode, got.Mode)
	assert.Equal(t, md.Size, got.Size)
	assert.True(t, md.ModTime.Equal(got.ModTime))
}

func TestMetadataDirectoryIgnoresSize(t *testing.T) {
	b, err := treetar.Metadata{Kind: treetar.KindDirectory, Mode: 0755 | fs.ModeSticky, Size: 99}.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x03, 0xed}, b[:5])
	assert.Equal(t, make([]byte, 8), b[5:13])

	// a directory record with a size set by another writer still decodes, without a payload
	b[12] = 7
	md, err := treetar.UnmarshalMetadata(b)
	require.NoError(t, err)
	assert.Equal(t, int64(0), md.Size)
	assert.Equal(t, 0755|fs.ModeSticky, md.Mode)
}

func TestMetadataSpecialBits(t *testing.T) {
	modes := []fs.FileMode{
		0,
		0777,
		0700 | fs.ModeSetgid,
		0750 | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky,
	}
	for _, m := range modes {
		b, err := treetar.Metadata{Kind: treetar.KindRegular, Mode: m}.MarshalBinary()
		require.NoError(t, err)
		md, err := treetar.UnmarshalMetadata(b)
		require.NoError(t, err)
		assert.Equal(t, m, md.Mode, "mode %v", m)
	}
}

func TestMetadataDecodeErrors(t *testing.T) {
	valid, err := treetar.Metadata{Kind: treetar.KindRegular, Size: 3}.MarshalBinary()
	require.NoError(t, err)

	mutate := func(f func(b []byte)) []byte {
		b := append([]byte(nil), valid...)
		f(b)
		return b
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, treetar.ErrFormat},
		{"short", valid[:treetar.MetadataSize-1], treetar.ErrFormat},
		{"zero kind", mutate(func(b []byte) { b[0] = 0 }), treetar.ErrFormat},
		{"unknown kind", mutate(func(b []byte) { b[0] = 3 }), treetar.ErrFormat},
		{"mask out of range", mutate(func(b []byte) { b[3] = 0x10 }), treetar.ErrFormat},
		{"size out of range", mutate(func(b []byte) { b[5] = 0x80 }), treetar.ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := treetar.UnmarshalMetadata(tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// a short record handed to the codec is malformed, not a cut stream
	_, err = treetar.UnmarshalMetadata(make([]byte, 5))
	assert.ErrorIs(t, err, treetar.ErrFormat)
	assert.NotErrorIs(t, err, treetar.ErrTruncated)
}

func TestMetadataEncodeErrors(t *testing.T) {
	_, err := treetar.Metadata{Kind: 7}.MarshalBinary()
	assert.ErrorIs(t, err, treetar.ErrFormat)

	_, err = treetar.Metadata{Kind: treetar.KindRegular, Size: -1}.MarshalBinary()
	assert.ErrorIs(t, err, treetar.ErrFormat)
}
