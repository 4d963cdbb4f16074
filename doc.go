// Package treetar implements a mechanism for streaming a directory tree over a single sequential data stream.
//
// A stream starts with the magic "TTR" and a format version byte, followed by one entry per directory and regular file:
//
//	[name length: uint32][name][metadata record: 21 bytes][payload: Size bytes, regular files only]
//
// All integers are big-endian. There is no footer or index; the stream ends at the first clean end-of-file between entries.
// Entries are written in pre-order, so every directory precedes everything nested inside it.
package treetar
