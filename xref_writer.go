// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"strings"
)

// xrefWriterEntry describes where one object ended up after a Write: either
// at a byte offset in the file (type 1), or packed into an object stream at
// a given index (type 2). It mirrors the three-field record an xref stream
// encodes, and also the information a traditional xref table needs (the
// offset form only).
type xrefWriterEntry struct {
	inStream bool
	offset   int64 // type 1
	streamID uint32
	index    int // type 2
}

// packObjectStreams groups every eligible non-stream object of objs into a
// single compressed /Type /ObjStm object, the way createObjectStreams packs
// benedoc's Dictionary-keyed objects. Stream objects and the trailer's own
// objects (Root, the xref stream itself) are never eligible: a stream
// object stream is disallowed by the spec, and the objects that must be
// locatable before the xref stream is parsed cannot themselves live inside
// one.
func packObjectStreams(objs map[uint32]object, nextID uint32, exclude map[uint32]bool) (uint32, object, map[uint32]xrefWriterEntry) {
	var eligible []uint32
	for id, obj := range objs {
		if exclude[id] {
			continue
		}
		if _, isStream := obj.(rawStream); isStream {
			continue
		}
		eligible = append(eligible, id)
	}
	if len(eligible) == 0 {
		return 0, nil, nil
	}
	sortUint32s(eligible)

	var header strings.Builder
	var data bytes.Buffer
	entries := make(map[uint32]xrefWriterEntry, len(eligible))
	for i, id := range eligible {
		s, err := formatValue(objs[id])
		if err != nil {
			continue
		}
		fmt.Fprintf(&header, "%d %d ", id, data.Len())
		data.WriteString(s)
		data.WriteByte(' ')
		entries[id] = xrefWriterEntry{inStream: true, streamID: nextID, index: i}
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	zw.Write([]byte(header.String()))
	zw.Write([]byte{' '})
	zw.Write(data.Bytes())
	zw.Close()

	streamDict := dict{
		name("Type"):   name("ObjStm"),
		name("N"):      int64(len(eligible)),
		name("First"):  int64(len(header.String()) + 1),
		name("Filter"): name("FlateDecode"),
	}
	return nextID, rawStream{hdr: streamDict, data: compressed.Bytes()}, entries
}

func sortUint32s(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func bytesNeeded(max int64) int {
	n := 1
	for max >= (int64(1) << (8 * n)) {
		n++
	}
	return n
}

func writeBigEndianInto(b []byte, v int64, width int) {
	for i := width - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// writeXrefTable appends a traditional "xref" section to b: the free head
// entry for object 0, then a one-entry subsection for each object number
// below size that has an offset. Objects absent from offsets get no entry,
// so an incremental update leaves the entries of objects it did not touch
// to the earlier sections reached through /Prev.
func writeXrefTable(b *strings.Builder, size uint32, offsets map[uint32]int64) {
	b.WriteString("xref\n0 1\n")
	fmt.Fprintf(b, "%010d %05d f \n", 0, 65535)
	for i := uint32(1); i < size; i++ {
		if off, ok := offsets[i]; ok {
			fmt.Fprintf(b, "%d 1\n%010d %05d n \n", i, off, 0)
		}
	}
}

// writeXrefStream appends a compressed /Type /XRef stream object covering
// [0, size) to b at object number xrefID, built from entries (a mix of
// type 1 offsets and type 2 in-object-stream locations).
func writeXrefStream(b *strings.Builder, xrefID, size uint32, entries map[uint32]xrefWriterEntry, trailer dict) error {
	maxOffset := int64(0)
	maxStreamID := uint32(0)
	for _, e := range entries {
		if !e.inStream && e.offset > maxOffset {
			maxOffset = e.offset
		}
		if e.inStream && e.streamID > maxStreamID {
			maxStreamID = e.streamID
		}
	}
	w2 := bytesNeeded(maxOffset)
	w3 := bytesNeeded(int64(maxStreamID))
	if w3 < 1 {
		w3 = 1
	}

	var data bytes.Buffer
	for i := uint32(0); i < size; i++ {
		entry := make([]byte, 1+w2+w3)
		e, ok := entries[i]
		switch {
		case !ok:
			entry[0] = 0
		case e.inStream:
			entry[0] = 2
			writeBigEndianInto(entry[1:1+w2], int64(e.streamID), w2)
			writeBigEndianInto(entry[1+w2:], int64(e.index), w3)
		default:
			entry[0] = 1
			writeBigEndianInto(entry[1:1+w2], e.offset, w2)
			writeBigEndianInto(entry[1+w2:], 0, w3)
		}
		data.Write(entry)
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	zw.Write(data.Bytes())
	zw.Close()

	hdr := make(dict, len(trailer)+4)
	for k, v := range trailer {
		hdr[k] = v
	}
	hdr[name("Type")] = name("XRef")
	hdr[name("Size")] = int64(size)
	hdr[name("W")] = array{int64(1), int64(w2), int64(w3)}
	hdr[name("Filter")] = name("FlateDecode")

	return writeIndirectObject(b, objptr{id: xrefID}, rawStream{hdr: hdr, data: compressed.Bytes()})
}

func formatTrailerDict(trailer dict) (string, error) {
	s, err := formatDict(trailer)
	if err != nil {
		return "", &WriteError{Op: "trailer", Err: err}
	}
	return "trailer\n" + s + "\n", nil
}
