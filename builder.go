// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

// DocumentBuilder assembles a brand new PDF revision in memory: a fresh
// document built from scratch (Merge, a blank Stamp target) or the
// continuation of an existing one (the incremental update
// IncrementalSigner appends). It is the in-memory analogue of benedoc's
// PDFWriter.objects map, generalized from that package's string-keyed
// Dictionary to this package's object/dict/array/objptr model so a builder
// can hold references resolved straight out of a Reader's Value tree.
type DocumentBuilder struct {
	opts      *WriterOptions
	nextID    uint32
	objs      map[uint32]object
	root      objptr
	info      objptr
	encrypt   objptr
	fileID    [2][]byte
	baseSize  uint32 // object numbers below this already exist in a prior revision
	prevXref  int64  // byte offset of the previous xref section, for /Prev chaining
	hasPrev   bool
	sourceEnd int64 // byte length of the prior revision, for incremental updates

	crypto *CryptoEngine // non-nil when continuing an encrypted source document
}

// NewDocumentBuilder starts a fresh, empty document using opts (or
// NewDefaultWriterOptions if nil).
func NewDocumentBuilder(opts *WriterOptions) *DocumentBuilder {
	if opts == nil {
		opts = NewDefaultWriterOptions()
	}
	id := make([]byte, 16)
	rand.Read(id)
	return &DocumentBuilder{
		opts:   opts,
		nextID: 1,
		objs:   make(map[uint32]object),
		fileID: [2][]byte{id, id},
	}
}

// NewIncrementalBuilder starts a builder that continues r: new objects are
// numbered starting after r's highest object number, and Write appends an
// incremental update whose xref chains back to r's own xref section via
// /Prev, per PDF 32000-1 §7.5.6. The first /ID element is carried over
// unchanged (continuity across revisions); the second is refreshed.
func NewIncrementalBuilder(r *Reader, opts *WriterOptions) (*DocumentBuilder, error) {
	if opts == nil {
		opts = NewDefaultWriterOptions()
	}
	size, _ := r.trailer[name("Size")].(int64)
	if size <= 0 {
		size = 1
	}
	newID := make([]byte, 16)
	rand.Read(newID)
	firstID := newID
	if ids, ok := r.trailer[name("ID")].(array); ok && len(ids) > 0 {
		if s, ok := ids[0].(string); ok {
			firstID = []byte(s)
		}
	}
	b := &DocumentBuilder{
		opts:     opts,
		nextID:   uint32(size),
		objs:     make(map[uint32]object),
		baseSize: uint32(size),
		fileID:    [2][]byte{firstID, newID},
		hasPrev:   true,
		sourceEnd: r.end,
	}
	if ptr, ok := r.trailer[name("Root")].(objptr); ok {
		b.root = ptr
	}
	if ptr, ok := r.trailer[name("Info")].(objptr); ok {
		b.info = ptr
	}
	if ptr, ok := r.trailer[name("Encrypt")].(objptr); ok {
		b.encrypt = ptr
	}
	off, err := lastXrefOffset(r)
	if err != nil {
		return nil, err
	}
	b.prevXref = off

	if r.key != nil {
		method := MethodRC4
		if r.useAES {
			method = MethodAESV2
		}
		engine := NewCryptoEngine(&PDFEncryptionInfo{Method: method})
		engine.SetKey(r.key)
		b.crypto = engine
	}
	return b, nil
}

// AddObject reserves the next free object number for obj and returns its
// reference.
func (b *DocumentBuilder) AddObject(obj object) objptr {
	ptr := objptr{id: b.nextID}
	b.nextID++
	b.objs[ptr.id] = obj
	return ptr
}

// AddStream is the stream-carrying form of AddObject. If compress is true
// and hdr has no /Filter already, data is Flate-compressed and /Filter is
// set to /FlateDecode, matching AddStreamObject's behavior in the teacher.
func (b *DocumentBuilder) AddStream(hdr dict, data []byte, compress bool) objptr {
	if compress {
		if _, has := hdr[name("Filter")]; !has {
			data = flateCompress(data, b.opts.CompressionLevel)
			hdr = cloneDict(hdr)
			hdr[name("Filter")] = name("FlateDecode")
		}
	}
	return b.AddObject(rawStream{hdr: hdr, data: data})
}

// SetObject overwrites or defines the object at ptr directly, used when a
// caller already knows the object number it wants (copying a page from a
// source document under its original id, for instance).
func (b *DocumentBuilder) SetObject(ptr objptr, obj object) {
	b.objs[ptr.id] = obj
	if ptr.id >= b.nextID {
		b.nextID = ptr.id + 1
	}
}

func (b *DocumentBuilder) SetRoot(ptr objptr) { b.root = ptr }
func (b *DocumentBuilder) SetInfo(ptr objptr) { b.info = ptr }

func cloneDict(d dict) dict {
	out := make(dict, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Write serializes every object added to b as one PDF revision: a full file
// from %PDF-N.N when b was created with NewDocumentBuilder, or a trailing
// incremental update body (no header, chained via /Prev) when created with
// NewIncrementalBuilder.
func (b *DocumentBuilder) Write(w io.Writer) error {
	if err := b.opts.Validate(); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	var out strings.Builder
	if !b.hasPrev {
		fmt.Fprintf(&out, "%%PDF-%s\n%%\xe2\xe3\xcf\xd3\n", b.opts.Version)
	}

	positions := make(map[uint32]int64)
	entries := make(map[uint32]xrefWriterEntry)

	exclude := map[uint32]bool{}
	var objStreamID uint32
	var objStream object
	if b.opts.Compress && b.opts.XrefFormat == XrefStream {
		objStreamID, objStream, entries = packObjectStreams(b.objs, b.nextID, exclude)
	}

	ids := make([]uint32, 0, len(b.objs))
	for id := range b.objs {
		if _, packed := entries[id]; packed {
			continue
		}
		ids = append(ids, id)
	}
	sortUint32s(ids)

	baseOffset := func() int64 { return b.startOffset() + int64(out.Len()) }
	for _, id := range ids {
		positions[id] = baseOffset()
		obj := b.objs[id]
		if b.crypto != nil && id >= b.baseSize {
			obj = encryptObject(obj, b.crypto, id)
		}
		if err := writeIndirectObject(&out, objptr{id: id}, obj); err != nil {
			return err
		}
	}

	size := b.nextID
	if objStream != nil {
		positions[objStreamID] = baseOffset()
		if err := writeIndirectObject(&out, objptr{id: objStreamID}, objStream); err != nil {
			return err
		}
		size = objStreamID + 1
	}
	for id, off := range positions {
		entries[id] = xrefWriterEntry{offset: off}
	}

	trailer := dict{name("Size"): int64(size)}
	if b.root.id != 0 {
		trailer[name("Root")] = b.root
	}
	if b.info.id != 0 {
		trailer[name("Info")] = b.info
	}
	if b.encrypt.id != 0 {
		trailer[name("Encrypt")] = b.encrypt
	}
	trailer[name("ID")] = array{string(b.fileID[0]), string(b.fileID[1])}
	if b.hasPrev {
		trailer[name("Prev")] = b.prevXref
	}

	var xrefOffset int64
	if b.opts.XrefFormat == XrefStream {
		xrefID := size
		size++
		trailer[name("Size")] = int64(size)
		xrefOffset = baseOffset()
		if err := writeXrefStream(&out, xrefID, size, entries, trailer); err != nil {
			return err
		}
	} else {
		xrefOffset = baseOffset()
		offsets := make(map[uint32]int64, len(entries))
		for id, e := range entries {
			if !e.inStream {
				offsets[id] = e.offset
			}
		}
		writeXrefTable(&out, size, offsets)
		trailerStr, err := formatTrailerDict(trailer)
		if err != nil {
			return err
		}
		out.WriteString(trailerStr)
	}
	fmt.Fprintf(&out, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	_, err := w.Write([]byte(out.String()))
	return err
}

// startOffset returns the byte offset the builder's output begins at: zero
// for a fresh document, or the end of the source file for an incremental
// update, since the caller (Mutator, IncrementalSigner) writes the original
// bytes first and then this builder's output immediately after.
func (b *DocumentBuilder) startOffset() int64 { return b.sourceEnd }

// WriteIncremental writes the original document's bytes verbatim followed
// by this builder's incremental update body, to w. r must be the same
// Reader passed to NewIncrementalBuilder.
func (b *DocumentBuilder) WriteIncremental(w io.Writer, r *Reader) error {
	if _, err := io.Copy(w, io.NewSectionReader(r.f, 0, r.end)); err != nil {
		return &WriteError{Op: "copy source", Err: err}
	}
	return b.Write(w)
}

func lastXrefOffset(r *Reader) (int64, error) {
	if r.lastStartxref == 0 {
		return 0, &WriteError{Op: "incremental update", Err: fmt.Errorf("source document has no recoverable startxref offset")}
	}
	return r.lastStartxref, nil
}
