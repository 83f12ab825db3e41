// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"bytes"
	"fmt"
)

// Mutator rebuilds whole documents out of selected pages of one or more
// source readers: Split, Extract, Merge, Rotate, Crop, and Stamp are all
// instances of the same shape (copy a subset of pages into a fresh page
// tree, optionally transforming each copy) built on PageGraphCopier and
// DocumentBuilder. Every Mutator operation writes a brand new, complete
// document (fresh /ID pair, no /Prev chain) rather than an incremental
// update: that is IncrementalSigner's job, used when a caller wants to
// preserve a document's revision history across a signature.
type Mutator struct {
	opts *WriterOptions
}

// NewMutator creates a Mutator using opts, or NewDefaultWriterOptions if nil.
func NewMutator(opts *WriterOptions) *Mutator {
	if opts == nil {
		opts = NewDefaultWriterOptions()
	}
	return &Mutator{opts: opts}
}

// pageTransform adjusts a freshly copied page dict in place before it is
// written; pageIdx is the 0-based index of the page within the operation's
// page list (not the source document's numbering).
type pageTransform func(pageIdx int, d dict)

// libraryProducer identifies this package as the /Producer of any document
// it writes, per PDF 32000-1 §14.3.3's convention for the application that
// last wrote the file.
const libraryProducer = "pdfcore"

// copyDocInfo builds the /Info dictionary for a freshly built document: a
// copy of r's own /Info entries, if any, with /Producer overwritten to this
// library's name. Every Mutator operation and Optimize run emits /Info in
// its output regardless of whether the source document carried one, per
// PDF 32000-1 §14.3.3; Merge uses the first source's /Info, since a single
// output document can only have one.
func copyDocInfo(r *Reader, b *DocumentBuilder) objptr {
	d := dict{}
	if info := r.Trailer().Key("Info"); !info.IsNull() {
		copier := NewPageGraphCopier(r, b)
		if src, ok := copier.copyValue(info).(dict); ok {
			d = src
		}
	}
	d[name("Producer")] = libraryProducer
	return b.AddObject(d)
}

// buildFromPages constructs a standalone document containing exactly the
// pages named by srcs/pageNums (in order, one source Reader per entry),
// applying xf to each copied page dict if non-nil, and returns the
// serialized PDF bytes.
func (m *Mutator) buildFromPages(srcs []*Reader, pageNums []int, xf pageTransform) ([]byte, error) {
	if len(srcs) != len(pageNums) {
		return nil, &WriteError{Op: "build document", Err: fmt.Errorf("mismatched source/page-number lists")}
	}
	b := NewDocumentBuilder(m.opts)

	catalog := b.AddObject(nil)
	pagesNode := b.AddObject(nil)
	b.SetRoot(catalog)
	if len(srcs) > 0 {
		b.SetInfo(copyDocInfo(srcs[0], b))
	}

	kids := make(array, 0, len(srcs))
	for i, r := range srcs {
		page := r.Page(pageNums[i])
		if page.V.IsNull() {
			return nil, &WriteError{Op: "build document", Err: fmt.Errorf("source %d has no page %d", i, pageNums[i])}
		}
		copier := NewPageGraphCopier(r, b)
		ptr := copier.CopyPage(page.V, pagesNode)

		d, _ := b.objs[ptr.id].(dict)
		if d == nil {
			continue
		}
		d[name("MediaBox")] = copier.copyValue(page.MediaBox())
		if cb := page.CropBox(); !cb.IsNull() {
			d[name("CropBox")] = copier.copyValue(cb)
		}
		d[name("Rotate")] = page.Rotate()
		if res := page.Resources(); !res.IsNull() {
			d[name("Resources")] = copier.copyValue(res)
		}
		d[name("Type")] = name("Page")
		if xf != nil {
			xf(i, d)
		}
		b.SetObject(ptr, d)
		kids = append(kids, ptr)
	}

	b.SetObject(pagesNode, dict{
		name("Type"):  name("Pages"),
		name("Kids"):  kids,
		name("Count"): int64(len(kids)),
	})
	b.SetObject(catalog, dict{
		name("Type"):  name("Catalog"),
		name("Pages"): pagesNode,
	})

	var buf bytes.Buffer
	if err := b.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Extract returns a standalone document containing only the given 1-based
// page numbers of r, in the order given.
func (m *Mutator) Extract(r *Reader, pageNums []int) ([]byte, error) {
	srcs := make([]*Reader, len(pageNums))
	for i := range srcs {
		srcs[i] = r
	}
	return m.buildFromPages(srcs, pageNums, nil)
}

// Split returns one standalone single-page document per page of r.
func (m *Mutator) Split(r *Reader) ([][]byte, error) {
	n := r.NumPage()
	out := make([][]byte, 0, n)
	for i := 1; i <= n; i++ {
		doc, err := m.buildFromPages([]*Reader{r}, []int{i}, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Merge concatenates every page of every reader in srcs, in order, into a
// single standalone document.
func (m *Mutator) Merge(srcs []*Reader) ([]byte, error) {
	var readers []*Reader
	var pageNums []int
	for _, r := range srcs {
		n := r.NumPage()
		for i := 1; i <= n; i++ {
			readers = append(readers, r)
			pageNums = append(pageNums, i)
		}
	}
	return m.buildFromPages(readers, pageNums, nil)
}

// Rotate returns a standalone copy of r with the page at 1-based index
// pageNum rotated by degrees (added to its existing rotation, normalized to
// a multiple of 90 in [0, 360)).
func (m *Mutator) Rotate(r *Reader, pageNum int, degrees int64) ([]byte, error) {
	n := r.NumPage()
	readers := make([]*Reader, n)
	pageNums := make([]int, n)
	for i := range readers {
		readers[i] = r
		pageNums[i] = i + 1
	}
	xf := func(i int, d dict) {
		if i != pageNum-1 {
			return
		}
		cur, _ := d[name("Rotate")].(int64)
		rot := (cur + degrees) % 360
		if rot < 0 {
			rot += 360
		}
		rot = (rot + 45) / 90 % 4 * 90
		d[name("Rotate")] = rot
	}
	return m.buildFromPages(readers, pageNums, xf)
}

// Crop returns a standalone copy of r with the page at 1-based index
// pageNum's /CropBox set to box (llx, lly, urx, ury).
func (m *Mutator) Crop(r *Reader, pageNum int, box [4]float64) ([]byte, error) {
	n := r.NumPage()
	readers := make([]*Reader, n)
	pageNums := make([]int, n)
	for i := range readers {
		readers[i] = r
		pageNums[i] = i + 1
	}
	xf := func(i int, d dict) {
		if i != pageNum-1 {
			return
		}
		d[name("CropBox")] = array{box[0], box[1], box[2], box[3]}
	}
	return m.buildFromPages(readers, pageNums, xf)
}

// Stamp returns a standalone copy of r with extraContent appended to the
// content stream of the page at 1-based index pageNum, and extraResources
// merged into that page's resource dictionary (entries in extraResources
// win on key collision, since a stamp is applied on top of the original
// content). extraResources uses plain Go values (string names, nested
// maps/slices of the same) rather than this package's internal object
// representation, since callers building a stamp don't have access to it.
func (m *Mutator) Stamp(r *Reader, pageNum int, extraContent []byte, extraResources map[string]interface{}) ([]byte, error) {
	n := r.NumPage()
	readers := make([]*Reader, n)
	pageNums := make([]int, n)
	for i := range readers {
		readers[i] = r
		pageNums[i] = i + 1
	}
	var stampErr error
	// Stamp needs to add a new content stream object into the destination
	// builder, which a pageTransform (only given the dict) cannot do, so it
	// is implemented as its own copy pass instead of reusing buildFromPages.
	b := NewDocumentBuilder(m.opts)
	catalog := b.AddObject(nil)
	pagesNode := b.AddObject(nil)
	b.SetRoot(catalog)
	b.SetInfo(copyDocInfo(r, b))

	kids := make(array, 0, n)
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			stampErr = &WriteError{Op: "stamp", Err: fmt.Errorf("missing page %d", i)}
			break
		}
		copier := NewPageGraphCopier(r, b)
		ptr := copier.CopyPage(page.V, pagesNode)
		d, _ := b.objs[ptr.id].(dict)
		if d == nil {
			continue
		}
		d[name("MediaBox")] = copier.copyValue(page.MediaBox())
		if cb := page.CropBox(); !cb.IsNull() {
			d[name("CropBox")] = copier.copyValue(cb)
		}
		d[name("Rotate")] = page.Rotate()
		res, _ := copier.copyValue(page.Resources()).(dict)
		if res == nil {
			res = make(dict)
		}
		d[name("Type")] = name("Page")

		if i == pageNum {
			mergeStampResources(res, extraResources)
			contentData := readPageContent(page)
			contentData = append(append(contentData, '\n'), extraContent...)
			streamPtr := b.AddStream(dict{}, contentData, true)
			d[name("Contents")] = streamPtr
		}
		d[name("Resources")] = res
		b.SetObject(ptr, d)
		kids = append(kids, ptr)
	}
	if stampErr != nil {
		return nil, stampErr
	}

	b.SetObject(pagesNode, dict{
		name("Type"):  name("Pages"),
		name("Kids"):  kids,
		name("Count"): int64(len(kids)),
	})
	b.SetObject(catalog, dict{
		name("Type"):  name("Catalog"),
		name("Pages"): pagesNode,
	})

	var buf bytes.Buffer
	if err := b.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// readPageContent reads a page's content stream(s) to a single buffer,
// concatenating with a separating newline when /Contents is an array, per
// PDF 32000-1 §7.8.2.
func readPageContent(page Page) []byte {
	c := page.Contents()
	if c.Kind() == Array {
		var buf bytes.Buffer
		for i := 0; i < c.Len(); i++ {
			data, err := readAllClose(c.Index(i).Reader())
			if err == nil {
				buf.Write(data)
				buf.WriteByte('\n')
			}
		}
		return buf.Bytes()
	}
	data, err := readAllClose(c.Reader())
	if err != nil {
		return nil
	}
	return data
}

func mergeStampResources(dst dict, extra map[string]interface{}) {
	for k, v := range extra {
		dst[name(k)] = toObject(v)
	}
}

// toObject converts a plain Go value (as a caller without access to this
// package's internals would build) into the object representation the
// writer understands.
func toObject(v interface{}) object {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		return t
	case int:
		return int64(t)
	case int64:
		return t
	case float64:
		return t
	case string:
		return name(t)
	case []interface{}:
		out := make(array, len(t))
		for i, e := range t {
			out[i] = toObject(e)
		}
		return out
	case map[string]interface{}:
		out := make(dict, len(t))
		for k, e := range t {
			out[name(k)] = toObject(e)
		}
		return out
	default:
		return nil
	}
}
