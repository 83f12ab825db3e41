// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"bytes"
	"crypto/sha256"
	"io"
)

// OptimizeReport summarizes one Optimizer.Optimize run, in the spirit of
// pdfcpu's per-document stats line: enough numbers to judge whether
// optimizing a given document was worthwhile, without requiring the caller
// to diff the bytes themselves.
type OptimizeReport struct {
	OriginalSize    int64
	FinalSize       int64
	ObjectsTotal    int
	ObjectsRemoved  int // unreferenced objects dropped
	DuplicatesMerged int // streams with identical content collapsed to one object
	Level           OptimizeLevel
}

// Ratio returns the fraction of the original size removed, 1 -
// FinalSize/OriginalSize: negative when the output is larger than the
// input, and 0 when OriginalSize is 0.
func (r OptimizeReport) Ratio() float64 {
	if r.OriginalSize == 0 {
		return 0
	}
	return 1 - float64(r.FinalSize)/float64(r.OriginalSize)
}

// Optimizer rewrites a document to reduce its size without changing its
// rendered content: recompressing streams, rebuilding the document from its
// page tree and /Info so that objects no page reaches are dropped, and (at
// L2+) deduplicating byte-identical streams such as an image embedded once
// per page. The rebuilt catalog holds only /Type and /Pages; other catalog
// entries (outlines, forms, name trees) are not copied.
type Optimizer struct {
	opts *OptimizeOptions
}

func NewOptimizer(opts *OptimizeOptions) *Optimizer {
	if opts == nil {
		opts = NewDefaultOptimizeOptions()
	}
	return &Optimizer{opts: opts}
}

// Optimize reads r's reachable object graph, applies the configured level,
// and writes a fresh standalone document to w.
func (o *Optimizer) Optimize(r *Reader, originalSize int64, w io.Writer) (*OptimizeReport, error) {
	if err := o.opts.Validate(); err != nil {
		return nil, &WriteError{Op: "optimize", Err: err}
	}

	wopts := NewDefaultWriterOptions()
	wopts.XrefFormat = XrefStream
	wopts.Compress = o.opts.Level >= OptimizeL1
	b := NewDocumentBuilder(wopts)

	catalog := b.AddObject(nil)
	pagesNode := b.AddObject(nil)
	b.SetRoot(catalog)
	b.SetInfo(copyDocInfo(r, b))

	copier := NewPageGraphCopier(r, b)
	dedup := map[[32]byte]objptr{}
	merged := 0

	n := r.NumPage()
	kids := make(array, 0, n)
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
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
		b.SetObject(ptr, d)
		kids = append(kids, ptr)
	}

	if o.opts.Level >= OptimizeL2 {
		merged = dedupeStreams(b, dedup)
	}

	total := len(b.objs)

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
	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, &WriteError{Op: "optimize", Err: err}
	}

	removed := len(r.xref) - total
	if removed < 0 {
		removed = 0
	}
	return &OptimizeReport{
		OriginalSize:     originalSize,
		FinalSize:        int64(buf.Len()),
		ObjectsTotal:     total,
		ObjectsRemoved:   removed,
		DuplicatesMerged: merged,
		Level:            o.opts.Level,
	}, nil
}

// dedupeStreams collapses streams in b with identical content (by SHA-256
// digest) to a single object, rewriting every dict/array that referenced a
// duplicate to point at the survivor. It returns the number of duplicates
// removed.
func dedupeStreams(b *DocumentBuilder, seen map[[32]byte]objptr) int {
	survivor := map[uint32]uint32{}
	removed := 0
	for id, obj := range b.objs {
		rs, ok := obj.(rawStream)
		if !ok {
			continue
		}
		sum := sha256.Sum256(rs.data)
		if existing, ok := seen[sum]; ok {
			survivor[id] = existing.id
			delete(b.objs, id)
			removed++
			continue
		}
		seen[sum] = objptr{id: id}
	}
	if removed == 0 {
		return 0
	}
	for id, obj := range b.objs {
		b.objs[id] = remapRefs(obj, survivor)
	}
	return removed
}

func remapRefs(obj object, survivor map[uint32]uint32) object {
	switch t := obj.(type) {
	case objptr:
		if to, ok := survivor[t.id]; ok {
			return objptr{id: to}
		}
		return t
	case dict:
		for k, v := range t {
			t[k] = remapRefs(v, survivor)
		}
		return t
	case array:
		for i, v := range t {
			t[i] = remapRefs(v, survivor)
		}
		return t
	case rawStream:
		for k, v := range t.hdr {
			t.hdr[k] = remapRefs(v, survivor)
		}
		return t
	default:
		return obj
	}
}
