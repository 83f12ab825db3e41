// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import "io"

// readAllClose reads rc to completion and closes it regardless of the read
// outcome, returning whichever error occurred first.
func readAllClose(rc io.ReadCloser) ([]byte, error) {
	data, err := io.ReadAll(rc)
	if cerr := rc.Close(); err == nil {
		err = cerr
	}
	return data, err
}

// PageGraphCopier copies a page and everything it reaches (Resources,
// content streams, annotations, fonts, XObjects) from a source Reader into
// a DocumentBuilder, renumbering objects as it goes and deduplicating
// shared subgraphs: a font dictionary referenced by every page of the
// source document is copied once and every copied page points at the same
// new object, the same way the source document shared it.
//
// /Parent is always elided during the walk, since it points back up the
// page tree rather than out into the reachable subgraph a single
// extracted or merged page needs; the caller sets the copied page's
// /Parent to the destination's own Pages node once CopyPage returns.
type PageGraphCopier struct {
	r    *Reader
	b    *DocumentBuilder
	memo map[objptr]objptr
}

// NewPageGraphCopier prepares to copy pages of r into b.
func NewPageGraphCopier(r *Reader, b *DocumentBuilder) *PageGraphCopier {
	return &PageGraphCopier{r: r, b: b, memo: make(map[objptr]objptr)}
}

// CopyPage copies the page rooted at page (as returned by Reader.Page) into
// the builder, sets its /Parent to parent, and returns its new reference.
func (c *PageGraphCopier) CopyPage(page Value, parent objptr) objptr {
	ptr := page.ptr
	if tgt, ok := c.memo[ptr]; ok {
		c.patchParent(tgt, parent)
		return tgt
	}
	placeholder := c.b.AddObject(nil)
	c.memo[ptr] = placeholder
	obj := c.copyValue(page)
	if d, ok := obj.(dict); ok {
		d[name("Parent")] = parent
		obj = d
	}
	c.b.SetObject(placeholder, obj)
	return placeholder
}

func (c *PageGraphCopier) patchParent(ptr, parent objptr) {
	obj, ok := c.b.objs[ptr.id]
	if !ok {
		return
	}
	if d, ok := obj.(dict); ok {
		d[name("Parent")] = parent
	}
}

// copyRef resolves ptr within the source document and copies the result,
// returning a reference to the copy in the builder. Repeated references to
// the same source object (a shared font, a shared XObject) resolve to the
// same destination reference.
func (c *PageGraphCopier) copyRef(parent objptr, ptr objptr) objptr {
	if tgt, ok := c.memo[ptr]; ok {
		return tgt
	}
	placeholder := c.b.AddObject(nil)
	c.memo[ptr] = placeholder
	v := c.r.resolve(parent, ptr)
	obj := c.copyValue(v)
	c.b.SetObject(placeholder, obj)
	return placeholder
}

// copyRaw copies one raw (possibly indirect) value reached while walking a
// dict or array, translating indirect references through copyRef and
// copying inline values directly.
func (c *PageGraphCopier) copyRaw(parent objptr, raw object) object {
	if ptr, ok := raw.(objptr); ok {
		return c.copyRef(parent, ptr)
	}
	return c.copyValue(c.r.resolve(parent, raw))
}

func (c *PageGraphCopier) copyValue(v Value) object {
	switch v.Kind() {
	case Null:
		return nil
	case Bool:
		return v.Bool()
	case Integer:
		return v.Int64()
	case Real:
		return v.Float64()
	case String:
		return v.RawString()
	case Name:
		return name(v.Name())
	case Dict:
		d := v.data.(dict)
		out := make(dict, len(d))
		for k, raw := range d {
			if k == "Parent" {
				continue
			}
			out[k] = c.copyRaw(v.ptr, raw)
		}
		return out
	case Array:
		a := v.data.(array)
		out := make(array, len(a))
		for i, raw := range a {
			out[i] = c.copyRaw(v.ptr, raw)
		}
		return out
	case Stream:
		strm := v.data.(stream)
		hdr := make(dict, len(strm.hdr))
		for k, raw := range strm.hdr {
			switch k {
			case "Length", "Filter", "DecodeParms":
				continue
			default:
				hdr[k] = c.copyRaw(v.ptr, raw)
			}
		}
		content, err := readAllClose(v.Reader())
		if err != nil {
			logWarn("copy stream failed, writing empty content", "ptr", v.ptr, "err", err)
			content = nil
		}
		hdr[name("Filter")] = name("FlateDecode")
		return rawStream{hdr: hdr, data: flateCompress(content, -1)}
	default:
		return nil
	}
}
