// Copyright 2014 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

// A Page represents a single page in a PDF file.
// The methods interpret a Page dictionary stored in V.
type Page struct {
	V Value
}

// Page returns the page for the given page number.
// Page numbers are indexed starting at 1, not 0.
// If the page is not found, Page returns a Page with p.V.IsNull().
func (r *Reader) Page(num int) Page {
	num-- // now 0-indexed
	page := r.Trailer().Key("Root").Key("Pages")
Search:
	for page.Key("Type").Name() == "Pages" {
		count := int(page.Key("Count").Int64())
		if count < num {
			return Page{V: Value{}}
		}
		kids := page.Key("Kids")
		for i := 0; i < kids.Len(); i++ {
			kid := kids.Index(i)
			if kid.Key("Type").Name() == "Pages" {
				c := int(kid.Key("Count").Int64())
				if num < c {
					page = kid
					continue Search
				}
				num -= c
				continue
			}
			if kid.Key("Type").Name() == "Page" {
				if num == 0 {
					return Page{V: kid}
				}
				num--
			}
		}
		break
	}
	return Page{V: Value{}}
}

// NumPage returns the number of pages in the PDF file.
func (r *Reader) NumPage() int {
	return int(r.Trailer().Key("Root").Key("Pages").Key("Count").Int64())
}

// Pages returns the flattened, in-order list of every leaf /Page object
// reachable from the document's page tree. Unlike Page, which re-walks the
// tree for every call, Pages walks it once.
func (r *Reader) Pages() []Page {
	var out []Page
	var walk func(node Value)
	walk = func(node Value) {
		switch node.Key("Type").Name() {
		case "Pages":
			kids := node.Key("Kids")
			for i := 0; i < kids.Len(); i++ {
				walk(kids.Index(i))
			}
		case "Page":
			out = append(out, Page{V: node})
		}
	}
	walk(r.Trailer().Key("Root").Key("Pages"))
	return out
}

func (p Page) findInherited(key string) Value {
	for v := p.V; !v.IsNull(); v = v.Key("Parent") {
		if r := v.Key(key); !r.IsNull() {
			return r
		}
	}
	return Value{}
}

// MediaBox returns the page's media box, walking /Parent links to find an
// inherited value if the page itself does not specify one.
func (p Page) MediaBox() Value {
	return p.findInherited("MediaBox")
}

// CropBox returns the page's crop box, walking /Parent links to find an
// inherited value if the page itself does not specify one. If absent
// entirely, callers should fall back to MediaBox.
func (p Page) CropBox() Value {
	return p.findInherited("CropBox")
}

// Rotate returns the page's rotation in degrees clockwise (a multiple of
// 90), walking /Parent links for an inherited value. Zero if unset.
func (p Page) Rotate() int64 {
	v := p.findInherited("Rotate")
	if v.IsNull() {
		return 0
	}
	r := v.Int64() % 360
	if r < 0 {
		r += 360
	}
	return r
}

// Resources returns the resources dictionary associated with the page.
func (p Page) Resources() Value {
	return p.findInherited("Resources")
}

// Contents returns the page's content stream value. When /Contents is an
// array of streams, callers should concatenate Value.Reader() output for
// each entry with a separating whitespace byte, per PDF 32000-1 §7.8.2.
func (p Page) Contents() Value {
	return p.V.Key("Contents")
}

// Annots returns the page's /Annots array, or a null Value if absent.
func (p Page) Annots() Value {
	return p.V.Key("Annots")
}
