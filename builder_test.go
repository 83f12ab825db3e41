// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentBuilderFreshDocument(t *testing.T) {
	b := NewDocumentBuilder(nil)
	catalog := b.AddObject(nil)
	pages := b.AddObject(nil)
	b.SetObject(pages, dict{
		name("Type"):  name("Pages"),
		name("Kids"):  array{},
		name("Count"): int64(0),
	})
	b.SetObject(catalog, dict{name("Type"): name("Catalog"), name("Pages"): pages})
	b.SetRoot(catalog)

	var out bytes.Buffer
	require.NoError(t, b.Write(&out))

	raw := out.Bytes()
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF-1.7\n")))
	assert.Contains(t, string(raw), "startxref")
	assert.Contains(t, string(raw), "%%EOF")

	r, err := NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	defer r.Close()

	root := r.Trailer().Key("Root")
	require.False(t, root.IsNull())
	assert.Equal(t, "Catalog", root.Key("Type").Name())
}

func TestDocumentBuilderAddStreamCompresses(t *testing.T) {
	b := NewDocumentBuilder(nil)
	ptr := b.AddStream(dict{}, []byte("hello world"), true)
	obj := b.objs[ptr.id]
	rs, ok := obj.(rawStream)
	require.True(t, ok)
	assert.Equal(t, name("FlateDecode"), rs.hdr[name("Filter")])
	assert.NotEqual(t, "hello world", string(rs.data))
}

func TestNewIncrementalBuilderChainsPrev(t *testing.T) {
	src := onePagePDF()
	r, err := NewReader(bytes.NewReader(src), int64(len(src)))
	require.NoError(t, err)
	defer r.Close()

	b, err := NewIncrementalBuilder(r, nil)
	require.NoError(t, err)
	assert.True(t, b.hasPrev)
	assert.EqualValues(t, len(src), b.sourceEnd)
	assert.Equal(t, uint32(6), b.baseSize)

	newObj := b.AddObject(dict{name("Type"): name("Test")})
	assert.GreaterOrEqual(t, newObj.id, uint32(6))

	var out bytes.Buffer
	require.NoError(t, b.WriteIncremental(&out, r))

	full := out.Bytes()
	assert.True(t, bytes.HasPrefix(full, src[:20]))

	r2, err := NewReader(bytes.NewReader(full), int64(len(full)))
	require.NoError(t, err)
	defer r2.Close()
	assert.Equal(t, 1, r2.NumPage())
}
