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

func openOnePagePDF(t *testing.T) *Reader {
	t.Helper()
	src := onePagePDF()
	r, err := NewReader(bytes.NewReader(src), int64(len(src)))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func openDoc(t *testing.T, data []byte) *Reader {
	t.Helper()
	r, err := NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestMutatorExtract(t *testing.T) {
	r := openOnePagePDF(t)
	doc, err := NewMutator(nil).Extract(r, []int{1})
	require.NoError(t, err)

	out := openDoc(t, doc)
	assert.Equal(t, 1, out.NumPage())
	page := out.Page(1)
	assert.Equal(t, "Page", page.V.Key("Type").Name())
	assert.Equal(t, "pdfcore", out.Trailer().Key("Info").Key("Producer").RawString())
}

func TestMutatorSplit(t *testing.T) {
	r := openOnePagePDF(t)
	docs, err := NewMutator(nil).Split(r)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	out := openDoc(t, docs[0])
	assert.Equal(t, 1, out.NumPage())
}

func TestMutatorMerge(t *testing.T) {
	r1 := openOnePagePDF(t)
	r2 := openOnePagePDF(t)
	doc, err := NewMutator(nil).Merge([]*Reader{r1, r2})
	require.NoError(t, err)

	out := openDoc(t, doc)
	assert.Equal(t, 2, out.NumPage())
}

func TestMutatorRotate(t *testing.T) {
	r := openOnePagePDF(t)
	doc, err := NewMutator(nil).Rotate(r, 1, 90)
	require.NoError(t, err)

	out := openDoc(t, doc)
	assert.EqualValues(t, 90, out.Page(1).Rotate())
}

func TestMutatorCrop(t *testing.T) {
	r := openOnePagePDF(t)
	doc, err := NewMutator(nil).Crop(r, 1, [4]float64{10, 20, 300, 400})
	require.NoError(t, err)

	out := openDoc(t, doc)
	box := out.Page(1).CropBox()
	require.False(t, box.IsNull())
	assert.Equal(t, 10.0, box.Index(0).Float64())
	assert.Equal(t, 400.0, box.Index(3).Float64())
}

func TestMutatorStamp(t *testing.T) {
	r := openOnePagePDF(t)
	doc, err := NewMutator(nil).Stamp(r, 1, []byte("BT ET"), map[string]interface{}{
		"ProcSet": []interface{}{"PDF", "Text"},
	})
	require.NoError(t, err)

	out := openDoc(t, doc)
	page := out.Page(1)
	content, err := readAllClose(page.Contents().Reader())
	require.NoError(t, err)
	assert.Contains(t, string(content), "Hello")
	assert.Contains(t, string(content), "BT ET")
	assert.Equal(t, "pdfcore", out.Trailer().Key("Info").Key("Producer").RawString())
}
