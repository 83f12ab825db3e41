// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatName(t *testing.T) {
	assert.Equal(t, "/F1", formatName(name("F1")))
	assert.Equal(t, "/A#20B", formatName(name("A B")))
	assert.Equal(t, "/A#23B", formatName(name("A#B")))
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "(Hello)", formatString("Hello"))
	assert.Equal(t, `(a\(b\)c)`, formatString("a(b)c"))
	assert.Equal(t, `(a\nb)`, formatString("a\nb"))
}

func TestFormatValueScalars(t *testing.T) {
	tests := []struct {
		in   object
		want string
	}{
		{nil, "null"},
		{true, "true"},
		{false, "false"},
		{int64(42), "42"},
		{3.5, "3.5"},
		{name("Foo"), "/Foo"},
		{objptr{id: 3, gen: 0}, "3 0 R"},
	}
	for _, tt := range tests {
		got, err := formatValue(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestFormatValueRejectsRawStream(t *testing.T) {
	_, err := formatValue(rawStream{hdr: dict{}, data: []byte("x")})
	assert.Error(t, err)
}

func TestFormatDictSortsKeys(t *testing.T) {
	d := dict{
		name("Zebra"): int64(1),
		name("Alpha"): int64(2),
	}
	s, err := formatDict(d)
	require.NoError(t, err)
	assert.Less(t, strings.Index(s, "/Alpha"), strings.Index(s, "/Zebra"))
}

func TestWriteIndirectObjectStream(t *testing.T) {
	var b strings.Builder
	err := writeIndirectObject(&b, objptr{id: 7}, rawStream{
		hdr:  dict{name("Filter"): name("FlateDecode")},
		data: []byte("abc"),
	})
	require.NoError(t, err)
	out := b.String()
	assert.Contains(t, out, "7 0 obj")
	assert.Contains(t, out, "/Length 3")
	assert.Contains(t, out, "stream\nabc\nendstream\nendobj\n")
}

func TestWriteIndirectObjectValue(t *testing.T) {
	var b strings.Builder
	err := writeIndirectObject(&b, objptr{id: 1}, dict{name("Type"): name("Catalog")})
	require.NoError(t, err)
	assert.Equal(t, "1 0 obj\n<</Type /Catalog >>\nendobj\n", b.String())
}
