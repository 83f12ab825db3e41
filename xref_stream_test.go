package pdf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"testing"
)

// TestXrefStreamRecovery tests the recovery of xref stream (PDF 1.5+) format
func TestXrefStreamRecovery(t *testing.T) {
	// Create a minimal valid PDF 1.5 with xref stream
	pdf := createMinimalXrefStreamPDF()

	r, err := NewReader(bytes.NewReader(pdf), int64(len(pdf)))
	if err != nil {
		t.Fatalf("failed to open PDF with xref stream: %v", err)
	}
	defer r.Close()

	// Verify trailer was recovered correctly
	trailer := r.Trailer()
	if trailer.IsNull() {
		t.Fatal("trailer is null")
	}

	root := trailer.Key("Root")
	if root.IsNull() {
		t.Fatal("Root is null in trailer")
	}
}

// TestSearchXrefStream tests searching for xref stream in corrupted PDFs
func TestSearchXrefStream(t *testing.T) {
	// Create a PDF with incorrect startxref offset
	pdf := createPDFWithBadStartxref()

	r, err := NewReader(bytes.NewReader(pdf), int64(len(pdf)))
	if err != nil {
		// This is expected to potentially fail, but should not panic
		t.Logf("expected error for bad startxref: %v", err)
		return
	}
	defer r.Close()

	// If it succeeded, verify basic structure
	trailer := r.Trailer()
	if !trailer.IsNull() {
		t.Log("Successfully recovered trailer from PDF with bad startxref")
	}
}

// TestRecoverTrailerFromXrefStream tests recovering trailer info directly
// from an XRef stream dictionary, bypassing the traditional trailer search.
func TestRecoverTrailerFromXrefStream(t *testing.T) {
	pdf := createMinimalXrefStreamPDF()

	_, xrefOffset, err := findStartxrefEnhanced(bytes.NewReader(pdf), int64(len(pdf)), nil)
	if err != nil {
		t.Fatalf("findStartxrefEnhanced: %v", err)
	}

	trailer, err := findTrailerFromXrefStream(pdf, xrefOffset)
	if err != nil {
		t.Fatalf("findTrailerFromXrefStream: %v", err)
	}
	if trailer["Root"] == nil {
		t.Error("trailer should have Root entry")
	}
}

// createMinimalXrefStreamPDF creates a minimal valid PDF 1.5 with xref stream
func createMinimalXrefStreamPDF() []byte {
	var buf bytes.Buffer

	// PDF header
	buf.WriteString("%PDF-1.5\n")
	buf.WriteString("%\x80\x80\x80\x80\n")

	// Object 1: Catalog
	obj1Offset := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	// Object 2: Pages
	obj2Offset := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")

	// Object 3: XRef stream
	xrefOffset := buf.Len()

	// Build xref stream data (Flate-compressed below)
	// W = [1, 2, 1] means: type(1 byte), offset(2 bytes), generation(1 byte)
	// We have 4 objects: 0 (free), 1, 2, 3 (xref stream itself)
	xrefData := []byte{
		0, 0, 0, 255, // Object 0: free, next=0, gen=255 (actually 65535 but we use 1 byte)
		1, byte(obj1Offset >> 8), byte(obj1Offset), 0, // Object 1: in-use, offset, gen=0
		1, byte(obj2Offset >> 8), byte(obj2Offset), 0, // Object 2: in-use, offset, gen=0
		1, byte(xrefOffset >> 8), byte(xrefOffset), 0, // Object 3: in-use (xref stream itself)
	}

	// Compress the xref data
	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	w.Write(xrefData)
	w.Close()

	// Write xref stream object
	fmt.Fprintf(&buf, "3 0 obj\n")
	fmt.Fprintf(&buf, "<< /Type /XRef /Size 4 /W [1 2 1] /Root 1 0 R /Length %d /Filter /FlateDecode >>\n", compressed.Len())
	buf.WriteString("stream\n")
	buf.Write(compressed.Bytes())
	buf.WriteString("\nendstream\nendobj\n")

	// startxref and EOF
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF", xrefOffset)

	return buf.Bytes()
}

// createPDFWithBadStartxref creates a PDF with intentionally wrong startxref
func createPDFWithBadStartxref() []byte {
	var buf bytes.Buffer

	// PDF header
	buf.WriteString("%PDF-1.5\n")
	buf.WriteString("%\x80\x80\x80\x80\n")

	// Object 1: Catalog
	obj1Offset := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	// Object 2: Pages
	obj2Offset := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")

	// Object 3: XRef stream
	xrefOffset := buf.Len()

	// Build xref stream data
	xrefData := []byte{
		0, 0, 0, 255,
		1, byte(obj1Offset >> 8), byte(obj1Offset), 0,
		1, byte(obj2Offset >> 8), byte(obj2Offset), 0,
		1, byte(xrefOffset >> 8), byte(xrefOffset), 0,
	}

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	w.Write(xrefData)
	w.Close()

	fmt.Fprintf(&buf, "3 0 obj\n")
	fmt.Fprintf(&buf, "<< /Type /XRef /Size 4 /W [1 2 1] /Root 1 0 R /Length %d /Filter /FlateDecode >>\n", compressed.Len())
	buf.WriteString("stream\n")
	buf.Write(compressed.Bytes())
	buf.WriteString("\nendstream\nendobj\n")

	// Intentionally wrong startxref (pointing to offset 116, which is common in error logs)
	buf.WriteString("startxref\n116\n%%EOF")

	return buf.Bytes()
}

// TestXrefStreamOpenNoPanic opens the minimal xref-stream PDF (a single
// xref stream with no /Prev entry) and checks that NewReader does not panic.
func TestXrefStreamOpenNoPanic(t *testing.T) {
	pdf := createMinimalXrefStreamPDF()

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("unexpected panic: %v", r)
		}
	}()

	r, err := NewReader(bytes.NewReader(pdf), int64(len(pdf)))
	if err != nil {
		t.Logf("error opening PDF: %v", err)
		return
	}
	defer r.Close()

	t.Log("Successfully opened xref stream PDF")
}

// TestRebuildXrefFromObjectsLineStart verifies that rebuildXrefFromObjects
// records each object's offset at the start of its "N M obj" line, not at
// the "obj" keyword itself.
func TestRebuildXrefFromObjectsLineStart(t *testing.T) {
	data := []byte("\n1 0 obj\n<< /Type /XRef >>\nendobj\n")

	table, err := rebuildXrefFromObjects(data)
	if err != nil {
		t.Fatalf("rebuildXrefFromObjects: %v", err)
	}
	if len(table) < 2 || table[1].ptr.id != 1 {
		t.Fatalf("object 1 not found in rebuilt table: %+v", table)
	}
	if table[1].offset != 1 {
		t.Errorf("expected offset 1 (line start after leading newline), got %d", table[1].offset)
	}
}
