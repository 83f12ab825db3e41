// Copyright 2014 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/lzw"
	"compress/zlib"
	"encoding/ascii85"
	"fmt"
	"io"
)

// filterAliases maps the abbreviated filter names PDF producers sometimes
// emit (PDF 32000-1:2008, Table 8) onto their canonical names.
var filterAliases = map[string]string{
	"Fl":  "FlateDecode",
	"AHx": "ASCIIHexDecode",
	"A85": "ASCII85Decode",
	"LZW": "LZWDecode",
	"RL":  "RunLengthDecode",
	"CCF": "CCITTFaxDecode",
	"DCT": "DCTDecode",
}

func canonicalFilterName(n string) string {
	if full, ok := filterAliases[n]; ok {
		return full
	}
	return n
}

// applyFilter wraps rd with the decoder for the named stream filter,
// applying any predictor named in param. It returns nil if the filter or
// its parameters are not supported.
func applyFilter(rd io.Reader, name string, param Value) io.Reader {
	switch canonicalFilterName(name) {
	default:
		return nil
	case "FlateDecode":
		br := bufio.NewReader(rd)
		head, _ := br.Peek(2)
		if _, err := zlib.NewReader(bytes.NewReader(head)); err != nil {
			// Some encoders write raw deflate data without a zlib
			// header; decode those as raw deflate instead.
			return applyPredictor(flateReader(br), param)
		}
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil
		}
		return applyPredictor(zr, param)
	case "ASCIIHexDecode":
		return newAsciiHexReader(rd)
	case "LZWDecode":
		early := 1
		if e := param.Key("EarlyChange"); e.Kind() != Null {
			early = int(e.Int64())
		}
		if early != 0 && early != 1 {
			return nil
		}
		// compress/lzw widens its codes at the EarlyChange 0 point; the
		// EarlyChange 1 (default) form widens one code sooner and needs
		// the reader below.
		if early == 0 {
			return applyPredictor(lzw.NewReader(rd, lzw.MSB, 8), param)
		}
		return applyPredictor(newLZWNoEarlyChangeReader(rd, 2), param)
	case "ASCII85Decode":
		return ascii85.NewDecoder(newAlphaReader(rd))
	case "DCTDecode", "JPXDecode", "CCITTFaxDecode", "JBIG2Decode":
		// Image codecs are out of scope: the caller gets the codec's
		// native bytes and is expected to hand them to an image decoder.
		return rd
	case "RunLengthDecode":
		return newRunLengthReader(rd)
	}
}

// flateReader decodes raw (headerless) DEFLATE data from rd, the fallback
// for FlateDecode streams whose first two bytes are not a zlib header.
func flateReader(rd io.Reader) io.Reader {
	return flate.NewReader(rd)
}

// alphaReader strips whitespace and any trailing garbage outside the
// ASCII85 alphabet (!-u plus the z and ~> tokens) before handing bytes to
// encoding/ascii85, which is strict about its input.
type alphaReader struct {
	r   *bufio.Reader
	eod bool
}

func newAlphaReader(rd io.Reader) io.Reader {
	return &alphaReader{r: bufio.NewReader(rd)}
}

func (a *alphaReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if a.eod {
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}
		c, err := a.r.ReadByte()
		if err != nil {
			if n == 0 {
				return 0, err
			}
			return n, nil
		}
		switch checkASCII85(c) {
		case 1:
			a.eod = true
		case 0:
			// whitespace or other noise: skip
		default:
			p[n] = c
			n++
		}
	}
	return n, nil
}

// checkASCII85 classifies a byte from an ASCII85Decode stream: 0 for noise
// to be skipped, 1 for the '~' end-of-data marker, or the byte itself when
// it is a valid ASCII85 alphabet character (including the 'z' shorthand and
// the terminal '>').
func checkASCII85(c byte) byte {
	switch {
	case c == '~':
		return 1
	case c == 'z' || (c >= '!' && c <= 'u'):
		return c
	default:
		return 0
	}
}

// asciiHexReader decodes ASCIIHexDecode stream data (PDF 32000-1:2008,
// §7.4.2): pairs of hex digits terminated by '>', with whitespace ignored
// and an odd trailing digit padded with a zero nibble.
type asciiHexReader struct {
	r   *bufio.Reader
	eod bool
}

func newAsciiHexReader(rd io.Reader) io.Reader {
	return &asciiHexReader{r: bufio.NewReader(rd)}
}

func (h *asciiHexReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if h.eod {
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}
		x1, ok := h.nextHexDigit()
		if !ok {
			h.eod = true
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}
		x2, ok := h.nextHexDigit()
		if !ok {
			p[n] = byte(x1 << 4)
			n++
			h.eod = true
			return n, nil
		}
		p[n] = byte(x1<<4 | x2)
		n++
	}
	return n, nil
}

// nextHexDigit returns the next hex digit, skipping whitespace, or false
// at '>' or EOF.
func (h *asciiHexReader) nextHexDigit() (int8, bool) {
	for {
		c, err := h.r.ReadByte()
		if err != nil || c == '>' {
			return 0, false
		}
		if isSpace(c) {
			continue
		}
		x := hexTable[c]
		if x < 0 {
			continue
		}
		return x, true
	}
}

// lzwNoEarlyChangeReader decodes LZWDecode streams with a configurable
// code-width cutover: earlyOff 1 widens codes at the /EarlyChange 0 point
// (the same point compress/lzw uses), earlyOff 2 widens one code sooner,
// as /EarlyChange 1 streams require.
type lzwNoEarlyChangeReader struct {
	br       *bitReaderMSB
	table    [][]byte
	next     int
	width    int
	prev     []byte
	buf      bytes.Buffer
	done     bool
	earlyOff int // 1: EarlyChange 0 cutover; 2: one code sooner (EarlyChange 1)
}

const (
	lzwClearCode = 256
	lzwEODCode   = 257
	lzwBase      = 258
)

func newLZWNoEarlyChangeReader(rd io.Reader, earlyOff int) io.Reader {
	r := &lzwNoEarlyChangeReader{br: newBitReaderMSB(rd), earlyOff: earlyOff}
	r.reset()
	return r
}

func (r *lzwNoEarlyChangeReader) reset() {
	r.table = make([][]byte, lzwBase, 4096)
	for i := 0; i < 256; i++ {
		r.table[i] = []byte{byte(i)}
	}
	r.next = lzwBase
	r.width = 9
	r.prev = nil
}

func (r *lzwNoEarlyChangeReader) Read(p []byte) (int, error) {
	for r.buf.Len() < len(p) && !r.done {
		if err := r.step(); err != nil {
			if err == io.EOF {
				r.done = true
				break
			}
			return 0, err
		}
	}
	return r.buf.Read(p)
}

func (r *lzwNoEarlyChangeReader) step() error {
	code, err := r.br.ReadBits(r.width)
	if err != nil {
		return err
	}
	switch code {
	case lzwClearCode:
		r.reset()
		return nil
	case lzwEODCode:
		return io.EOF
	}

	var entry []byte
	if code < len(r.table) && r.table[code] != nil {
		entry = r.table[code]
	} else if code == r.next && r.prev != nil {
		entry = append(append([]byte{}, r.prev...), r.prev[0])
	} else {
		return fmt.Errorf("pdf: invalid LZW code %d", code)
	}
	r.buf.Write(entry)

	if r.prev != nil && r.next < 4096 {
		newEntry := append(append([]byte{}, r.prev...), entry[0])
		if r.next < len(r.table) {
			r.table[r.next] = newEntry
		} else {
			r.table = append(r.table, newEntry)
		}
		r.next++
	}
	r.prev = entry

	// Widen once next+earlyOff passes the current code space.
	cutover := r.next + r.earlyOff
	switch {
	case cutover > 2048 && r.width < 12:
		r.width = 12
	case cutover > 1024 && r.width < 11:
		r.width = 11
	case cutover > 512 && r.width < 10:
		r.width = 10
	}
	return nil
}

// bitReaderMSB reads big-endian variable-width bit codes, matching the PDF
// and TIFF LZW bit order.
type bitReaderMSB struct {
	r    io.ByteReader
	buf  uint32
	bits int
}

func newBitReaderMSB(r io.Reader) *bitReaderMSB {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &bitReaderMSB{r: br}
}

func (b *bitReaderMSB) ReadBits(n int) (int, error) {
	for b.bits < n {
		c, err := b.r.ReadByte()
		if err != nil {
			return 0, err
		}
		b.buf = b.buf<<8 | uint32(c)
		b.bits += 8
	}
	b.bits -= n
	v := (b.buf >> uint(b.bits)) & ((1 << uint(n)) - 1)
	return int(v), nil
}

// applyPredictor wraps rd with the PNG or TIFF predictor named in param,
// per PDF 32000-1:2008, Table 8 "Optional parameters for LZWDecode and
// FlateDecode filters".
func applyPredictor(rd io.Reader, param Value) io.Reader {
	if param.Kind() != Dict {
		return rd
	}
	pred := param.Key("Predictor")
	if pred.Kind() == Null || pred.Int64() == 1 {
		return rd
	}

	colors := int(param.Key("Colors").Int64())
	if colors <= 0 {
		colors = 1
	}
	bpc := int(param.Key("BitsPerComponent").Int64())
	if bpc <= 0 {
		bpc = 8
	}
	columns := int(param.Key("Columns").Int64())
	if columns <= 0 {
		columns = 1
	}

	p := pred.Int64()
	if p == 2 {
		return newPredictorReader(rd, predictorTIFF, colors, bpc, columns)
	}
	if p >= 10 {
		return newPredictorReader(rd, predictorPNG, colors, bpc, columns)
	}
	if DebugOn {
		fmt.Println("unknown predictor", p)
	}
	return rd
}

type predictorKind int

const (
	predictorTIFF predictorKind = iota
	predictorPNG
)

// predictorReader undoes the PNG (Sub/Up/Average/Paeth, selected per row by
// a leading tag byte) or TIFF horizontal-differencing predictor applied
// before Flate/LZW compression.
type predictorReader struct {
	r             io.Reader
	kind          predictorKind
	bytesPerPixel int
	rowBytes      int
	prevRow       []byte
	curRow        []byte
	buf           bytes.Buffer
}

func newPredictorReader(rd io.Reader, kind predictorKind, colors, bpc, columns int) *predictorReader {
	bytesPerPixel := (colors*bpc + 7) / 8
	if bytesPerPixel < 1 {
		bytesPerPixel = 1
	}
	rowBytes := (columns*colors*bpc + 7) / 8
	return &predictorReader{
		r:             rd,
		kind:          kind,
		bytesPerPixel: bytesPerPixel,
		rowBytes:      rowBytes,
		prevRow:       make([]byte, rowBytes),
		curRow:        make([]byte, rowBytes),
	}
}

func (p *predictorReader) Read(b []byte) (int, error) {
	for p.buf.Len() < len(b) {
		if err := p.decodeRow(); err != nil {
			if err == io.EOF {
				break
			}
			return 0, err
		}
	}
	return p.buf.Read(b)
}

func (p *predictorReader) decodeRow() error {
	if p.kind == predictorTIFF {
		if _, err := io.ReadFull(p.r, p.curRow); err != nil {
			return err
		}
		bpp := p.bytesPerPixel
		for i := bpp; i < len(p.curRow); i++ {
			p.curRow[i] += p.curRow[i-bpp]
		}
		p.buf.Write(p.curRow)
		return nil
	}

	var tag [1]byte
	if _, err := io.ReadFull(p.r, tag[:]); err != nil {
		return err
	}
	if _, err := io.ReadFull(p.r, p.curRow); err != nil {
		return err
	}
	bpp := p.bytesPerPixel
	switch tag[0] {
	case 0: // None
	case 1: // Sub
		for i := bpp; i < len(p.curRow); i++ {
			p.curRow[i] += p.curRow[i-bpp]
		}
	case 2: // Up
		for i := range p.curRow {
			p.curRow[i] += p.prevRow[i]
		}
	case 3: // Average
		for i := 0; i < bpp; i++ {
			p.curRow[i] += p.prevRow[i] / 2
		}
		for i := bpp; i < len(p.curRow); i++ {
			p.curRow[i] += byte((int(p.curRow[i-bpp]) + int(p.prevRow[i])) / 2)
		}
	case 4: // Paeth
		for i := 0; i < bpp; i++ {
			p.curRow[i] += paethPredictor(0, p.prevRow[i], 0)
		}
		for i := bpp; i < len(p.curRow); i++ {
			a := p.curRow[i-bpp]
			b := p.prevRow[i]
			c := p.prevRow[i-bpp]
			p.curRow[i] += paethPredictor(a, b, c)
		}
	default:
		return fmt.Errorf("pdf: unknown PNG filter type %d", tag[0])
	}
	p.buf.Write(p.curRow)
	copy(p.prevRow, p.curRow)
	return nil
}

// paethPredictor chooses among a (left), b (above), c (upper-left) per the
// PNG spec's tie-breaking rule: ties favor a, then b, then c.
func paethPredictor(a, b, c byte) byte {
	pa := absInt(int(b) - int(c))
	pb := absInt(int(a) - int(c))
	pc := absInt(int(a) + int(b) - 2*int(c))
	if pa <= pb && pa <= pc {
		return a
	} else if pb <= pc {
		return b
	}
	return c
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// runLengthReader decodes RunLengthDecode stream data (PDF 32000-1:2008,
// §7.4.5): a length byte L<128 means "copy the next L+1 bytes literally",
// L>128 means "repeat the next byte 257-L times", and L==128 is EOD.
type runLengthReader struct {
	r   *bufio.Reader
	buf []byte
	eod bool
}

func newRunLengthReader(rd io.Reader) io.Reader {
	return &runLengthReader{r: bufio.NewReader(rd)}
}

func (r *runLengthReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := 0
	for len(p) > 0 {
		if len(r.buf) == 0 {
			if r.eod {
				if n == 0 {
					return 0, io.EOF
				}
				break
			}
			if err := r.fill(); err != nil {
				if err == io.EOF {
					if n == 0 {
						return 0, io.EOF
					}
					break
				}
				return n, err
			}
		}
		m := copy(p, r.buf)
		n += m
		p = p[m:]
		r.buf = r.buf[m:]
	}
	return n, nil
}

func (r *runLengthReader) fill() error {
	b, err := r.r.ReadByte()
	if err != nil {
		return err
	}
	if b == 128 {
		r.eod = true
		return io.EOF
	}
	if b <= 127 {
		count := int(b) + 1
		r.buf = make([]byte, count)
		if _, err := io.ReadFull(r.r, r.buf); err != nil {
			return err
		}
		return nil
	}
	count := 257 - int(b)
	val, err := r.r.ReadByte()
	if err != nil {
		return err
	}
	r.buf = bytes.Repeat([]byte{val}, count)
	return nil
}
