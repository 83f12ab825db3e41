// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapThreshold is the file size above which OpenMmap maps the file instead
// of reading through the os.File directly. Below it, the extra syscalls to
// set up a mapping cost more than the read syscalls they would save.
const mmapThreshold = 32 << 20 // 32 MiB

// mmapReaderAt adapts a memory-mapped byte slice to io.ReaderAt.
type mmapReaderAt struct {
	data []byte
}

func (m *mmapReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.data)) {
		return 0, &PDFError{Op: "mmap read", Err: ErrCorrupted}
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, os.ErrClosed
	}
	return n, nil
}

// mmapCloser unmaps data when the Reader is closed. It also closes the
// backing file descriptor, since the mapping keeps the file's pages resident
// independent of the fd once established, but the fd itself is no longer
// needed for reads past this point.
type mmapCloser struct {
	data []byte
	f    *os.File
}

func (c *mmapCloser) Close() error {
	err := unix.Munmap(c.data)
	if cerr := c.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// OpenMmap opens file for reading the same as Open, but for files at or
// above mmapThreshold it backs the Reader with a memory-mapped view of the
// file instead of issuing a pread syscall per object lookup. This trades a
// one-time mapping setup cost for avoiding repeated copies when PrewarmCache
// or random page access touches a large fraction of a multi-gigabyte file.
//
// Callers on platforms without mmap support, or who need the unconditional
// os.File-backed path, should use Open instead.
func OpenMmap(file string) (*Reader, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		f.Close()
		return nil, &PDFError{Op: "open", Err: ErrCorrupted}
	}
	if size < mmapThreshold {
		r, err := NewReader(f, size)
		if err != nil {
			f.Close()
			return nil, err
		}
		r.closer = f
		return r, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, &PDFError{Op: "mmap", Err: err}
	}
	backing := &mmapReaderAt{data: data}
	r, err := NewReader(backing, size)
	if err != nil {
		unix.Munmap(data)
		f.Close()
		return nil, err
	}
	r.closer = &mmapCloser{data: data, f: f}
	return r, nil
}
