// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// XrefFormat selects how DocumentBuilder.Write lays out the cross-reference
// section of a newly written revision.
type XrefFormat string

const (
	XrefTable  XrefFormat = "table"
	XrefStream XrefFormat = "stream"
)

// WriterOptions configures how DocumentBuilder, Mutator, and IncrementalSigner
// serialize PDF syntax.
type WriterOptions struct {
	Version          string     `validate:"required"`
	XrefFormat       XrefFormat `validate:"oneof=table stream"`
	Compress         bool
	CompressionLevel int `validate:"min=-2,max=9"`
}

// NewDefaultWriterOptions returns the options a fresh document or mutation
// uses unless the caller overrides them: xref streams with Flate-compressed
// object streams, matching how modern PDF 1.5+ writers shrink output.
func NewDefaultWriterOptions() *WriterOptions {
	return &WriterOptions{
		Version:          "1.7",
		XrefFormat:       XrefStream,
		Compress:         true,
		CompressionLevel: -1, // flate.DefaultCompression
	}
}

func (o *WriterOptions) Validate() error {
	logDebug("validating WriterOptions")
	return validate.Struct(o)
}

// SignOptions configures IncrementalSigner.Sign.
type SignOptions struct {
	Digest            string        `validate:"oneof=sha256 sha384 sha512"`
	ReservationBytes  int           `validate:"min=1024,max=1048576"`
	FieldName         string        `validate:"required"`
	Reason            string
	Location          string
	Timeout           time.Duration `validate:"required"`
}

// signatureReservationSize is the default /Contents placeholder size in
// bytes, ample for an RSA-4096 chain with room to spare; it sets the
// /ByteRange gap (2*signatureReservationSize hex characters plus the
// bracketing "<" ">", 2*signatureReservationSize+2 bytes in all) for every
// default-configured signer.
const signatureReservationSize = 32768

// NewDefaultSignOptions mirrors pdf-simple-sign's defaults: SHA-256 digest,
// a signatureReservationSize-byte signature reservation, and a single
// signature field named "Signature1".
func NewDefaultSignOptions() *SignOptions {
	return &SignOptions{
		Digest:           "sha256",
		ReservationBytes: signatureReservationSize,
		FieldName:        "Signature1",
		Timeout:          30 * time.Second,
	}
}

func (o *SignOptions) Validate() error {
	logDebug("validating SignOptions")
	return validate.Struct(o)
}

// OptimizeLevel selects how aggressively Optimizer rewrites a document.
type OptimizeLevel int

const (
	// OptimizeL1 rebuilds the document from its page tree and /Info,
	// Flate-compressing every copied stream at the default compression
	// level; it does not use the maximum level and keeps the recompressed
	// stream whether or not it is shorter. Objects not reached from a page
	// or /Info are dropped.
	OptimizeL1 OptimizeLevel = 1
	// OptimizeL2 additionally deduplicates identical streams (e.g. repeated
	// embedded images) by object identity of their decoded content.
	OptimizeL2 OptimizeLevel = 2
	// OptimizeL3 is accepted as the highest level. Optimize packs object
	// streams and writes a fresh xref stream at every level, so L3 output
	// is the same as L2's; non-stream objects are not deduplicated.
	OptimizeL3 OptimizeLevel = 3
)

// OptimizeOptions configures Optimizer.Optimize.
type OptimizeOptions struct {
	Level OptimizeLevel `validate:"min=1,max=3"`
}

func NewDefaultOptimizeOptions() *OptimizeOptions {
	return &OptimizeOptions{Level: OptimizeL2}
}

func (o *OptimizeOptions) Validate() error {
	logDebug("validating OptimizeOptions")
	return validate.Struct(o)
}
