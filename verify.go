// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io"

	"go.mozilla.org/pkcs7"
)

// SignatureInfo describes one signature field found in a document.
type SignatureInfo struct {
	FieldName string
	SignerCN  string
	Cert      *x509.Certificate
	Valid     bool
	Err       error
}

// VerificationReport is the result of verifying every signature field in a
// document.
type VerificationReport struct {
	Signatures []SignatureInfo
}

// AllValid reports whether every signature in the report validated. A
// report with no signatures is not valid.
func (v VerificationReport) AllValid() bool {
	for _, s := range v.Signatures {
		if !s.Valid {
			return false
		}
	}
	return len(v.Signatures) > 0
}

// Verify checks every /Sig field reachable from r's /AcroForm against the
// bytes covered by its /ByteRange, the way a viewer does: it excludes the
// /Contents window from the document, re-derives the digest, and validates
// the embedded CMS SignedData against it.
func Verify(r *Reader) (*VerificationReport, error) {
	acroForm := r.Trailer().Key("Root").Key("AcroForm")
	if acroForm.IsNull() {
		return &VerificationReport{}, nil
	}
	fields := acroForm.Key("Fields")
	raw, err := mustReadAllErr(r)
	if err != nil {
		return nil, &SignError{Op: "verify", Err: err}
	}

	report := &VerificationReport{}
	for i := 0; i < fields.Len(); i++ {
		f := fields.Index(i)
		if f.Key("FT").Name() != "Sig" {
			continue
		}
		sig := f.Key("V")
		if sig.IsNull() {
			continue
		}
		info := SignatureInfo{FieldName: f.Key("T").Text()}
		if err := verifyOne(raw, sig, &info); err != nil {
			info.Err = err
		} else {
			info.Valid = true
		}
		report.Signatures = append(report.Signatures, info)
	}
	return report, nil
}

func verifyOne(raw []byte, sig Value, info *SignatureInfo) error {
	br := sig.Key("ByteRange")
	if br.Kind() != Array || br.Len() != 4 {
		return errors.New("missing or malformed ByteRange")
	}
	r0 := br.Index(0).Int64()
	l0 := br.Index(1).Int64()
	r1 := br.Index(2).Int64()
	l1 := br.Index(3).Int64()
	if r0 < 0 || l0 < 0 || r1 < 0 || l1 < 0 || r0+l0 > int64(len(raw)) || r1+l1 > int64(len(raw)) {
		return errors.New("ByteRange out of bounds")
	}

	covered := make([]byte, 0, l0+l1)
	covered = append(covered, raw[r0:r0+l0]...)
	covered = append(covered, raw[r1:r1+l1]...)

	der := []byte(sig.Key("Contents").RawString())

	p7, err := pkcs7.Parse(der)
	if err != nil {
		return fmt.Errorf("parsing CMS SignedData: %w", err)
	}
	p7.Content = covered
	if err := p7.Verify(); err != nil {
		return fmt.Errorf("CMS verification failed: %w", err)
	}
	if len(p7.Certificates) > 0 {
		info.Cert = p7.Certificates[0]
		info.SignerCN = p7.Certificates[0].Subject.CommonName
	}
	return nil
}

func mustReadAllErr(r *Reader) ([]byte, error) {
	return readAllClose(io.NopCloser(io.NewSectionReader(r.f, 0, r.end)))
}
