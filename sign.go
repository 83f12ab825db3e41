// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.mozilla.org/pkcs7"
	"golang.org/x/crypto/pkcs12"
)

// PKCS12Parse extracts a private key and its certificate chain from a
// PKCS#12 (.p12/.pfx) blob, verifying the key matches the leaf
// certificate's public key. Intermediate certificates are not supported by
// pkcs12.Decode's single-bag assumption, so this parses the PEM blocks
// pkcs12.ToPEM returns directly instead.
func PKCS12Parse(p12 []byte, password string) (crypto.PrivateKey, []*x509.Certificate, error) {
	blocks, err := pkcs12.ToPEM(p12, password)
	if err != nil {
		return nil, nil, &SignError{Op: "parse pkcs12", Err: err}
	}

	var keyBlocks, certBlocks [][]byte
	for _, b := range blocks {
		switch b.Type {
		case "PRIVATE KEY":
			keyBlocks = append(keyBlocks, b.Bytes)
		case "CERTIFICATE":
			certBlocks = append(certBlocks, b.Bytes)
		}
	}
	switch {
	case len(keyBlocks) == 0:
		return nil, nil, &SignError{Op: "parse pkcs12", Err: errors.New("missing private key")}
	case len(keyBlocks) > 1:
		return nil, nil, &SignError{Op: "parse pkcs12", Err: errors.New("more than one private key")}
	case len(certBlocks) == 0:
		return nil, nil, &SignError{Op: "parse pkcs12", Err: errors.New("missing certificate")}
	}

	var key crypto.PrivateKey
	if key, err = x509.ParsePKCS1PrivateKey(keyBlocks[0]); err != nil {
		if key, err = x509.ParseECPrivateKey(keyBlocks[0]); err != nil {
			return nil, nil, &SignError{Op: "parse pkcs12", Err: errors.New("failed to parse private key")}
		}
	}

	certs, err := x509.ParseCertificates(certBlocks[0])
	if err != nil {
		return nil, nil, &SignError{Op: "parse pkcs12", Err: err}
	}
	if len(certs) != 1 {
		return nil, nil, &SignError{Op: "parse pkcs12", Err: errors.New("expected exactly one certificate in the first bag")}
	}
	for _, b := range certBlocks[1:] {
		more, err := x509.ParseCertificates(b)
		if err != nil {
			return nil, nil, &SignError{Op: "parse pkcs12", Err: err}
		}
		certs = append(certs, more...)
	}

	switch pub := certs[0].PublicKey.(type) {
	case *rsa.PublicKey:
		priv, ok := key.(*rsa.PrivateKey)
		if !ok || pub.N.Cmp(priv.N) != 0 {
			return nil, nil, &SignError{Op: "parse pkcs12", Err: errors.New("private key does not match certificate")}
		}
	case *ecdsa.PublicKey:
		priv, ok := key.(*ecdsa.PrivateKey)
		if !ok || pub.X.Cmp(priv.X) != 0 || pub.Y.Cmp(priv.Y) != 0 {
			return nil, nil, &SignError{Op: "parse pkcs12", Err: errors.New("private key does not match certificate")}
		}
	default:
		return nil, nil, &SignError{Op: "parse pkcs12", Err: errors.New("unsupported public key algorithm")}
	}
	return key, certs, nil
}

// IncrementalSigner appends a digital signature to a PDF as an incremental
// update (PDF 32000-1 §7.5.6, §12.8): the original bytes are left untouched
// and a new revision adds a signature dictionary, a hidden signature
// field, and the /AcroForm entries that make a viewer recognize it.
type IncrementalSigner struct {
	opts *SignOptions
}

func NewIncrementalSigner(opts *SignOptions) *IncrementalSigner {
	if opts == nil {
		opts = NewDefaultSignOptions()
	}
	return &IncrementalSigner{opts: opts}
}

// Sign writes r's bytes followed by an incremental update containing a
// detached CMS (PKCS#7) signature over the whole file, to w. It supports
// signing a document that already carries earlier signatures: each call
// appends one more revision, and a viewer validates every /ByteRange
// independently, which is how multi-signing works without extra bookkeeping
// here.
func (s *IncrementalSigner) Sign(r *Reader, key crypto.PrivateKey, certs []*x509.Certificate, w io.Writer) error {
	if err := s.opts.Validate(); err != nil {
		return &SignError{Op: "sign", Err: err}
	}
	if len(certs) == 0 {
		return &SignError{Op: "sign", Err: errors.New("no certificates given")}
	}
	if err := checkSigningCert(certs[0]); err != nil {
		return err
	}

	b, err := NewIncrementalBuilder(r, NewDefaultWriterOptions())
	if err != nil {
		return err
	}
	b.opts.XrefFormat = XrefTable // keeps the ByteRange maths a plain byte count, no ObjStm indirection

	reservation := s.opts.ReservationBytes
	byteRangePlaceholder := strings.Repeat(" ", 40)
	contentsPlaceholder := strings.Repeat("0", reservation*2)

	sigDictPtr := objptr{id: b.nextID}
	b.nextID++
	sigDictLiteral := fmt.Sprintf(
		"<< /Type /Sig /Filter /Adobe.PPKLite /SubFilter /adbe.pkcs7.detached\n"+
			"   /M (D:%s) /ByteRange [%s]\n"+
			"   /Contents <%s> >>",
		time.Now().UTC().Format("20060102150405")+"Z", byteRangePlaceholder, contentsPlaceholder)
	b.SetObject(sigDictPtr, literalObject(sigDictLiteral))

	sigFieldPtr := b.AddObject(dict{
		name("FT"):      name("Sig"),
		name("V"):       sigDictPtr,
		name("Subtype"): name("Widget"),
		name("F"):       int64(2), // Hidden
		name("T"):       s.opts.FieldName,
		name("Rect"):    array{int64(0), int64(0), int64(0), int64(0)},
	})

	page := r.Page(1)
	if page.V.IsNull() {
		return &SignError{Op: "sign", Err: errors.New("document has no pages")}
	}
	pageDict := cloneDict(page.V.data.(dict))
	annots := page.Annots()
	existing, _ := annots.data.(array)
	newAnnots := make(array, 0, len(existing)+1)
	newAnnots = append(newAnnots, existing...)
	newAnnots = append(newAnnots, sigFieldPtr)
	pageDict[name("Annots")] = newAnnots
	b.SetObject(page.V.ptr, pageDict)

	rootVal := r.Trailer().Key("Root")
	if rootVal.IsNull() {
		return &SignError{Op: "sign", Err: errors.New("trailer has no Root")}
	}
	rootDict := cloneDict(rootVal.data.(dict))
	acroForm := dict{}
	if af := rootVal.Key("AcroForm"); af.Kind() == Dict {
		acroForm = cloneDict(af.data.(dict))
	}
	fields, _ := rootVal.Key("AcroForm").Key("Fields").data.(array)
	acroForm[name("Fields")] = append(append(array{}, fields...), sigFieldPtr)
	acroForm[name("SigFlags")] = int64(3) // SignaturesExist | AppendOnly
	rootDict[name("AcroForm")] = acroForm
	b.SetObject(rootVal.ptr, rootDict)

	var body bytes.Buffer
	if err := b.Write(&body); err != nil {
		return err
	}
	bodyBytes := body.Bytes()

	sigStr := string(bodyBytes)
	byteRangeIdx := strings.Index(sigStr, "/ByteRange [")
	contentsIdx := strings.Index(sigStr, "/Contents <")
	if byteRangeIdx < 0 || contentsIdx < 0 {
		return &SignError{Op: "sign", Err: errors.New("failed to locate signature placeholders")}
	}
	signOff := int64(r.end) + int64(contentsIdx) + int64(len("/Contents <")) - 1
	signLen := reservation*2 + 2

	tailOff := signOff + int64(signLen)
	tailLen := int64(r.end) + int64(len(bodyBytes)) - tailOff
	// The sig dictionary template already supplies the enclosing "[" "]";
	// ranges fills only the placeholder space between them.
	ranges := fmt.Sprintf("0 %d %d %d", signOff, tailOff, tailLen)
	if len(ranges) > len(byteRangePlaceholder) {
		return &SignError{Op: "sign", Err: errors.New("not enough space reserved for /ByteRange")}
	}
	copy(bodyBytes[byteRangeIdx+len("/ByteRange ["):], []byte(ranges))
	for i := byteRangeIdx + len("/ByteRange [") + len(ranges); i < byteRangeIdx+len("/ByteRange [")+len(byteRangePlaceholder); i++ {
		bodyBytes[i] = ' '
	}

	full := make([]byte, 0, int(r.end)+len(bodyBytes))
	full = append(full, mustReadAll(r)...)
	full = append(full, bodyBytes...)

	if err := fillInSignature(full, int(signOff), signLen, key, certs, s.opts); err != nil {
		return err
	}

	_, err = w.Write(full)
	return err
}

func checkSigningCert(cert *x509.Certificate) error {
	if cert.KeyUsage&(x509.KeyUsageDigitalSignature|x509.KeyUsageContentCommitment) == 0 {
		return &SignError{Op: "sign", Err: errors.New("certificate key usage must include digital signature or non-repudiation")}
	}
	if len(cert.ExtKeyUsage) > 0 {
		ok := false
		for _, u := range cert.ExtKeyUsage {
			if u == x509.ExtKeyUsageAny || u == x509.ExtKeyUsageEmailProtection {
				ok = true
			}
		}
		if !ok {
			return &SignError{Op: "sign", Err: errors.New("certificate extended key usage must include S/MIME")}
		}
	}
	return nil
}

// digestOID returns the CMS digest algorithm OID for one of the
// SignOptions.Digest values validated by config.go's oneof tag.
func digestOID(name string) (asn1.ObjectIdentifier, error) {
	switch name {
	case "sha256":
		return pkcs7.OIDDigestAlgorithmSHA256, nil
	case "sha384":
		return pkcs7.OIDDigestAlgorithmSHA384, nil
	case "sha512":
		return pkcs7.OIDDigestAlgorithmSHA512, nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", name)
	}
}

// fillInSignature computes a detached CMS SignedData digest over document
// with the reserved [signOff, signOff+signLen) window excluded, and writes
// the hex-encoded signature into that window in place. The digest algorithm
// is taken from opts.Digest so sha384/sha512 signers actually use those
// algorithms instead of silently falling back to sha256.
func fillInSignature(document []byte, signOff, signLen int, key crypto.PrivateKey, certs []*x509.Certificate, opts *SignOptions) error {
	if signOff < 0 || signLen < 2 || signOff+signLen > len(document) {
		return &SignError{Op: "sign", Err: errors.New("invalid signing window")}
	}
	data := make([]byte, 0, len(document)-signLen)
	data = append(data, document[:signOff]...)
	data = append(data, document[signOff+signLen:]...)

	oid, err := digestOID(opts.Digest)
	if err != nil {
		return &SignError{Op: "sign", Err: err}
	}

	signedData, err := pkcs7.NewSignedData(data)
	if err != nil {
		return &SignError{Op: "sign", Err: err}
	}
	signedData.SetDigestAlgorithm(oid)
	if err := signedData.AddSignerChain(certs[0], key, certs[1:], pkcs7.SignerInfoConfig{}); err != nil {
		return &SignError{Op: "sign", Err: err}
	}
	signedData.Detach()
	sig, err := signedData.Finish()
	if err != nil {
		return &SignError{Op: "sign", Err: err}
	}
	if len(sig)*2 > signLen-2 {
		return &SignError{Op: "sign", Err: fmt.Errorf("not enough space reserved for the signature (%d nibbles vs %d nibbles)", signLen-2, len(sig)*2)}
	}
	hex.Encode(document[signOff+1:], sig)
	return nil
}

func mustReadAll(r *Reader) []byte {
	data, err := readAllClose(io.NopCloser(io.NewSectionReader(r.f, 0, r.end)))
	if err != nil {
		return nil
	}
	return data
}
