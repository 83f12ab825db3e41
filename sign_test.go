// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedCert(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "pdfcore test signer"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).Add(100 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return key, cert
}

func TestIncrementalSignerSignAndVerify(t *testing.T) {
	src := onePagePDF()
	r := openDoc(t, src)
	key, cert := selfSignedCert(t)

	var out bytes.Buffer
	err := NewIncrementalSigner(nil).Sign(r, key, []*x509.Certificate{cert}, &out)
	require.NoError(t, err)

	signed := out.Bytes()
	assert.True(t, bytes.HasPrefix(signed, src[:20]))

	sr := openDoc(t, signed)
	report, err := Verify(sr)
	require.NoError(t, err)
	require.Len(t, report.Signatures, 1)
	assert.True(t, report.Signatures[0].Valid, "signature should verify: %v", report.Signatures[0].Err)
	assert.True(t, report.AllValid())
	assert.Equal(t, "Signature1", report.Signatures[0].FieldName)
	assert.Equal(t, "pdfcore test signer", report.Signatures[0].SignerCN)

	// S6: for a default-configured signer, b - a must equal 2*ReservationBytes+2
	// (the hex-digit width of the /Contents placeholder plus its brackets).
	byteRangeRe := regexp.MustCompile(`/ByteRange \[(\d+) (\d+) (\d+) (\d+)\]`)
	m := byteRangeRe.FindSubmatch(signed)
	require.NotNil(t, m, "signed document must contain a resolved /ByteRange array")
	a, err := strconv.ParseInt(string(m[2]), 10, 64)
	require.NoError(t, err)
	b, err := strconv.ParseInt(string(m[3]), 10, 64)
	require.NoError(t, err)
	assert.Equal(t, int64(2*signatureReservationSize+2), b-a)
}

func TestIncrementalSignerRejectsBadKeyUsage(t *testing.T) {
	src := onePagePDF()
	r := openDoc(t, src)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "no key usage"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	var out bytes.Buffer
	err = NewIncrementalSigner(nil).Sign(r, key, []*x509.Certificate{cert}, &out)
	assert.Error(t, err)
}

func TestVerifyNoSignatures(t *testing.T) {
	r := openOnePagePDF(t)
	report, err := Verify(r)
	require.NoError(t, err)
	assert.Empty(t, report.Signatures)
	assert.False(t, report.AllValid())
}
