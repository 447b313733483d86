package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"math/big"
	"testing"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

type testPKI struct {
	caKey   *ecdsa.PrivateKey
	ca      *x509.Certificate
	leafKey crypto.Signer
	leaf    *x509.Certificate
}

func newTestPKI(t *testing.T, leafKey crypto.Signer) *testPKI {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate CA key: %v", err)
	}
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test CA", Organization: []string{"Test Org"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("Failed to create CA certificate: %v", err)
	}
	ca, _ := x509.ParseCertificate(caDER)

	if leafKey == nil {
		leafKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			t.Fatalf("Failed to generate leaf key: %v", err)
		}
	}
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Jane Signer", Organization: []string{"Test Org"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, ca, leafKey.Public(), caKey)
	if err != nil {
		t.Fatalf("Failed to create leaf certificate: %v", err)
	}
	leaf, _ := x509.ParseCertificate(leafDER)

	return &testPKI{caKey: caKey, ca: ca, leafKey: leafKey, leaf: leaf}
}

func (p *testPKI) pfx(t *testing.T, password string) []byte {
	t.Helper()
	data, err := pkcs12.Modern.Encode(p.leafKey, p.leaf, []*x509.Certificate{p.ca}, password)
	if err != nil {
		t.Fatalf("Failed to encode PKCS#12: %v", err)
	}
	return data
}

func (p *testPKI) localKeyID() string {
	sum := sha1.Sum(p.leaf.Raw)
	return hex.EncodeToString(sum[:])
}

func pemCert(cert *x509.Certificate, headers map[string]string) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Headers: headers, Bytes: cert.Raw})
}

func pemKeyBlock(t *testing.T, key crypto.Signer, headers map[string]string) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("Failed to marshal key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Headers: headers, Bytes: der})
}

func TestIsPEM(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected bool
	}{
		{"PEM data", []byte("-----BEGIN CERTIFICATE-----\ndata\n-----END CERTIFICATE-----"), true},
		{"DER data", []byte{0x30, 0x82, 0x01, 0x22}, false},
		{"Empty", []byte{}, false},
		{"Short data", []byte("----"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPEM(tt.data); got != tt.expected {
				t.Errorf("isPEM() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLoadCertsFromPemDerData(t *testing.T) {
	pki := newTestPKI(t, nil)

	certs, err := LoadCertsFromPemDerData(append(pemCert(pki.leaf, nil), pemCert(pki.ca, nil)...))
	if err != nil {
		t.Fatalf("LoadCertsFromPemDerData(PEM) failed: %v", err)
	}
	if len(certs) != 2 || certs[0].Subject.CommonName != "Jane Signer" {
		t.Errorf("PEM certs = %d, first CN %q", len(certs), certs[0].Subject.CommonName)
	}

	certs, err = LoadCertsFromPemDerData(pki.leaf.Raw)
	if err != nil {
		t.Fatalf("LoadCertsFromPemDerData(DER) failed: %v", err)
	}
	if len(certs) != 1 {
		t.Errorf("DER certs = %d, want 1", len(certs))
	}

	if _, err := LoadCertsFromPemDerData([]byte("-----BEGIN NOTHING-----\n-----END NOTHING-----\n")); !errors.Is(err, ErrNoCertFound) {
		t.Errorf("error = %v, want ErrNoCertFound", err)
	}
}

func TestLoadPrivateKeyFromPemDerData(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	ecKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	ecDER, _ := x509.MarshalECPrivateKey(ecKey)
	pkcs8, _ := x509.MarshalPKCS8PrivateKey(ecKey)

	tests := []struct {
		name string
		data []byte
		algo string
	}{
		{"PKCS#1 PEM", pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rsaKey)}), "RSA"},
		{"SEC 1 PEM", pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: ecDER}), "ECDSA"},
		{"PKCS#8 PEM", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}), "ECDSA"},
		{"PKCS#1 in PRIVATE KEY block", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rsaKey)}), "RSA"},
		{"PKCS#8 DER", pkcs8, "ECDSA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := LoadPrivateKeyFromPemDerData(tt.data, nil)
			if err != nil {
				t.Fatalf("LoadPrivateKeyFromPemDerData failed: %v", err)
			}
			if got := GetKeyInfo(key).Algorithm; got != tt.algo {
				t.Errorf("Algorithm = %s, want %s", got, tt.algo)
			}
		})
	}

	if _, err := LoadPrivateKeyFromPemDerData([]byte("-----BEGIN garbage"), nil); !errors.Is(err, ErrInvalidPEM) {
		t.Errorf("error = %v, want ErrInvalidPEM", err)
	}
}

func TestGetKeyInfo(t *testing.T) {
	_, edKey, _ := ed25519.GenerateKey(rand.Reader)
	ecKey, _ := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)

	if info := GetKeyInfo(edKey); info.Algorithm != "Ed25519" {
		t.Errorf("Ed25519 info = %+v", info)
	}
	if info := GetKeyInfo(ecKey); info.Algorithm != "ECDSA" || info.Curve != "P-384" {
		t.Errorf("ECDSA info = %+v", info)
	}
}

func TestIsPFX(t *testing.T) {
	pki := newTestPKI(t, nil)

	if !isPFX(pki.pfx(t, "secret")) {
		t.Error("isPFX rejected a PKCS#12 store")
	}
	if isPFX(pki.leaf.Raw) {
		t.Error("isPFX accepted a certificate")
	}
	if isPFX(pemCert(pki.leaf, nil)) {
		t.Error("isPFX accepted PEM data")
	}
}

func TestCommonNameFromDN(t *testing.T) {
	tests := []struct {
		dn     string
		want   string
		wantOK bool
	}{
		{"CN=Jane Signer,O=Test Org", "Jane Signer", true},
		{"O=Test Org, cn=lower case", "lower case", true},
		{"O=Test Org,C=NL", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := commonNameFromDN(tt.dn)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("commonNameFromDN(%q) = %q, %v; want %q, %v", tt.dn, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestZeroWipesKeys(t *testing.T) {
	rsaKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	ecKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	_, edKey, _ := ed25519.GenerateKey(rand.Reader)

	rsaMaterial := &KeyMaterial{PrivateKey: rsaKey}
	rsaMaterial.Zero()
	if rsaKey.D.Sign() != 0 || rsaKey.Primes[0].Sign() != 0 {
		t.Error("RSA private exponent survived Zero")
	}
	if rsaMaterial.PrivateKey != nil {
		t.Error("Zero kept the key reference")
	}

	(&KeyMaterial{PrivateKey: ecKey}).Zero()
	if ecKey.D.Sign() != 0 {
		t.Error("ECDSA scalar survived Zero")
	}

	(&KeyMaterial{PrivateKey: edKey}).Zero()
	for _, b := range edKey {
		if b != 0 {
			t.Fatal("Ed25519 seed survived Zero")
		}
	}

	var nilMaterial *KeyMaterial
	nilMaterial.Zero()
	rsaMaterial.Zero()
}
