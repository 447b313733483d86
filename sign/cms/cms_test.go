package cms

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"math/big"
	"testing"
	"time"
)

// Helper to generate test certificate and key
func generateTestCertAndKey(t *testing.T, key crypto.Signer) *x509.Certificate {
	t.Helper()

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatalf("Failed to generate serial: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   "Test Signer",
			Organization: []string{"Test Org"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}

	return cert
}

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	return key
}

func ecKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	return key
}

func TestCMSBuilderSign(t *testing.T) {
	key := rsaKey(t)
	cert := generateTestCertAndKey(t, key)

	builder := NewCMSBuilder(cert, key, SHA256WithRSA)
	data := []byte("Test data to sign")

	signature, err := builder.Sign(data)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	signedData, err := ParseCMSSignature(signature)
	if err != nil {
		t.Fatalf("ParseCMSSignature failed: %v", err)
	}

	if signedData.Version != 1 {
		t.Errorf("Expected version 1, got %d", signedData.Version)
	}
	if len(signedData.SignerInfos) != 1 {
		t.Errorf("Expected 1 signer info, got %d", len(signedData.SignerInfos))
	}
	if len(signedData.EncapContentInfo.EContent.Bytes) != 0 {
		t.Error("detached signature carries encapsulated content")
	}
	if !signedData.EncapContentInfo.EContentType.Equal(OIDData) {
		t.Errorf("EContentType = %v, want id-data", signedData.EncapContentInfo.EContentType)
	}

	var types []string
	for _, attr := range signedData.SignerInfos[0].SignedAttrs {
		types = append(types, attr.Type.String())
	}
	for _, want := range []asn1.ObjectIdentifier{OIDContentType, OIDMessageDigest, OIDSigningTime, OIDSigningCertificateV2} {
		found := false
		for _, got := range types {
			if got == want.String() {
				found = true
			}
		}
		if !found {
			t.Errorf("signed attribute %v missing", want)
		}
	}
}

func TestCMSBuilderDeduplicatesChain(t *testing.T) {
	key := rsaKey(t)
	cert := generateTestCertAndKey(t, key)
	other := generateTestCertAndKey(t, ecKey(t))

	builder := NewCMSBuilder(cert, key, SHA256WithRSA)
	builder.SetCertificateChain([]*x509.Certificate{cert, other, other})

	signature, err := builder.Sign([]byte("Test data"))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	signedData, _ := ParseCMSSignature(signature)
	if len(signedData.Certificates) != 2 {
		t.Errorf("Expected 2 certificates, got %d", len(signedData.Certificates))
	}
}

func TestCMSBuilderSetSigningTime(t *testing.T) {
	key := rsaKey(t)
	cert := generateTestCertAndKey(t, key)

	builder := NewCMSBuilder(cert, key, SHA256WithRSA)
	testTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	builder.SetSigningTime(testTime)

	signature, err := builder.Sign([]byte("Test data"))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	signingTime, err := GetSigningTime(signature)
	if err != nil {
		t.Fatalf("GetSigningTime failed: %v", err)
	}
	if !signingTime.Equal(testTime) {
		t.Errorf("Expected signing time %v, got %v", testTime, signingTime)
	}
}

func TestVerifyCMSSignature(t *testing.T) {
	tests := []struct {
		name string
		key  crypto.Signer
		alg  SignatureAlgorithm
	}{
		{"RSA SHA-256", rsaKey(t), SHA256WithRSA},
		{"RSA SHA-512", rsaKey(t), SHA512WithRSA},
		{"ECDSA SHA-256", ecKey(t), SHA256WithECDSA},
		{"ECDSA SHA-384", ecKey(t), SHA384WithECDSA},
	}

	data := []byte("Test data to sign and verify")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := generateTestCertAndKey(t, tt.key)
			signature, err := NewCMSBuilder(cert, tt.key, tt.alg).Sign(data)
			if err != nil {
				t.Fatalf("Sign failed: %v", err)
			}

			if err := VerifyCMSSignature(signature, data); err != nil {
				t.Errorf("VerifyCMSSignature failed: %v", err)
			}
			if err := VerifyCMSSignature(signature, []byte("tampered")); !errors.Is(err, ErrDigestMismatch) {
				t.Errorf("tampered content error = %v, want ErrDigestMismatch", err)
			}
		})
	}
}

func TestSignDigest(t *testing.T) {
	key := ecKey(t)
	cert := generateTestCertAndKey(t, key)
	data := []byte("precomputed")
	digest := sha256.Sum256(data)

	builder := NewCMSBuilder(cert, key, SHA256WithECDSA)
	signature, err := builder.SignDigest(digest[:])
	if err != nil {
		t.Fatalf("SignDigest failed: %v", err)
	}
	if err := VerifyDigest(signature, digest[:]); err != nil {
		t.Errorf("VerifyDigest failed: %v", err)
	}
	if err := VerifyCMSSignature(signature, data); err != nil {
		t.Errorf("VerifyCMSSignature failed: %v", err)
	}

	if _, err := builder.SignDigest(digest[:10]); err == nil {
		t.Error("SignDigest accepted a short digest")
	}
}

func TestVerifyRejectsForeignSigner(t *testing.T) {
	key := rsaKey(t)
	cert := generateTestCertAndKey(t, key)
	data := []byte("data")

	// Signed with a key that does not belong to the certificate.
	signature, err := NewCMSBuilder(cert, rsaKey(t), SHA256WithRSA).Sign(data)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if err := VerifyCMSSignature(signature, data); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("error = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	if err := VerifyCMSSignature([]byte{0x30, 0x00}, nil); !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
	if _, err := ParseCMSSignature([]byte("junk")); !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestGetSignerCertificate(t *testing.T) {
	key := rsaKey(t)
	cert := generateTestCertAndKey(t, key)
	other := generateTestCertAndKey(t, ecKey(t))

	builder := NewCMSBuilder(cert, key, SHA256WithRSA)
	builder.SetCertificateChain([]*x509.Certificate{other})
	signature, _ := builder.Sign([]byte("Test data"))

	signer, err := GetSignerCertificate(signature)
	if err != nil {
		t.Fatalf("GetSignerCertificate failed: %v", err)
	}
	if !signer.Equal(cert) {
		t.Error("wrong signer certificate")
	}

	certs, err := GetSignerCertificates(signature)
	if err != nil || len(certs) != 2 {
		t.Fatalf("GetSignerCertificates = %d, %v", len(certs), err)
	}
}

func TestAlgorithmForKey(t *testing.T) {
	_, edKey, _ := ed25519.GenerateKey(rand.Reader)

	tests := []struct {
		name    string
		pub     crypto.PublicKey
		hash    crypto.Hash
		want    asn1.ObjectIdentifier
		wantErr bool
	}{
		{"RSA", rsaKey(t).Public(), crypto.SHA256, OIDSHA256WithRSA, false},
		{"ECDSA", ecKey(t).Public(), crypto.SHA384, OIDECDSAWithSHA384, false},
		{"SHA-1", ecKey(t).Public(), crypto.SHA1, nil, true},
		{"Ed25519", edKey.Public(), crypto.SHA256, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alg, err := AlgorithmForKey(tt.pub, tt.hash)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedAlgorithm) {
					t.Errorf("error = %v, want ErrUnsupportedAlgorithm", err)
				}
				return
			}
			if err != nil || !alg.SignatureAlgorithm.Equal(tt.want) {
				t.Errorf("AlgorithmForKey = %v, %v", alg.SignatureAlgorithm, err)
			}
		})
	}
}

func TestOIDs(t *testing.T) {
	tests := []struct {
		oid      asn1.ObjectIdentifier
		expected string
	}{
		{OIDData, "1.2.840.113549.1.7.1"},
		{OIDSignedData, "1.2.840.113549.1.7.2"},
		{OIDSHA256, "2.16.840.1.101.3.4.2.1"},
		{OIDSHA384, "2.16.840.1.101.3.4.2.2"},
		{OIDSHA512, "2.16.840.1.101.3.4.2.3"},
	}

	for _, tt := range tests {
		if tt.oid.String() != tt.expected {
			t.Errorf("Expected OID %s, got %s", tt.expected, tt.oid.String())
		}
	}
}
