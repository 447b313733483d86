package cli

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/georgepadayatti/pdfsign/internal/testpdf"
	"github.com/georgepadayatti/pdfsign/pdf/reader"
)

type workspace struct {
	root   string
	caPEM  string
	config string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()

	root := t.TempDir()
	for _, dir := range []string{"docs", "keys", "out"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "contract.pdf"),
		testpdf.Build(testpdf.Options{Pages: 3}), 0o644))

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(7),
		Subject:               pkix.Name{CommonName: "CLI CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	ca, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafDER, err := x509.CreateCertificate(rand.Reader, &x509.Certificate{
		SerialNumber: big.NewInt(8),
		Subject:      pkix.Name{CommonName: "Jane Signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}, ca, &key.PublicKey, caKey)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(leafDER)
	require.NoError(t, err)

	pfx, err := pkcs12.Modern.Encode(key, leaf, []*x509.Certificate{ca}, "secret")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "keys", "signer.p12"), pfx, 0o600))

	caPEM := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(caPEM, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER}), 0o644))

	config := filepath.Join(t.TempDir(), "pdfsign.yaml")
	require.NoError(t, os.WriteFile(config, []byte("storage:\n  backend: fs\n  root: "+root+"\nlogging:\n  level: error\n"), 0o644))

	return &workspace{root: root, caPEM: caPEM, config: config}
}

func (w *workspace) path(handle string) string {
	return filepath.Join(w.root, filepath.FromSlash(handle))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := Execute(context.Background(), append([]string{"--no-color"}, args...), &out, &errOut)
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pdfsign version dev")

	_, err = run(t, "version", "extra")
	assert.Error(t, err)
}

func TestSignAndVerify(t *testing.T) {
	w := newWorkspace(t)

	out, err := run(t, "--config", w.config, "sign",
		"--source", "docs/contract.pdf",
		"--private-key", "keys/signer.p12",
		"--store-password", "secret",
		"--visibility", "visible",
		"--position", "topright",
		"--page", "-1",
		"--reason", "Approved",
		"--destination-folder", "out",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Destination: out/contract.pdf (copy)")
	assert.Contains(t, out, "Widget: page 3 at [400 700 600 800]")

	out, err = run(t, "--config", w.config, "verify", "--json", w.path("out/contract.pdf"))
	require.NoError(t, err)
	var untrusted VerifyOutput
	require.NoError(t, json.Unmarshal([]byte(out), &untrusted))
	require.Len(t, untrusted.Signatures, 1)
	sig := untrusted.Signatures[0]
	assert.Equal(t, "WARNING", sig.Status)
	assert.True(t, sig.IntegrityValid)
	assert.Equal(t, "ENTIRE_FILE", sig.Coverage)
	assert.Equal(t, "Approved", sig.Reason)
	assert.Equal(t, 3, untrusted.Document.Pages)

	out, err = run(t, "--config", w.config, "verify", "--trust-roots", w.caPEM, w.path("out/contract.pdf"))
	require.NoError(t, err)
	assert.Contains(t, out, "Status: [OK] VALID")
	assert.Contains(t, out, "Signer: Jane Signer")
}

func TestSignPromptsForPassword(t *testing.T) {
	w := newWorkspace(t)

	prompted := 0
	orig := readPassword
	readPassword = func(string) (string, error) {
		prompted++
		return "secret", nil
	}
	t.Cleanup(func() { readPassword = orig })

	_, err := run(t, "--config", w.config, "sign",
		"--source", "docs/contract.pdf",
		"--private-key", "keys/signer.p12",
		"--inplace",
	)
	require.NoError(t, err)
	assert.Equal(t, 1, prompted)

	data, err := os.ReadFile(w.path("docs/contract.pdf"))
	require.NoError(t, err)
	doc, err := reader.Open(data)
	require.NoError(t, err)
	assert.True(t, doc.IsSigned())
}

func TestSignReportsFailureKind(t *testing.T) {
	w := newWorkspace(t)

	_, err := run(t, "--config", w.config, "sign",
		"--source", "docs/contract.pdf",
		"--private-key", "keys/signer.p12",
		"--store-password", "wrong",
		"--destination-folder", "out",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KeyStoreError")

	entries, err := os.ReadDir(w.path("out"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSignRequiresSource(t *testing.T) {
	w := newWorkspace(t)
	_, err := run(t, "--config", w.config, "sign", "--private-key", "keys/signer.p12")
	assert.Error(t, err)
}

func TestVerifyTamperedDocument(t *testing.T) {
	w := newWorkspace(t)
	_, err := run(t, "--config", w.config, "sign",
		"--source", "docs/contract.pdf",
		"--private-key", "keys/signer.p12",
		"--store-password", "secret",
		"--inplace",
	)
	require.NoError(t, err)

	data, err := os.ReadFile(w.path("docs/contract.pdf"))
	require.NoError(t, err)
	data[7] ^= 1
	require.NoError(t, os.WriteFile(w.path("docs/contract.pdf"), data, 0o644))

	out, err := run(t, "--config", w.config, "verify", w.path("docs/contract.pdf"))
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, out, "[FAIL] INVALID")
}

func TestVerifyUnsignedDocument(t *testing.T) {
	w := newWorkspace(t)
	_, err := run(t, "--config", w.config, "verify", w.path("docs/contract.pdf"))
	assert.ErrorContains(t, err, "no signatures found")
}

func TestPagesCommand(t *testing.T) {
	w := newWorkspace(t)
	out, err := run(t, "--config", w.config, "pages", w.path("docs/contract.pdf"))
	require.NoError(t, err)
	assert.Contains(t, out, "Version: 1.4")
	assert.Contains(t, out, "Pages: 3")
	assert.Contains(t, out, "Signed: false")
	assert.Contains(t, out, "  3: 600 x 800")
}

func TestKeystoreCommand(t *testing.T) {
	w := newWorkspace(t)
	out, err := run(t, "--config", w.config, "keystore", "--store-password", "secret", w.path("keys/signer.p12"))
	require.NoError(t, err)
	assert.Contains(t, out, "Type: pkcs12")
	assert.Contains(t, out, "Common name: Jane Signer")
	assert.Contains(t, out, "(key)")

	_, err = run(t, "--config", w.config, "keystore", "--store-password", "wrong", w.path("keys/signer.p12"))
	assert.Error(t, err)
}

func TestMetricsTextfile(t *testing.T) {
	w := newWorkspace(t)
	textfile := filepath.Join(t.TempDir(), "pdfsign.prom")
	t.Setenv("PDFSIGN_METRICS_TEXTFILE", textfile)

	_, err := run(t, "--config", w.config, "sign",
		"--source", "docs/contract.pdf",
		"--private-key", "keys/signer.p12",
		"--store-password", "secret",
		"--destination-folder", "out",
	)
	require.NoError(t, err)

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `pdfsign_operations_total{kind="",outcome="success"} 1`)
}

func TestMetadataRecorded(t *testing.T) {
	w := newWorkspace(t)
	t.Setenv("PDFSIGN_METADATA_ENABLED", "true")
	t.Setenv("PDFSIGN_METADATA_PATH", filepath.Join(t.TempDir(), "meta.db"))

	_, err := run(t, "--config", w.config, "sign",
		"--source", "docs/contract.pdf",
		"--private-key", "keys/signer.p12",
		"--store-password", "secret",
		"--destination-folder", "out",
	)
	require.NoError(t, err)
	_, err = os.Stat(os.Getenv("PDFSIGN_METADATA_PATH"))
	assert.NoError(t, err)
}

func TestTraceFlag(t *testing.T) {
	w := newWorkspace(t)
	var out, errOut bytes.Buffer
	err := Execute(context.Background(), []string{"--no-color", "--config", w.config, "--trace", "sign",
		"--source", "docs/contract.pdf",
		"--private-key", "keys/signer.p12",
		"--store-password", "secret",
		"--destination-folder", "out",
	}, &out, &errOut)
	require.NoError(t, err)
	assert.Contains(t, errOut.String(), "pdfsign.Sign")
}
