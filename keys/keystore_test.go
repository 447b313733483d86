package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"

	"software.sslmate.com/src/go-pkcs12"
)

func TestParseKeyType(t *testing.T) {
	tests := []struct {
		in      string
		want    KeyType
		wantErr bool
	}{
		{"", KeyTypeDefault, false},
		{"Default", KeyTypeDefault, false},
		{"PKCS12", KeyTypePKCS12, false},
		{"pfx", KeyTypePKCS12, false},
		{"jks", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKeyType(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseKeyType(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestLoadPKCS12(t *testing.T) {
	pki := newTestPKI(t, nil)
	data := pki.pfx(t, "secret")

	for _, keyType := range []KeyType{KeyTypePKCS12, KeyTypeDefault} {
		t.Run(string(keyType), func(t *testing.T) {
			ks, err := Load(data, keyType, "secret")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if ks.Type != KeyTypePKCS12 {
				t.Errorf("Type = %s, want pkcs12", ks.Type)
			}

			aliases := ks.Aliases()
			if len(aliases) != 1 || aliases[0] != pki.localKeyID() {
				t.Fatalf("Aliases = %v, want [%s]", aliases, pki.localKeyID())
			}

			key, err := ks.ExtractKey(aliases[0], "")
			if err != nil {
				t.Fatalf("ExtractKey failed: %v", err)
			}
			if !publicKeyMatches(pki.leaf, key) {
				t.Error("extracted key does not match the leaf certificate")
			}

			chain, err := ks.ExtractChain(aliases[0])
			if err != nil {
				t.Fatalf("ExtractChain failed: %v", err)
			}
			if len(chain) != 2 || !chain[0].Equal(pki.leaf) || !chain[1].Equal(pki.ca) {
				t.Errorf("chain has %d certificates, want leaf then CA", len(chain))
			}

			if cn, ok := ks.CommonName(); !ok || cn != "Jane Signer" {
				t.Errorf("CommonName = %q, %v", cn, ok)
			}
		})
	}
}

func TestLoadPKCS12Failures(t *testing.T) {
	pki := newTestPKI(t, nil)
	data := pki.pfx(t, "secret")

	tests := []struct {
		name     string
		data     []byte
		keyType  KeyType
		password string
	}{
		{"wrong password", data, KeyTypePKCS12, "wrong"},
		{"not a store", []byte("definitely not PKCS#12"), KeyTypePKCS12, "secret"},
		{"empty", nil, KeyTypeDefault, ""},
		{"unsupported type", data, KeyType("jks"), "secret"},
		{"default type garbage", []byte{0x30, 0x03, 0x02, 0x01, 0x05}, KeyTypeDefault, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.data, tt.keyType, tt.password); !errors.Is(err, ErrKeyStore) {
				t.Errorf("Load error = %v, want ErrKeyStore", err)
			}
		})
	}
}

func TestPKCS12KeyPassword(t *testing.T) {
	pki := newTestPKI(t, nil)
	ks, err := Load(pki.pfx(t, "secret"), KeyTypePKCS12, "secret")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	alias, _ := ks.ResolveAlias("")

	if _, err := ks.ExtractKey(alias, "secret"); err != nil {
		t.Errorf("ExtractKey with store password failed: %v", err)
	}
	if _, err := ks.ExtractKey(alias, "other"); !errors.Is(err, ErrKeyAccess) {
		t.Errorf("ExtractKey error = %v, want ErrKeyAccess", err)
	}
}

func TestPKCS12WithoutAttributesFallsBack(t *testing.T) {
	pki := newTestPKI(t, nil)
	data, err := pkcs12.Passwordless.Encode(pki.leafKey, pki.leaf, []*x509.Certificate{pki.ca}, "")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	ks, err := Load(data, KeyTypePKCS12, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	alias, err := ks.ResolveAlias("")
	if err != nil {
		t.Fatalf("ResolveAlias failed: %v", err)
	}
	if _, err := ks.ExtractKey(alias, ""); err != nil {
		t.Errorf("ExtractKey failed: %v", err)
	}
	if chain, err := ks.ExtractChain(alias); err != nil || len(chain) != 2 {
		t.Errorf("ExtractChain = %d certificates, %v", len(chain), err)
	}
}

func TestTrustStoreHasNoKeys(t *testing.T) {
	pki := newTestPKI(t, nil)
	data, err := pkcs12.Modern.EncodeTrustStore([]*x509.Certificate{pki.ca}, "secret")
	if err != nil {
		t.Fatalf("EncodeTrustStore failed: %v", err)
	}

	ks, err := Load(data, KeyTypeDefault, "secret")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	alias, _ := ks.ResolveAlias("")
	if ks.IsKeyEntry(alias) {
		t.Error("trust store entry reported as key entry")
	}
	if _, err := ks.ExtractKey(alias, ""); !errors.Is(err, ErrNotAPrivateKey) {
		t.Errorf("ExtractKey error = %v, want ErrNotAPrivateKey", err)
	}
}

func TestEmptyStoreHasNoAlias(t *testing.T) {
	data, err := pkcs12.Modern.EncodeTrustStore(nil, "secret")
	if err != nil {
		t.Fatalf("EncodeTrustStore failed: %v", err)
	}

	for _, keyType := range []KeyType{KeyTypePKCS12, KeyTypeDefault} {
		t.Run(string(keyType), func(t *testing.T) {
			ks, err := Load(data, keyType, "secret")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if n := len(ks.Aliases()); n != 0 {
				t.Errorf("Aliases has %d entries", n)
			}
			if _, err := ks.ResolveAlias(""); !errors.Is(err, ErrAliasNotFound) {
				t.Errorf("ResolveAlias error = %v, want ErrAliasNotFound", err)
			}

			_, err = LoadKeyMaterial(data, keyType, "secret", "", "secret")
			if !errors.Is(err, ErrAliasNotFound) {
				t.Errorf("LoadKeyMaterial error = %v, want ErrAliasNotFound", err)
			}
			if errors.Is(err, ErrKeyStore) {
				t.Error("empty store reported as a malformed key store")
			}
		})
	}
}

func TestResolveAlias(t *testing.T) {
	pki := newTestPKI(t, nil)
	second, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	other := newTestPKI(t, second)

	var bundle []byte
	bundle = append(bundle, pemKeyBlock(t, pki.leafKey, map[string]string{"Alias": "first"})...)
	bundle = append(bundle, pemCert(pki.leaf, map[string]string{"Alias": "first"})...)
	bundle = append(bundle, pemKeyBlock(t, other.leafKey, map[string]string{"Alias": "second"})...)
	bundle = append(bundle, pemCert(other.leaf, map[string]string{"Alias": "second"})...)
	bundle = append(bundle, pemCert(pki.ca, nil)...)

	ks, err := Load(bundle, KeyTypeDefault, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		requested string
		want      string
		wantErr   error
	}{
		{"", "first", nil},
		{"second", "second", nil},
		{"first", "first", nil},
		{"missing", "", ErrAliasNotFound},
	}
	for _, tt := range tests {
		got, err := ks.ResolveAlias(tt.requested)
		if got != tt.want || !errors.Is(err, tt.wantErr) {
			t.Errorf("ResolveAlias(%q) = %q, %v; want %q, %v", tt.requested, got, err, tt.want, tt.wantErr)
		}
	}

	key, err := ks.ExtractKey("second", "")
	if err != nil {
		t.Fatalf("ExtractKey failed: %v", err)
	}
	if !publicKeyMatches(other.leaf, key) {
		t.Error("alias second resolved to the wrong key")
	}
	chain, _ := ks.ExtractChain("first")
	if len(chain) != 2 || !chain[1].Equal(pki.ca) {
		t.Errorf("first chain has %d certificates", len(chain))
	}

	empty := &KeyStore{}
	if _, err := empty.ResolveAlias(""); !errors.Is(err, ErrAliasNotFound) {
		t.Errorf("empty store error = %v, want ErrAliasNotFound", err)
	}
}

func TestPEMBundleAliasesFromCommonName(t *testing.T) {
	pki := newTestPKI(t, nil)
	bundle := append(pemCert(pki.leaf, nil), pemCert(pki.ca, nil)...)
	bundle = append(bundle, pemKeyBlock(t, pki.leafKey, nil)...)

	ks, err := Load(bundle, KeyTypeDefault, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if aliases := ks.Aliases(); len(aliases) != 1 || aliases[0] != "Jane Signer" {
		t.Errorf("Aliases = %v, want [Jane Signer]", aliases)
	}
}

func TestPEMBundleMissingChain(t *testing.T) {
	pki := newTestPKI(t, nil)
	ks, err := Load(pemKeyBlock(t, pki.leafKey, nil), KeyTypeDefault, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	alias, _ := ks.ResolveAlias("")
	if _, err := ks.ExtractChain(alias); !errors.Is(err, ErrMissingCertificateChain) {
		t.Errorf("ExtractChain error = %v, want ErrMissingCertificateChain", err)
	}
	if _, ok := ks.CommonName(); ok {
		t.Error("CommonName found without certificates")
	}
}

func TestEncryptedPEMKey(t *testing.T) {
	pki := newTestPKI(t, nil)
	der, _ := x509.MarshalECPrivateKey(pki.leafKey.(*ecdsa.PrivateKey))
	block, err := x509.EncryptPEMBlock(rand.Reader, "EC PRIVATE KEY", der, []byte("keypass"), x509.PEMCipherAES256) //nolint:staticcheck
	if err != nil {
		t.Fatalf("EncryptPEMBlock failed: %v", err)
	}
	bundle := append(pem.EncodeToMemory(block), pemCert(pki.leaf, nil)...)

	ks, err := Load(bundle, KeyTypeDefault, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	alias, _ := ks.ResolveAlias("")

	if _, err := ks.ExtractKey(alias, ""); !errors.Is(err, ErrKeyAccess) {
		t.Errorf("ExtractKey without password error = %v, want ErrKeyAccess", err)
	}
	if _, err := ks.ExtractKey(alias, "keypass"); err != nil {
		t.Errorf("ExtractKey failed: %v", err)
	}
}

func TestLoadKeyMaterial(t *testing.T) {
	pki := newTestPKI(t, nil)

	m, err := LoadKeyMaterial(pki.pfx(t, "secret"), KeyTypePKCS12, "secret", "", "")
	if err != nil {
		t.Fatalf("LoadKeyMaterial failed: %v", err)
	}
	if m.FriendlyName != "Jane Signer" {
		t.Errorf("FriendlyName = %q", m.FriendlyName)
	}
	if !m.Certificate().Equal(pki.leaf) {
		t.Error("Certificate is not the leaf")
	}

	m.Zero()
	if m.PrivateKey != nil || m.Certificate() != nil {
		t.Error("Zero left key material behind")
	}

	if _, err := LoadKeyMaterial(pki.pfx(t, "secret"), KeyTypePKCS12, "secret", "nope", ""); !errors.Is(err, ErrAliasNotFound) {
		t.Errorf("error = %v, want ErrAliasNotFound", err)
	}
}
