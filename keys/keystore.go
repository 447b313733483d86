package keys

import (
	"crypto"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"fmt"
	"strings"
)

// KeyType selects how key store bytes are interpreted.
type KeyType string

const (
	// KeyTypeDefault detects PKCS#12 input and otherwise reads a PEM or DER
	// bundle.
	KeyTypeDefault KeyType = "default"
	// KeyTypePKCS12 requires a PKCS#12 (PFX) store.
	KeyTypePKCS12 KeyType = "pkcs12"
)

// ParseKeyType parses a key type name. The empty string selects the default.
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return KeyTypeDefault, nil
	case "pkcs12", "pfx", "p12":
		return KeyTypePKCS12, nil
	default:
		return "", fmt.Errorf("%w: unsupported key type %q", ErrKeyStore, s)
	}
}

// entry is one alias of a key store.
type entry struct {
	alias string
	// key is set for PKCS#12 entries, which are decrypted while loading.
	key crypto.Signer
	// keyBlock holds a possibly encrypted PEM key until it is extracted.
	keyBlock *pemKey
	leaf     *x509.Certificate
}

func (e *entry) hasKey() bool {
	return e.key != nil || e.keyBlock != nil
}

// KeyStore is a parsed, in-memory key store.
type KeyStore struct {
	Type KeyType

	entries []*entry
	certs   []*x509.Certificate

	// passwordDigest lets PKCS#12 stores check key passwords.
	passwordDigest [sha256.Size]byte
}

// Load parses a key store. Malformed bytes, a wrong store password and
// unsupported types fail with ErrKeyStore. A well-formed store without
// entries loads; alias resolution then fails with ErrAliasNotFound.
func Load(data []byte, keyType KeyType, storePassword string) (*KeyStore, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty key store", ErrKeyStore)
	}

	var (
		ks  *KeyStore
		err error
	)
	switch keyType {
	case KeyTypePKCS12:
		ks, err = loadPKCS12(data, storePassword)
	case KeyTypeDefault, "":
		if isPFX(data) {
			ks, err = loadPKCS12(data, storePassword)
		} else {
			ks, err = loadBundle(data, storePassword)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported key type %q", ErrKeyStore, keyType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyStore, err)
	}
	return ks, nil
}

// Aliases returns the entry names in store order.
func (ks *KeyStore) Aliases() []string {
	aliases := make([]string, len(ks.entries))
	for i, e := range ks.entries {
		aliases[i] = e.alias
	}
	return aliases
}

// IsKeyEntry reports whether alias names an entry holding a private key.
func (ks *KeyStore) IsKeyEntry(alias string) bool {
	e := ks.lookup(alias)
	return e != nil && e.hasKey()
}

func (ks *KeyStore) lookup(alias string) *entry {
	for _, e := range ks.entries {
		if e.alias == alias {
			return e
		}
	}
	return nil
}

// ResolveAlias returns the requested alias when the store contains it, or the
// first alias in store order when none is requested.
func (ks *KeyStore) ResolveAlias(requested string) (string, error) {
	if requested == "" {
		if len(ks.entries) == 0 {
			return "", fmt.Errorf("%w: store is empty", ErrAliasNotFound)
		}
		return ks.entries[0].alias, nil
	}
	if ks.lookup(requested) == nil {
		return "", fmt.Errorf("%w: %q", ErrAliasNotFound, requested)
	}
	return requested, nil
}

// ExtractKey returns the private key stored under alias.
func (ks *KeyStore) ExtractKey(alias, keyPassword string) (crypto.Signer, error) {
	e := ks.lookup(alias)
	if e == nil {
		return nil, fmt.Errorf("%w: %q", ErrAliasNotFound, alias)
	}
	if !e.hasKey() {
		return nil, fmt.Errorf("%w: %q", ErrNotAPrivateKey, alias)
	}

	if e.key != nil {
		// PKCS#12 stores protect keys with the store password.
		if keyPassword != "" {
			digest := sha256.Sum256([]byte(keyPassword))
			if subtle.ConstantTimeCompare(digest[:], ks.passwordDigest[:]) != 1 {
				return nil, fmt.Errorf("%w: wrong key password for %q", ErrKeyAccess, alias)
			}
		}
		return e.key, nil
	}

	key, err := e.keyBlock.decode(keyPassword)
	if err != nil {
		return nil, fmt.Errorf("alias %q: %w", alias, err)
	}
	return key, nil
}

// ExtractChain returns the certificate chain of alias, leaf first, followed
// by the issuers found in the store.
func (ks *KeyStore) ExtractChain(alias string) ([]*x509.Certificate, error) {
	e := ks.lookup(alias)
	if e == nil {
		return nil, fmt.Errorf("%w: %q", ErrAliasNotFound, alias)
	}
	if e.leaf == nil {
		return nil, fmt.Errorf("%w: %q", ErrMissingCertificateChain, alias)
	}
	return buildChain(e.leaf, ks.certs), nil
}

// buildChain follows issuer links from leaf through pool.
func buildChain(leaf *x509.Certificate, pool []*x509.Certificate) []*x509.Certificate {
	chain := []*x509.Certificate{leaf}
	seen := map[string]bool{string(leaf.Raw): true}

	current := leaf
	for !isSelfSigned(current) {
		var issuer *x509.Certificate
		for _, c := range pool {
			if seen[string(c.Raw)] || string(c.RawSubject) != string(current.RawIssuer) {
				continue
			}
			if current.CheckSignatureFrom(c) == nil {
				issuer = c
				break
			}
		}
		if issuer == nil {
			break
		}
		chain = append(chain, issuer)
		seen[string(issuer.Raw)] = true
		current = issuer
	}
	return chain
}

// CommonName scans the aliases for the first entry with a certificate and
// returns the CN attribute of its leaf subject.
func (ks *KeyStore) CommonName() (string, bool) {
	for _, e := range ks.entries {
		if e.leaf == nil {
			continue
		}
		return commonNameFromDN(e.leaf.Subject.String())
	}
	return "", false
}

// commonNameFromDN returns the value of the first CN attribute of a
// distinguished name in its string form.
func commonNameFromDN(dn string) (string, bool) {
	for _, part := range strings.Split(dn, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.EqualFold(strings.TrimSpace(key), "CN") {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}
