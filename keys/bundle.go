package keys

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strconv"
)

// pemKey is a private key block kept encoded until its alias is extracted.
type pemKey struct {
	block *pem.Block
	// storePassword is tried when no key password is given.
	storePassword string
}

func (k *pemKey) decode(keyPassword string) (crypto.Signer, error) {
	password := keyPassword
	if password == "" {
		password = k.storePassword
	}
	key, err := decodeKeyBlock(k.block, []byte(password))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyAccess, err)
	}
	return key, nil
}

// bundleAlias returns the alias a PEM block declares through its headers.
func bundleAlias(block *pem.Block) string {
	if alias := block.Headers["Alias"]; alias != "" {
		return alias
	}
	return block.Headers["friendlyName"]
}

// loadBundle reads PEM or DER certificates and keys. Every private key becomes
// a key entry whose leaf is the certificate sharing its alias header, else the
// certificate matching its public key, else the first unused certificate.
// Certificates that are not a key's leaf become entries only when they are
// named or when the bundle holds no key at all.
func loadBundle(data []byte, storePassword string) (*KeyStore, error) {
	ks := &KeyStore{Type: KeyTypeDefault}

	if !isPEM(data) {
		return loadDERBundle(ks, data)
	}

	type keyBlock struct {
		alias string
		block *pem.Block
	}
	var keyBlocks []keyBlock
	certAliases := make(map[*x509.Certificate]string)

	rest := data
	for len(rest) > 0 {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse certificate: %w", err)
			}
			ks.certs = append(ks.certs, cert)
			certAliases[cert] = bundleAlias(block)
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			keyBlocks = append(keyBlocks, keyBlock{alias: bundleAlias(block), block: block})
		}
	}
	if len(ks.certs) == 0 && len(keyBlocks) == 0 {
		return nil, ErrNoCertFound
	}

	used := make(map[*x509.Certificate]bool)
	pick := func(match func(*x509.Certificate) bool) *x509.Certificate {
		for _, cert := range ks.certs {
			if !used[cert] && match(cert) {
				used[cert] = true
				return cert
			}
		}
		return nil
	}

	for i, kb := range keyBlocks {
		e := &entry{
			alias:    kb.alias,
			keyBlock: &pemKey{block: kb.block, storePassword: storePassword},
		}

		if kb.alias != "" {
			e.leaf = pick(func(c *x509.Certificate) bool { return certAliases[c] == kb.alias })
		}
		if e.leaf == nil {
			if key, err := decodeKeyBlock(kb.block, nil); err == nil {
				e.leaf = pick(func(c *x509.Certificate) bool { return publicKeyMatches(c, key) })
			}
		}
		if e.leaf == nil {
			e.leaf = pick(func(*x509.Certificate) bool { return true })
		}

		if e.alias == "" && e.leaf != nil {
			e.alias, _ = commonNameFromDN(e.leaf.Subject.String())
		}
		if e.alias == "" {
			e.alias = "key-" + strconv.Itoa(i+1)
		}
		ks.entries = append(ks.entries, e)
	}

	for i, cert := range ks.certs {
		if used[cert] {
			continue
		}
		alias := certAliases[cert]
		if alias == "" && len(keyBlocks) > 0 {
			continue
		}
		if alias == "" {
			alias, _ = commonNameFromDN(cert.Subject.String())
		}
		if alias == "" {
			alias = "cert-" + strconv.Itoa(i+1)
		}
		ks.entries = append(ks.entries, &entry{alias: alias, leaf: cert})
	}

	return ks, nil
}

// loadDERBundle reads DER input holding either certificates or a single
// private key.
func loadDERBundle(ks *KeyStore, data []byte) (*KeyStore, error) {
	if certs, err := x509.ParseCertificates(data); err == nil && len(certs) > 0 {
		ks.certs = certs
		for i, cert := range certs {
			alias, _ := commonNameFromDN(cert.Subject.String())
			if alias == "" {
				alias = "cert-" + strconv.Itoa(i+1)
			}
			ks.entries = append(ks.entries, &entry{alias: alias, leaf: cert})
		}
		return ks, nil
	}

	if _, err := LoadPrivateKeyFromPemDerData(data, nil); err != nil {
		return nil, err
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: data}
	ks.entries = []*entry{{alias: "key-1", keyBlock: &pemKey{block: block}}}
	return ks, nil
}
