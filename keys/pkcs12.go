package keys

import (
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	encoding_asn1 "encoding/asn1"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
	"software.sslmate.com/src/go-pkcs12"
)

var (
	oidData       = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidSignedData = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
)

// isPFX reports whether data starts with a PKCS#12 PFX structure:
// SEQUENCE { INTEGER 3, ContentInfo { data | signedData, ... }, ... }.
func isPFX(data []byte) bool {
	input := cryptobyte.String(data)
	var pfx, authSafe cryptobyte.String
	var version int
	var contentType encoding_asn1.ObjectIdentifier

	if !input.ReadASN1(&pfx, asn1.SEQUENCE) {
		return false
	}
	if !pfx.ReadASN1Integer(&version) || version != 3 {
		return false
	}
	if !pfx.ReadASN1(&authSafe, asn1.SEQUENCE) || !authSafe.ReadASN1ObjectIdentifier(&contentType) {
		return false
	}
	return contentType.Equal(oidData) || contentType.Equal(oidSignedData)
}

// loadPKCS12 reads every bag of a PFX file. Bags carrying attributes the
// converter does not know make ToPEM fail; such stores are read through
// DecodeChain or DecodeTrustStore instead, losing their aliases.
func loadPKCS12(data []byte, password string) (*KeyStore, error) {
	ks := &KeyStore{
		Type:           KeyTypePKCS12,
		passwordDigest: sha256.Sum256([]byte(password)),
	}

	blocks, err := pkcs12.ToPEM(data, password)
	if errors.Is(err, pkcs12.ErrIncorrectPassword) {
		return nil, err
	}
	if err != nil {
		return ks, ks.decodeFallback(data, password)
	}

	type keyBag struct {
		id   string
		name string
		key  crypto.Signer
	}
	var bags []keyBag
	certIDs := make(map[*x509.Certificate]string)
	certNames := make(map[*x509.Certificate]string)

	for _, block := range blocks {
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse certificate bag: %w", err)
			}
			ks.certs = append(ks.certs, cert)
			certIDs[cert] = block.Headers["localKeyId"]
			certNames[cert] = block.Headers["friendlyName"]
		case "PRIVATE KEY":
			key, err := loadPrivateKeyFromDER(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse key bag: %w", err)
			}
			bags = append(bags, keyBag{
				id:   block.Headers["localKeyId"],
				name: block.Headers["friendlyName"],
				key:  key,
			})
		}
	}

	used := make(map[*x509.Certificate]bool)
	for i, bag := range bags {
		e := &entry{alias: bag.name, key: bag.key}
		for _, cert := range ks.certs {
			if used[cert] {
				continue
			}
			if (bag.id != "" && certIDs[cert] == bag.id) || publicKeyMatches(cert, bag.key) {
				e.leaf = cert
				used[cert] = true
				break
			}
		}
		if e.alias == "" && e.leaf != nil {
			e.alias = certNames[e.leaf]
		}
		if e.alias == "" {
			e.alias = bag.id
		}
		if e.alias == "" {
			e.alias = strconv.Itoa(i + 1)
		}
		ks.entries = append(ks.entries, e)
	}

	// Named certificates that are not a key's leaf are trusted entries.
	for i, cert := range ks.certs {
		if used[cert] {
			continue
		}
		name := certNames[cert]
		if name == "" && len(bags) > 0 {
			continue
		}
		if name == "" {
			name = strconv.Itoa(i + 1)
		}
		ks.entries = append(ks.entries, &entry{alias: name, leaf: cert})
	}

	return ks, nil
}

func (ks *KeyStore) decodeFallback(data []byte, password string) error {
	key, leaf, caCerts, err := pkcs12.DecodeChain(data, password)
	if err == nil {
		signer, err := toSigner(key)
		if err != nil {
			return err
		}
		ks.certs = append([]*x509.Certificate{leaf}, caCerts...)
		ks.entries = []*entry{{alias: "1", key: signer, leaf: leaf}}
		return nil
	}

	certs, trustErr := pkcs12.DecodeTrustStore(data, password)
	if trustErr != nil {
		return fmt.Errorf("failed to decode PKCS#12 store: %w", err)
	}
	ks.certs = certs
	for i, cert := range certs {
		ks.entries = append(ks.entries, &entry{alias: strconv.Itoa(i + 1), leaf: cert})
	}
	return nil
}
