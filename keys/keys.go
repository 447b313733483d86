// Package keys loads signing credentials: PKCS#12 key stores and PEM or DER
// bundles of certificates and private keys.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrKeyStore                = errors.New("failed to load key store")
	ErrAliasNotFound           = errors.New("alias not found in key store")
	ErrNotAPrivateKey          = errors.New("key store entry is not a private key")
	ErrKeyAccess               = errors.New("private key cannot be accessed")
	ErrMissingCertificateChain = errors.New("no certificate chain for key store entry")

	ErrNoCertFound    = errors.New("no certificate found in data")
	ErrNoKeyFound     = errors.New("no private key found in data")
	ErrUnknownKeyType = errors.New("unknown private key type")
	ErrInvalidPEM     = errors.New("invalid PEM block")
)

// LoadCertsFromPemDerData loads certificates from PEM or DER encoded data.
func LoadCertsFromPemDerData(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate

	if isPEM(data) {
		rest := data
		for len(rest) > 0 {
			var block *pem.Block
			block, rest = pem.Decode(rest)
			if block == nil {
				break
			}
			if block.Type != "CERTIFICATE" {
				continue
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse certificate: %w", err)
			}
			certs = append(certs, cert)
		}
	} else {
		parsed, err := x509.ParseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DER certificate: %w", err)
		}
		certs = parsed
	}

	if len(certs) == 0 {
		return nil, ErrNoCertFound
	}
	return certs, nil
}

// LoadPrivateKeyFromPemDerData loads a private key from PEM or DER encoded
// data. The passphrase is only used for encrypted PEM blocks.
func LoadPrivateKeyFromPemDerData(data []byte, passphrase []byte) (crypto.Signer, error) {
	if !isPEM(data) {
		return loadPrivateKeyFromDER(data)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPEM
	}
	return decodeKeyBlock(block, passphrase)
}

// decodeKeyBlock parses a PEM private key block, decrypting it first when it
// carries legacy encryption headers.
func decodeKeyBlock(block *pem.Block, passphrase []byte) (crypto.Signer, error) {
	keyBytes := block.Bytes
	if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck
		if len(passphrase) == 0 {
			return nil, fmt.Errorf("%w: private key is encrypted", ErrKeyAccess)
		}
		decrypted, err := x509.DecryptPEMBlock(block, passphrase) //nolint:staticcheck
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyAccess, err)
		}
		keyBytes = decrypted
	}
	return parsePrivateKeyByType(block.Type, keyBytes)
}

// loadPrivateKeyFromDER tries PKCS#8, PKCS#1 and SEC 1 in turn.
func loadPrivateKeyFromDER(data []byte) (crypto.Signer, error) {
	if key, err := x509.ParsePKCS8PrivateKey(data); err == nil {
		return toSigner(key)
	}
	if key, err := x509.ParsePKCS1PrivateKey(data); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(data); err == nil {
		return key, nil
	}
	return nil, ErrNoKeyFound
}

func parsePrivateKeyByType(blockType string, keyBytes []byte) (crypto.Signer, error) {
	switch blockType {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(keyBytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(keyBytes)
	case "PRIVATE KEY":
		// PKCS#12 conversion labels raw PKCS#1 and SEC 1 keys this way too.
		return loadPrivateKeyFromDER(keyBytes)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKeyType, blockType)
	}
}

func toSigner(key any) (crypto.Signer, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case *ecdsa.PrivateKey:
		return k, nil
	case ed25519.PrivateKey:
		return k, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKeyType, key)
	}
}

func isPEM(data []byte) bool {
	return len(data) > 10 && string(data[:5]) == "-----"
}

// KeyInfo describes a private key.
type KeyInfo struct {
	// Algorithm is RSA, ECDSA or Ed25519.
	Algorithm string

	// BitSize is the modulus size for RSA keys.
	BitSize int

	// Curve is the curve name for ECDSA keys.
	Curve string
}

// GetKeyInfo returns information about a private key.
func GetKeyInfo(key crypto.Signer) KeyInfo {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return KeyInfo{Algorithm: "RSA", BitSize: k.N.BitLen()}
	case *ecdsa.PrivateKey:
		return KeyInfo{Algorithm: "ECDSA", Curve: k.Curve.Params().Name}
	case ed25519.PrivateKey:
		return KeyInfo{Algorithm: "Ed25519"}
	default:
		return KeyInfo{Algorithm: "Unknown"}
	}
}

func isSelfSigned(cert *x509.Certificate) bool {
	return string(cert.RawSubject) == string(cert.RawIssuer)
}

// publicKeyMatches reports whether cert certifies the public half of key.
func publicKeyMatches(cert *x509.Certificate, key crypto.Signer) bool {
	pub, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
	return ok && pub.Equal(cert.PublicKey)
}
