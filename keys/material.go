package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"math/big"
)

// KeyMaterial is the signing key and certificate chain of one operation.
type KeyMaterial struct {
	PrivateKey crypto.Signer
	// CertificateChain is ordered leaf first.
	CertificateChain []*x509.Certificate
	// FriendlyName is the common name of the store's first certificate.
	FriendlyName string
	Alias        string
}

// Certificate returns the signer certificate.
func (m *KeyMaterial) Certificate() *x509.Certificate {
	if len(m.CertificateChain) == 0 {
		return nil
	}
	return m.CertificateChain[0]
}

// LoadKeyMaterial loads a store, resolves alias and extracts the key and its
// chain.
func LoadKeyMaterial(data []byte, keyType KeyType, storePassword, alias, keyPassword string) (*KeyMaterial, error) {
	ks, err := Load(data, keyType, storePassword)
	if err != nil {
		return nil, err
	}

	resolved, err := ks.ResolveAlias(alias)
	if err != nil {
		return nil, err
	}
	key, err := ks.ExtractKey(resolved, keyPassword)
	if err != nil {
		return nil, err
	}
	chain, err := ks.ExtractChain(resolved)
	if err != nil {
		zeroKey(key)
		return nil, err
	}

	name, ok := ks.CommonName()
	if !ok {
		name = resolved
	}

	return &KeyMaterial{
		PrivateKey:       key,
		CertificateChain: chain,
		FriendlyName:     name,
		Alias:            resolved,
	}, nil
}

// Zero wipes the private scalars of the key and drops the references. It is
// safe to call more than once.
func (m *KeyMaterial) Zero() {
	if m == nil {
		return
	}
	zeroKey(m.PrivateKey)
	m.PrivateKey = nil
	m.CertificateChain = nil
}

func zeroKey(key crypto.Signer) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		zeroInt(k.D)
		for _, p := range k.Primes {
			zeroInt(p)
		}
		zeroInt(k.Precomputed.Dp)
		zeroInt(k.Precomputed.Dq)
		zeroInt(k.Precomputed.Qinv)
	case *ecdsa.PrivateKey:
		zeroInt(k.D)
	case ed25519.PrivateKey:
		clear(k)
	}
}

func zeroInt(n *big.Int) {
	if n == nil {
		return
	}
	clear(n.Bits())
	n.SetInt64(0)
}
