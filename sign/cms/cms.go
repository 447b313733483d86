// Package cms provides CMS (Cryptographic Message Syntax) support for PDF signatures.
package cms

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"hash"
	"math/big"
	"sort"
	"time"
)

// OIDs for CMS and signature algorithms
var (
	// Content types
	OIDData       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	OIDSignedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}

	// Digest algorithms
	OIDSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	OIDSHA384 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	OIDSHA512 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}

	// Signature algorithms
	OIDRSAEncryption   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	OIDSHA256WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	OIDSHA384WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	OIDSHA512WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	OIDECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	OIDECDSAWithSHA384 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}
	OIDECDSAWithSHA512 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}

	// Signed attributes
	OIDContentType          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	OIDMessageDigest        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	OIDSigningTime          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 5}
	OIDSigningCertificateV2 = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 47}
)

// Common errors
var (
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrMissingCertificate   = errors.New("missing certificate")
	ErrDigestMismatch       = errors.New("message digest mismatch")
	ErrMalformed            = errors.New("malformed CMS structure")
)

// AlgorithmIdentifier represents an algorithm identifier.
type AlgorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

// ContentInfo represents a CMS ContentInfo structure.
type ContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

// SignedData represents a CMS SignedData structure.
type SignedData struct {
	Version          int
	DigestAlgorithms []AlgorithmIdentifier `asn1:"set"`
	EncapContentInfo EncapsulatedContentInfo
	Certificates     []asn1.RawValue `asn1:"optional,implicit,tag:0,set"`
	CRLs             []asn1.RawValue `asn1:"optional,implicit,tag:1"`
	SignerInfos      []SignerInfo    `asn1:"set"`
}

// EncapsulatedContentInfo represents encapsulated content.
type EncapsulatedContentInfo struct {
	EContentType asn1.ObjectIdentifier
	EContent     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

// SignerInfo represents a signer's information.
// SID is IssuerAndSerialNumber directly because SignerIdentifier is a CHOICE.
type SignerInfo struct {
	Version            int
	SID                IssuerAndSerialNumber
	DigestAlgorithm    AlgorithmIdentifier
	SignedAttrs        []Attribute `asn1:"optional,implicit,tag:0,set"`
	SignatureAlgorithm AlgorithmIdentifier
	Signature          []byte
	UnsignedAttrs      []Attribute `asn1:"optional,implicit,tag:1,set"`
}

// signerInfoRaw keeps the signed attributes as they appear on the wire.
type signerInfoRaw struct {
	Version            int
	SID                IssuerAndSerialNumber
	DigestAlgorithm    AlgorithmIdentifier
	SignedAttrs        asn1.RawValue `asn1:"optional,tag:0"`
	SignatureAlgorithm AlgorithmIdentifier
	Signature          []byte
	UnsignedAttrs      asn1.RawValue `asn1:"optional,tag:1"`
}

type signedDataRaw struct {
	Version          int
	DigestAlgorithms []AlgorithmIdentifier `asn1:"set"`
	EncapContentInfo EncapsulatedContentInfo
	Certificates     []asn1.RawValue `asn1:"optional,implicit,tag:0,set"`
	CRLs             []asn1.RawValue `asn1:"optional,implicit,tag:1"`
	SignerInfos      []asn1.RawValue `asn1:"set"`
}

// IssuerAndSerialNumber identifies a certificate by issuer and serial.
type IssuerAndSerialNumber struct {
	Issuer       asn1.RawValue
	SerialNumber *big.Int
}

// Attribute represents a CMS attribute.
type Attribute struct {
	Type   asn1.ObjectIdentifier
	Values []asn1.RawValue `asn1:"set"`
}

// SigningCertificateV2 represents the signing certificate attribute.
type SigningCertificateV2 struct {
	Certs []ESSCertIDv2
}

// ESSCertIDv2 represents a certificate identifier.
type ESSCertIDv2 struct {
	HashAlgorithm AlgorithmIdentifier `asn1:"optional"`
	CertHash      []byte
	IssuerSerial  IssuerSerial `asn1:"optional"`
}

// IssuerSerial identifies a certificate by issuer and serial.
type IssuerSerial struct {
	Issuer       GeneralNames
	SerialNumber *big.Int
}

// GeneralNames represents a sequence of GeneralName.
type GeneralNames struct {
	Names []asn1.RawValue
}

// SignatureAlgorithm represents a signature algorithm with its hash.
type SignatureAlgorithm struct {
	DigestAlgorithm    asn1.ObjectIdentifier
	SignatureAlgorithm asn1.ObjectIdentifier
	Hash               crypto.Hash
}

// Common signature algorithms
var (
	SHA256WithRSA = SignatureAlgorithm{
		DigestAlgorithm:    OIDSHA256,
		SignatureAlgorithm: OIDSHA256WithRSA,
		Hash:               crypto.SHA256,
	}
	SHA384WithRSA = SignatureAlgorithm{
		DigestAlgorithm:    OIDSHA384,
		SignatureAlgorithm: OIDSHA384WithRSA,
		Hash:               crypto.SHA384,
	}
	SHA512WithRSA = SignatureAlgorithm{
		DigestAlgorithm:    OIDSHA512,
		SignatureAlgorithm: OIDSHA512WithRSA,
		Hash:               crypto.SHA512,
	}
	SHA256WithECDSA = SignatureAlgorithm{
		DigestAlgorithm:    OIDSHA256,
		SignatureAlgorithm: OIDECDSAWithSHA256,
		Hash:               crypto.SHA256,
	}
	SHA384WithECDSA = SignatureAlgorithm{
		DigestAlgorithm:    OIDSHA384,
		SignatureAlgorithm: OIDECDSAWithSHA384,
		Hash:               crypto.SHA384,
	}
	SHA512WithECDSA = SignatureAlgorithm{
		DigestAlgorithm:    OIDSHA512,
		SignatureAlgorithm: OIDECDSAWithSHA512,
		Hash:               crypto.SHA512,
	}
)

// AlgorithmForKey selects the signature algorithm matching a public key and
// digest. RSA keys use PKCS#1 v1.5, EC keys use ECDSA.
func AlgorithmForKey(pub crypto.PublicKey, h crypto.Hash) (SignatureAlgorithm, error) {
	var table map[crypto.Hash]SignatureAlgorithm
	switch pub.(type) {
	case *rsa.PublicKey:
		table = map[crypto.Hash]SignatureAlgorithm{
			crypto.SHA256: SHA256WithRSA,
			crypto.SHA384: SHA384WithRSA,
			crypto.SHA512: SHA512WithRSA,
		}
	case *ecdsa.PublicKey:
		table = map[crypto.Hash]SignatureAlgorithm{
			crypto.SHA256: SHA256WithECDSA,
			crypto.SHA384: SHA384WithECDSA,
			crypto.SHA512: SHA512WithECDSA,
		}
	default:
		return SignatureAlgorithm{}, fmt.Errorf("%w: key type %T", ErrUnsupportedAlgorithm, pub)
	}
	alg, ok := table[h]
	if !ok {
		return SignatureAlgorithm{}, fmt.Errorf("%w: digest %v", ErrUnsupportedAlgorithm, h)
	}
	return alg, nil
}

// CMSBuilder builds detached CMS signed data structures.
type CMSBuilder struct {
	Certificate *x509.Certificate
	CertChain   []*x509.Certificate
	PrivateKey  crypto.Signer
	Algorithm   SignatureAlgorithm
	SigningTime time.Time
}

// NewCMSBuilder creates a new CMS builder.
func NewCMSBuilder(cert *x509.Certificate, key crypto.Signer, alg SignatureAlgorithm) *CMSBuilder {
	return &CMSBuilder{
		Certificate: cert,
		PrivateKey:  key,
		Algorithm:   alg,
		SigningTime: time.Now().UTC(),
	}
}

// SetCertificateChain sets the certificate chain. The signer certificate may
// be included; duplicates are dropped when the structure is built.
func (b *CMSBuilder) SetCertificateChain(chain []*x509.Certificate) {
	b.CertChain = chain
}

// SetSigningTime sets the signing time.
func (b *CMSBuilder) SetSigningTime(t time.Time) {
	b.SigningTime = t.UTC()
}

// SignedAttributes returns the DER-sorted signed attributes for a message
// digest along with the SET encoding that gets signed.
func (b *CMSBuilder) SignedAttributes(messageDigest []byte) ([]Attribute, []byte, error) {
	signedAttrs, err := b.buildSignedAttributes(messageDigest)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build signed attributes: %w", err)
	}

	signedAttrs = derSortAttributes(signedAttrs)

	signedAttrsBytes, err := asn1.Marshal(signedAttrs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal signed attributes: %w", err)
	}

	signedAttrsBytes[0] = 0x31 // SET tag

	return signedAttrs, signedAttrsBytes, nil
}

// Sign hashes data and creates a detached CMS signature over it.
func (b *CMSBuilder) Sign(data []byte) ([]byte, error) {
	h, err := newHash(b.Algorithm.Hash)
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return b.SignDigest(h.Sum(nil))
}

// SignDigest creates a detached CMS signature for content whose digest has
// already been computed with the builder's algorithm.
func (b *CMSBuilder) SignDigest(messageDigest []byte) ([]byte, error) {
	if b.Certificate == nil {
		return nil, ErrMissingCertificate
	}
	if len(messageDigest) != b.Algorithm.Hash.Size() {
		return nil, fmt.Errorf("%w: digest is %d bytes, want %d", ErrInvalidSignature, len(messageDigest), b.Algorithm.Hash.Size())
	}

	signedAttrs, signedAttrsBytes, err := b.SignedAttributes(messageDigest)
	if err != nil {
		return nil, err
	}

	h, _ := newHash(b.Algorithm.Hash)
	h.Write(signedAttrsBytes)
	signature, err := b.signDigest(h.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	signerInfo := SignerInfo{
		Version: 1,
		SID: IssuerAndSerialNumber{
			Issuer:       asn1.RawValue{FullBytes: b.Certificate.RawIssuer},
			SerialNumber: b.Certificate.SerialNumber,
		},
		DigestAlgorithm: AlgorithmIdentifier{
			Algorithm:  b.Algorithm.DigestAlgorithm,
			Parameters: asn1.RawValue{Tag: 5}, // NULL
		},
		SignedAttrs: signedAttrs,
		SignatureAlgorithm: AlgorithmIdentifier{
			Algorithm:  b.Algorithm.SignatureAlgorithm,
			Parameters: signatureAlgorithmParameters(b.Algorithm.SignatureAlgorithm),
		},
		Signature: signature,
	}

	signedData := SignedData{
		Version: 1,
		DigestAlgorithms: []AlgorithmIdentifier{
			{
				Algorithm:  b.Algorithm.DigestAlgorithm,
				Parameters: asn1.RawValue{Tag: 5},
			},
		},
		EncapContentInfo: EncapsulatedContentInfo{
			EContentType: OIDData,
		},
		Certificates: b.certificates(),
		SignerInfos:  []SignerInfo{signerInfo},
	}

	signedDataBytes, err := asn1.Marshal(signedData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signed data: %w", err)
	}

	contentInfo := ContentInfo{
		ContentType: OIDSignedData,
		Content:     asn1.RawValue{Class: 2, Tag: 0, IsCompound: true, Bytes: signedDataBytes},
	}

	return asn1.Marshal(contentInfo)
}

// certificates returns the signer certificate followed by the chain, each
// certificate once.
func (b *CMSBuilder) certificates() []asn1.RawValue {
	var out []asn1.RawValue
	var seen [][]byte
	for _, cert := range append([]*x509.Certificate{b.Certificate}, b.CertChain...) {
		if cert == nil {
			continue
		}
		dup := false
		for _, raw := range seen {
			if bytes.Equal(raw, cert.Raw) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen = append(seen, cert.Raw)
		out = append(out, asn1.RawValue{FullBytes: cert.Raw})
	}
	return out
}

func signatureAlgorithmParameters(oid asn1.ObjectIdentifier) asn1.RawValue {
	switch {
	case oid.Equal(OIDSHA256WithRSA),
		oid.Equal(OIDSHA384WithRSA),
		oid.Equal(OIDSHA512WithRSA):
		return asn1.RawValue{Tag: 5} // NULL
	default:
		return asn1.RawValue{} // omit
	}
}

// buildSignedAttributes builds the signed attributes.
func (b *CMSBuilder) buildSignedAttributes(messageDigest []byte) ([]Attribute, error) {
	var attrs []Attribute

	contentTypeValue, err := asn1.Marshal(OIDData)
	if err != nil {
		return nil, err
	}
	attrs = append(attrs, Attribute{
		Type:   OIDContentType,
		Values: []asn1.RawValue{{FullBytes: contentTypeValue}},
	})

	digestValue, err := asn1.Marshal(messageDigest)
	if err != nil {
		return nil, err
	}
	attrs = append(attrs, Attribute{
		Type:   OIDMessageDigest,
		Values: []asn1.RawValue{{FullBytes: digestValue}},
	})

	signingTimeValue, err := asn1.Marshal(b.SigningTime.UTC())
	if err != nil {
		return nil, err
	}
	attrs = append(attrs, Attribute{
		Type:   OIDSigningTime,
		Values: []asn1.RawValue{{FullBytes: signingTimeValue}},
	})

	h, err := newHash(b.Algorithm.Hash)
	if err != nil {
		return nil, err
	}
	h.Write(b.Certificate.Raw)
	signingCert := SigningCertificateV2{
		Certs: []ESSCertIDv2{
			{
				HashAlgorithm: AlgorithmIdentifier{
					Algorithm:  b.Algorithm.DigestAlgorithm,
					Parameters: asn1.RawValue{Tag: 5},
				},
				CertHash: h.Sum(nil),
				IssuerSerial: IssuerSerial{
					Issuer: GeneralNames{
						Names: []asn1.RawValue{
							{
								Class:      asn1.ClassContextSpecific,
								Tag:        4, // directoryName
								IsCompound: true,
								Bytes:      b.Certificate.RawIssuer,
							},
						},
					},
					SerialNumber: b.Certificate.SerialNumber,
				},
			},
		},
	}
	signingCertValue, err := asn1.Marshal(signingCert)
	if err != nil {
		return nil, err
	}
	attrs = append(attrs, Attribute{
		Type:   OIDSigningCertificateV2,
		Values: []asn1.RawValue{{FullBytes: signingCertValue}},
	})

	return attrs, nil
}

// signDigest signs the digest with the private key.
func (b *CMSBuilder) signDigest(digest []byte) ([]byte, error) {
	if b.PrivateKey == nil {
		return nil, fmt.Errorf("%w: no private key", ErrInvalidSignature)
	}
	switch key := b.PrivateKey.(type) {
	case *rsa.PrivateKey:
		return rsa.SignPKCS1v15(rand.Reader, key, b.Algorithm.Hash, digest)
	case *ecdsa.PrivateKey:
		return ecdsa.SignASN1(rand.Reader, key, digest)
	default:
		return b.PrivateKey.Sign(rand.Reader, digest, b.Algorithm.Hash)
	}
}

// ParseCMSSignature parses a CMS signed data structure.
func ParseCMSSignature(data []byte) (*SignedData, error) {
	var contentInfo ContentInfo
	if _, err := asn1.Unmarshal(data, &contentInfo); err != nil {
		return nil, fmt.Errorf("%w: ContentInfo: %v", ErrMalformed, err)
	}

	if !contentInfo.ContentType.Equal(OIDSignedData) {
		return nil, fmt.Errorf("%w: expected SignedData, got %v", ErrMalformed, contentInfo.ContentType)
	}

	var signedData SignedData
	if _, err := asn1.Unmarshal(contentInfo.Content.Bytes, &signedData); err != nil {
		return nil, fmt.Errorf("%w: SignedData: %v", ErrMalformed, err)
	}

	return &signedData, nil
}

// parseRaw parses the first signer of a CMS structure keeping raw attributes.
func parseRaw(cmsData []byte) (*signedDataRaw, *signerInfoRaw, error) {
	var contentInfo ContentInfo
	if _, err := asn1.Unmarshal(cmsData, &contentInfo); err != nil {
		return nil, nil, fmt.Errorf("%w: ContentInfo: %v", ErrMalformed, err)
	}
	if !contentInfo.ContentType.Equal(OIDSignedData) {
		return nil, nil, fmt.Errorf("%w: expected SignedData, got %v", ErrMalformed, contentInfo.ContentType)
	}

	var sd signedDataRaw
	if _, err := asn1.Unmarshal(contentInfo.Content.Bytes, &sd); err != nil {
		return nil, nil, fmt.Errorf("%w: SignedData: %v", ErrMalformed, err)
	}
	if len(sd.SignerInfos) == 0 {
		return nil, nil, fmt.Errorf("%w: no signer infos", ErrMalformed)
	}

	var si signerInfoRaw
	if _, err := asn1.Unmarshal(sd.SignerInfos[0].FullBytes, &si); err != nil {
		return nil, nil, fmt.Errorf("%w: SignerInfo: %v", ErrMalformed, err)
	}
	return &sd, &si, nil
}

// findSigner returns the certificate named by the signer's issuer and serial.
func findSigner(sd *signedDataRaw, si *signerInfoRaw) (*x509.Certificate, error) {
	if si.SID.SerialNumber == nil {
		return nil, ErrMissingCertificate
	}
	for _, certRaw := range sd.Certificates {
		cert, err := x509.ParseCertificate(certRaw.FullBytes)
		if err != nil {
			continue
		}
		if cert.SerialNumber.Cmp(si.SID.SerialNumber) == 0 && bytes.Equal(cert.RawIssuer, si.SID.Issuer.FullBytes) {
			return cert, nil
		}
	}
	return nil, ErrMissingCertificate
}

// VerifyCMSSignature verifies a detached CMS signature against the content.
func VerifyCMSSignature(cmsData, signedContent []byte) error {
	_, si, err := parseRaw(cmsData)
	if err != nil {
		return err
	}
	h, err := getHashFromOID(si.DigestAlgorithm.Algorithm)
	if err != nil {
		return err
	}
	h.Write(signedContent)
	return VerifyDigest(cmsData, h.Sum(nil))
}

// VerifyDigest verifies a detached CMS signature against a precomputed
// content digest.
func VerifyDigest(cmsData, contentDigest []byte) error {
	sd, si, err := parseRaw(cmsData)
	if err != nil {
		return err
	}

	signerCert, err := findSigner(sd, si)
	if err != nil {
		return err
	}

	hashType, err := getHashType(si.DigestAlgorithm.Algorithm)
	if err != nil {
		return err
	}

	// Without signed attributes the signature covers the content digest.
	if len(si.SignedAttrs.FullBytes) == 0 {
		if err := verifySignature(signerCert.PublicKey, hashType, contentDigest, si.Signature); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil
	}

	var foundDigest []byte
	rest := si.SignedAttrs.Bytes
	for len(rest) > 0 {
		var attr Attribute
		rest, err = asn1.Unmarshal(rest, &attr)
		if err != nil {
			return fmt.Errorf("%w: signed attribute: %v", ErrMalformed, err)
		}
		if attr.Type.Equal(OIDMessageDigest) && len(attr.Values) > 0 && foundDigest == nil {
			if _, err := asn1.Unmarshal(attr.Values[0].FullBytes, &foundDigest); err != nil {
				return fmt.Errorf("%w: message digest: %v", ErrMalformed, err)
			}
		}
	}

	if foundDigest == nil {
		return fmt.Errorf("%w: message digest attribute not found", ErrMalformed)
	}
	if !bytes.Equal(contentDigest, foundDigest) {
		return ErrDigestMismatch
	}

	// The signature covers the attributes re-tagged as a SET.
	signedAttrsBytes := bytes.Clone(si.SignedAttrs.FullBytes)
	signedAttrsBytes[0] = 0x31

	h, _ := getHashFromOID(si.DigestAlgorithm.Algorithm)
	h.Write(signedAttrsBytes)
	if err := verifySignature(signerCert.PublicKey, hashType, h.Sum(nil), si.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return nil
}

// newHash returns a hash function for the given crypto.Hash.
func newHash(h crypto.Hash) (hash.Hash, error) {
	switch h {
	case crypto.SHA256:
		return sha256.New(), nil
	case crypto.SHA384:
		return sha512.New384(), nil
	case crypto.SHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, h)
	}
}

// getHashFromOID returns a hash function for the given OID.
func getHashFromOID(oid asn1.ObjectIdentifier) (hash.Hash, error) {
	h, err := getHashType(oid)
	if err != nil {
		return nil, err
	}
	return newHash(h)
}

// getHashType returns the crypto.Hash for the given OID.
func getHashType(oid asn1.ObjectIdentifier) (crypto.Hash, error) {
	switch {
	case oid.Equal(OIDSHA256):
		return crypto.SHA256, nil
	case oid.Equal(OIDSHA384):
		return crypto.SHA384, nil
	case oid.Equal(OIDSHA512):
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, oid)
	}
}

// verifySignature verifies a signature using the public key.
func verifySignature(pub any, hashType crypto.Hash, digest, sig []byte) error {
	switch key := pub.(type) {
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(key, hashType, digest, sig)
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, digest, sig) {
			return errors.New("ECDSA verification failed")
		}
		return nil
	default:
		return fmt.Errorf("%w: key type %T", ErrUnsupportedAlgorithm, pub)
	}
}

// derSortAttributes sorts attributes by their DER encoding, matching the
// order encoding/asn1 gives SET OF elements.
func derSortAttributes(attrs []Attribute) []Attribute {
	type attrWithDER struct {
		attr Attribute
		der  []byte
	}
	attrsWithDER := make([]attrWithDER, len(attrs))
	for i, attr := range attrs {
		der, _ := asn1.Marshal(attr)
		attrsWithDER[i] = attrWithDER{attr: attr, der: der}
	}

	sort.Slice(attrsWithDER, func(i, j int) bool {
		return bytes.Compare(attrsWithDER[i].der, attrsWithDER[j].der) < 0
	})

	result := make([]Attribute, len(attrs))
	for i, awd := range attrsWithDER {
		result[i] = awd.attr
	}
	return result
}

// GetSignerCertificates extracts the embedded certificates from CMS data.
func GetSignerCertificates(cmsData []byte) ([]*x509.Certificate, error) {
	signedData, err := ParseCMSSignature(cmsData)
	if err != nil {
		return nil, err
	}

	var certs []*x509.Certificate
	for _, certRaw := range signedData.Certificates {
		cert, err := x509.ParseCertificate(certRaw.FullBytes)
		if err != nil {
			continue
		}
		certs = append(certs, cert)
	}

	return certs, nil
}

// GetSignerCertificate returns the certificate of the first signer.
func GetSignerCertificate(cmsData []byte) (*x509.Certificate, error) {
	sd, si, err := parseRaw(cmsData)
	if err != nil {
		return nil, err
	}
	return findSigner(sd, si)
}

// GetSigningTime extracts the signing time from CMS data.
func GetSigningTime(cmsData []byte) (time.Time, error) {
	signedData, err := ParseCMSSignature(cmsData)
	if err != nil {
		return time.Time{}, err
	}

	if len(signedData.SignerInfos) == 0 {
		return time.Time{}, fmt.Errorf("%w: no signer infos", ErrMalformed)
	}

	for _, attr := range signedData.SignerInfos[0].SignedAttrs {
		if attr.Type.Equal(OIDSigningTime) && len(attr.Values) > 0 {
			var signingTime time.Time
			if _, err := asn1.Unmarshal(attr.Values[0].FullBytes, &signingTime); err == nil {
				return signingTime, nil
			}
		}
	}

	return time.Time{}, errors.New("signing time not found")
}
