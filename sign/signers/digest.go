package signers

import (
	"bytes"
	"crypto"
	"fmt"
	"io"
	"strings"

	"github.com/georgepadayatti/pdfsign/pdf/generic"
)

// Common digest algorithm names
const (
	DigestSHA256 = "sha256"
	DigestSHA384 = "sha384"
	DigestSHA512 = "sha512"
)

// DefaultMD is the default message digest algorithm.
const DefaultMD = DigestSHA256

// ByteRanges is a /ByteRange array: two (offset, length) pairs around the
// /Contents slot.
type ByteRanges [4]int64

// Slot returns the start and end offsets of the excluded /Contents token.
func (b ByteRanges) Slot() (int64, int64) {
	return b[0] + b[1], b[2]
}

// Covered returns the number of bytes the ranges cover.
func (b ByteRanges) Covered() int64 {
	return b[1] + b[3]
}

// Validate checks that the ranges are ordered and lie within size bytes.
func (b ByteRanges) Validate(size int64) error {
	for _, v := range b {
		if v < 0 {
			return fmt.Errorf("%w: negative value in %v", ErrInvalidByteRange, b)
		}
	}
	if b[0]+b[1] > b[2] || b[2]+b[3] > size {
		return fmt.Errorf("%w: %v outside document of %d bytes", ErrInvalidByteRange, b, size)
	}
	return nil
}

// ParseDigestAlgorithm maps an algorithm name to its hash.
func ParseDigestAlgorithm(name string) (crypto.Hash, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "")) {
	case "", DigestSHA256:
		return crypto.SHA256, nil
	case DigestSHA384:
		return crypto.SHA384, nil
	case DigestSHA512:
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("%w: digest %q", ErrUnsupportedDigest, name)
	}
}

// Digest hashes exactly the bytes named by ranges, in order.
func Digest(data []byte, ranges ByteRanges, alg crypto.Hash) ([]byte, error) {
	if err := ranges.Validate(int64(len(data))); err != nil {
		return nil, err
	}
	if !alg.Available() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDigest, alg)
	}

	h := alg.New()
	src := bytes.NewReader(data)
	for i := 0; i < len(ranges); i += 2 {
		section := io.NewSectionReader(src, ranges[i], ranges[i+1])
		if err := generic.ChunkedDigest(section, h, generic.DefaultChunkSize, ranges[i+1]); err != nil {
			return nil, err
		}
	}
	return h.Sum(nil), nil
}
