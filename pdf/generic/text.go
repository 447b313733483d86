package generic

import (
	"bytes"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/unicode/norm"
)

var utf16BOM = []byte{0xFE, 0xFF}

// NewTextString encodes s as a PDF text string. Pure ASCII input stays a
// literal byte string; anything else is written as UTF-16BE with a BOM.
// Input is NFC-normalized first so that visually equal names encode equally.
func NewTextString(s string) *StringObject {
	s = norm.NFC.String(s)
	if isASCII(s) {
		return NewLiteralString(s)
	}

	enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		// Only reachable with invalid UTF-8; keep the raw bytes.
		return NewLiteralString(s)
	}
	return &StringObject{Value: out}
}

// Text decodes a PDF text string into Go UTF-8.
func (s *StringObject) Text() string {
	if bytes.HasPrefix(s.Value, utf16BOM) {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(s.Value)
		if err == nil {
			return string(out)
		}
	}
	return string(s.Value)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
