package reader

import (
	"fmt"
	"time"

	"github.com/georgepadayatti/pdfsign/pdf/generic"
)

// EmbeddedSignature is a signature field with a signature value.
type EmbeddedSignature struct {
	FieldName  string
	Field      *generic.DictionaryObject
	Dictionary *generic.DictionaryObject
	ByteRange  [4]int64
	Contents   []byte

	reader *PdfFileReader
}

// SignatureFields returns every field with /FT /Sig, walking /Kids.
func (r *PdfFileReader) SignatureFields() []*generic.DictionaryObject {
	if r.AcroForm == nil {
		return nil
	}

	var out []*generic.DictionaryObject
	visited := make(map[int]bool)

	var walk func(items generic.ArrayObject, inheritedFT string)
	walk = func(items generic.ArrayObject, inheritedFT string) {
		for _, item := range items {
			if ref, ok := item.(generic.Reference); ok {
				if visited[ref.ObjectNumber] {
					continue
				}
				visited[ref.ObjectNumber] = true
			}
			field, ok := r.Resolve(item).(*generic.DictionaryObject)
			if !ok {
				continue
			}
			ft := field.GetName("FT")
			if ft == "" {
				ft = inheritedFT
			}
			if ft == "Sig" {
				out = append(out, field)
			}
			walk(r.ResolveArray(field.Get("Kids")), ft)
		}
	}
	walk(r.ResolveArray(r.AcroForm.Get("Fields")), "")

	return out
}

// EmbeddedSignatures returns the signed signature fields in field order.
func (r *PdfFileReader) EmbeddedSignatures() ([]*EmbeddedSignature, error) {
	var sigs []*EmbeddedSignature

	for _, field := range r.SignatureFields() {
		sigDict, ok := r.Resolve(field.Get("V")).(*generic.DictionaryObject)
		if !ok {
			continue
		}

		sig := &EmbeddedSignature{
			Field:      field,
			Dictionary: sigDict,
			reader:     r,
		}
		if t, ok := field.Get("T").(*generic.StringObject); ok {
			sig.FieldName = t.Text()
		}

		byteRange := r.ResolveArray(sigDict.Get("ByteRange"))
		if len(byteRange) != 4 {
			return nil, fmt.Errorf("%w: signature %q has malformed /ByteRange", ErrInvalidPDF, sig.FieldName)
		}
		for i, v := range byteRange {
			iv, ok := r.Resolve(v).(generic.IntegerObject)
			if !ok {
				return nil, fmt.Errorf("%w: signature %q has non-integer /ByteRange", ErrInvalidPDF, sig.FieldName)
			}
			sig.ByteRange[i] = int64(iv)
		}

		if contents, ok := r.Resolve(sigDict.Get("Contents")).(*generic.StringObject); ok {
			sig.Contents = contents.Value
		}

		sigs = append(sigs, sig)
	}

	return sigs, nil
}

// SignedData returns the bytes covered by the signature.
func (e *EmbeddedSignature) SignedData() ([]byte, error) {
	data := e.reader.data
	br := e.ByteRange
	size := int64(len(data))
	if br[0] < 0 || br[1] < 0 || br[2] < 0 || br[3] < 0 ||
		br[0]+br[1] > size || br[2]+br[3] > size || br[0]+br[1] > br[2] {
		return nil, fmt.Errorf("%w: byte range %v outside document of %d bytes", ErrInvalidPDF, br, size)
	}

	result := make([]byte, 0, br[1]+br[3])
	result = append(result, data[br[0]:br[0]+br[1]]...)
	result = append(result, data[br[2]:br[2]+br[3]]...)
	return result, nil
}

// CoversWholeFile reports whether the signature covers every byte of the
// document except its own /Contents value.
func (e *EmbeddedSignature) CoversWholeFile() bool {
	return e.ByteRange[0] == 0 && e.ByteRange[2]+e.ByteRange[3] == int64(len(e.reader.data))
}

// CoveredRevisionEnd is the document length at the time of signing.
func (e *EmbeddedSignature) CoveredRevisionEnd() int64 {
	return e.ByteRange[2] + e.ByteRange[3]
}

// SubFilter returns the signature sub-filter.
func (e *EmbeddedSignature) SubFilter() string {
	return e.Dictionary.GetName("SubFilter")
}

// SignerName returns /Name.
func (e *EmbeddedSignature) SignerName() string {
	return e.text("Name")
}

// Reason returns /Reason.
func (e *EmbeddedSignature) Reason() string {
	return e.text("Reason")
}

// Location returns /Location.
func (e *EmbeddedSignature) Location() string {
	return e.text("Location")
}

// SigningTime returns the parsed /M entry.
func (e *EmbeddedSignature) SigningTime() (time.Time, bool) {
	s := e.text("M")
	if s == "" {
		return time.Time{}, false
	}
	t, err := generic.ParseDate(s)
	return t, err == nil
}

func (e *EmbeddedSignature) text(key string) string {
	if str, ok := e.reader.Resolve(e.Dictionary.Get(key)).(*generic.StringObject); ok {
		return str.Text()
	}
	return ""
}
