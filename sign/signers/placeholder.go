package signers

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/georgepadayatti/pdfsign/pdf/generic"
)

// DefaultSignatureSize is the number of bytes reserved for the CMS object.
const DefaultSignatureSize = 8192

// byteRangeFormat renders /ByteRange with a fixed width so that the array can
// be patched in place once the final offsets are known.
const byteRangeFormat = "[%010d %010d %010d %010d]"

// ByteRangeArrayPlaceholderLength is the serialized length of /ByteRange.
var ByteRangeArrayPlaceholderLength = len(fmt.Sprintf(byteRangeFormat, 0, 0, 0, 0))

var errNoOffset = errors.New("placeholder was not written through an offset-tracking writer")

// SigByteRangeObject is the /ByteRange value of a signature dictionary. It
// writes a zero-filled array and remembers where it landed.
type SigByteRangeObject struct {
	offset int64
	Ranges ByteRanges
}

// NewSigByteRangeObject creates a new ByteRange placeholder.
func NewSigByteRangeObject() *SigByteRangeObject {
	return &SigByteRangeObject{offset: -1}
}

// Write implements generic.PdfObject.
func (s *SigByteRangeObject) Write(w io.Writer) error {
	s.offset = -1
	if o, ok := w.(generic.Offsetter); ok {
		s.offset = o.Offset()
	}
	_, err := io.WriteString(w, s.format())
	return err
}

// Clone implements generic.PdfObject. Placeholders keep their identity.
func (s *SigByteRangeObject) Clone() generic.PdfObject {
	return s
}

func (s *SigByteRangeObject) format() string {
	r := s.Ranges
	return fmt.Sprintf(byteRangeFormat, r[0], r[1], r[2], r[3])
}

// Fill records ranges and patches them into buf at the placeholder's offset.
func (s *SigByteRangeObject) Fill(buf []byte, ranges ByteRanges) error {
	if s.offset < 0 {
		return errNoOffset
	}
	s.Ranges = ranges
	repr := s.format()
	if len(repr) != ByteRangeArrayPlaceholderLength {
		return fmt.Errorf("%w: byte range %v does not fit the placeholder", ErrInvalidByteRange, ranges)
	}
	end := s.offset + int64(len(repr))
	if end > int64(len(buf)) {
		return fmt.Errorf("%w: placeholder at %d outside buffer", ErrInvalidByteRange, s.offset)
	}
	copy(buf[s.offset:end], repr)
	return nil
}

// DERPlaceholder is the /Contents value of a signature dictionary: a hex
// string of zeros large enough to hold the CMS object.
type DERPlaceholder struct {
	size  int
	start int64
	end   int64
}

// NewDERPlaceholder reserves room for bytesReserved bytes of DER.
func NewDERPlaceholder(bytesReserved int) *DERPlaceholder {
	if bytesReserved <= 0 {
		bytesReserved = DefaultSignatureSize
	}
	return &DERPlaceholder{size: bytesReserved, start: -1, end: -1}
}

// Size returns the number of reserved bytes.
func (d *DERPlaceholder) Size() int {
	return d.size
}

// Write implements generic.PdfObject.
func (d *DERPlaceholder) Write(w io.Writer) error {
	d.start, d.end = -1, -1
	o, tracked := w.(generic.Offsetter)
	var start int64
	if tracked {
		start = o.Offset()
	}
	n, err := io.WriteString(w, "<"+strings.Repeat("0", 2*d.size)+">")
	if err != nil {
		return err
	}
	if tracked {
		d.start, d.end = start, start+int64(n)
	}
	return nil
}

// Clone implements generic.PdfObject. Placeholders keep their identity.
func (d *DERPlaceholder) Clone() generic.PdfObject {
	return d
}

// Offsets returns the offsets of the opening '<' and one past the closing
// '>' from the last write.
func (d *DERPlaceholder) Offsets() (int64, int64, error) {
	if d.start < 0 {
		return 0, 0, errNoOffset
	}
	return d.start, d.end, nil
}

// BuildProps contains entries in a signature build properties dictionary.
type BuildProps struct {
	// Name is the application's name.
	Name string

	// Revision is the application's revision ID string (REx entry).
	Revision string
}

// AsPdfObject renders the build properties as a PDF dictionary.
func (b *BuildProps) AsPdfObject() *generic.DictionaryObject {
	props := generic.NewDictionary()
	props.Set("Name", generic.NameObject(b.Name))
	if b.Revision != "" {
		props.Set("REx", generic.NewTextString(b.Revision))
	}
	return props
}
