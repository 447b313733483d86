// Package testpdf builds small, well-formed PDF documents for tests.
package testpdf

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/georgepadayatti/pdfsign/pdf/filters"
	"github.com/georgepadayatti/pdfsign/pdf/generic"
)

// AcroFormMode controls whether and how the catalog carries an AcroForm.
type AcroFormMode int

const (
	AcroFormNone AcroFormMode = iota
	AcroFormInline
	AcroFormIndirect
)

// Options describes the document to build.
type Options struct {
	Pages    int
	MediaBox generic.Rectangle
	// Rotate is set on the Pages node and inherited by every page.
	Rotate int
	// CropBox, when non-zero, is set on the first page only.
	CropBox generic.Rectangle
	Version string

	// XRefStream writes a cross-reference stream instead of a table.
	XRefStream bool
	// ObjectStreams packs the page dictionaries into an object stream.
	// Implies XRefStream.
	ObjectStreams bool
	// IndirectLength writes content stream lengths as indirect objects.
	IndirectLength bool
	// IndirectAnnots gives the first page an indirect, empty /Annots array.
	IndirectAnnots bool
	AcroForm       AcroFormMode
	// Encrypt adds a dummy /Encrypt entry to the trailer.
	Encrypt bool
}

// DocumentID is the first file identifier written into every fixture.
var DocumentID = []byte("pdfsign-fixture!")

type builder struct {
	objects    map[int]generic.PdfObject
	next       int
	offsets    map[int]int64
	compressed map[int][2]int
}

func (b *builder) add(obj generic.PdfObject) generic.Reference {
	num := b.next
	b.next++
	b.objects[num] = obj
	return generic.NewReference(num, 0)
}

func (b *builder) set(ref generic.Reference, obj generic.PdfObject) {
	b.objects[ref.ObjectNumber] = obj
}

func (b *builder) reserve() generic.Reference {
	return b.add(generic.NullObject{})
}

// Build renders the document described by opts.
func Build(opts Options) []byte {
	if opts.Pages <= 0 {
		opts.Pages = 1
	}
	if opts.MediaBox == (generic.Rectangle{}) {
		opts.MediaBox = generic.Rectangle{URX: 600, URY: 800}
	}
	if opts.Version == "" {
		opts.Version = "1.4"
	}
	if opts.ObjectStreams {
		opts.XRefStream = true
	}

	b := &builder{
		objects:    make(map[int]generic.PdfObject),
		next:       1,
		offsets:    make(map[int]int64),
		compressed: make(map[int][2]int),
	}

	catalogRef := b.reserve()
	pagesRef := b.reserve()

	font := generic.NewDictionary()
	font.Set("Type", generic.NameObject("Font"))
	font.Set("Subtype", generic.NameObject("Type1"))
	font.Set("BaseFont", generic.NameObject("Helvetica"))
	fontRef := b.add(font)

	fonts := generic.NewDictionary()
	fonts.Set("F1", fontRef)
	resources := generic.NewDictionary()
	resources.Set("Font", fonts)

	var pageRefs []generic.Reference
	var kids generic.ArrayObject
	for i := 0; i < opts.Pages; i++ {
		content := []byte(fmt.Sprintf("BT /F1 24 Tf 72 700 Td (Page %d) Tj ET", i+1))
		var stream generic.PdfObject = generic.NewStream(nil, content)
		if opts.IndirectLength {
			lengthRef := b.add(generic.IntegerObject(len(content)))
			stream = &lengthPreservingStream{StreamObject: stream.(*generic.StreamObject), length: lengthRef}
		}
		contentRef := b.add(stream)

		page := generic.NewDictionary()
		page.Set("Type", generic.NameObject("Page"))
		page.Set("Parent", pagesRef)
		page.Set("Contents", contentRef)
		if i == 0 && opts.CropBox != (generic.Rectangle{}) {
			page.Set("CropBox", opts.CropBox.ToArray())
		}
		if i == 0 && opts.IndirectAnnots {
			page.Set("Annots", b.add(generic.ArrayObject{}))
		}
		pageRef := b.add(page)
		pageRefs = append(pageRefs, pageRef)
		kids = append(kids, pageRef)
	}

	pages := generic.NewDictionary()
	pages.Set("Type", generic.NameObject("Pages"))
	pages.Set("Kids", kids)
	pages.Set("Count", generic.IntegerObject(opts.Pages))
	pages.Set("MediaBox", opts.MediaBox.ToArray())
	pages.Set("Resources", resources)
	if opts.Rotate != 0 {
		pages.Set("Rotate", generic.IntegerObject(opts.Rotate))
	}
	b.set(pagesRef, pages)

	catalog := generic.NewDictionary()
	catalog.Set("Type", generic.NameObject("Catalog"))
	catalog.Set("Pages", pagesRef)
	switch opts.AcroForm {
	case AcroFormInline:
		form := generic.NewDictionary()
		form.Set("Fields", generic.ArrayObject{})
		catalog.Set("AcroForm", form)
	case AcroFormIndirect:
		form := generic.NewDictionary()
		form.Set("Fields", generic.ArrayObject{})
		catalog.Set("AcroForm", b.add(form))
	}
	b.set(catalogRef, catalog)

	info := generic.NewDictionary()
	info.Set("Producer", generic.NewLiteralString("pdfsign testpdf"))
	infoRef := b.add(info)

	if opts.ObjectStreams {
		b.packObjectStream(pageRefs)
	}

	var buf bytes.Buffer
	w := generic.NewOffsetWriter(&buf, 0)
	fmt.Fprintf(w, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", opts.Version)

	nums := make([]int, 0, len(b.objects))
	for num := range b.objects {
		if _, packed := b.compressed[num]; !packed {
			nums = append(nums, num)
		}
	}
	sort.Ints(nums)
	for _, num := range nums {
		b.offsets[num] = w.Offset()
		generic.NewIndirectObject(num, 0, b.objects[num]).Write(w)
	}

	trailer := generic.NewDictionary()
	trailer.Set("Root", catalogRef)
	trailer.Set("Info", infoRef)
	trailer.Set("ID", generic.NewArray(generic.NewHexString(DocumentID), generic.NewHexString(DocumentID)))
	if opts.Encrypt {
		enc := generic.NewDictionary()
		enc.Set("Filter", generic.NameObject("Standard"))
		trailer.Set("Encrypt", enc)
	}

	xrefOffset := w.Offset()
	if opts.XRefStream {
		b.writeXRefStream(w, trailer, xrefOffset)
	} else {
		b.writeXRefTable(w, trailer)
	}
	fmt.Fprintf(w, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	return buf.Bytes()
}

func (b *builder) packObjectStream(refs []generic.Reference) {
	var header, body bytes.Buffer
	for i, ref := range refs {
		fmt.Fprintf(&header, "%d %d ", ref.ObjectNumber, body.Len())
		b.objects[ref.ObjectNumber].Write(&body)
		body.WriteByte('\n')
		b.compressed[ref.ObjectNumber] = [2]int{0, i}
	}

	dict := generic.NewDictionary()
	dict.Set("Type", generic.NameObject("ObjStm"))
	dict.Set("N", generic.IntegerObject(len(refs)))
	dict.Set("First", generic.IntegerObject(header.Len()))
	stream, err := filters.NewFlateStream(dict, append(header.Bytes(), body.Bytes()...), nil)
	if err != nil {
		panic(err)
	}
	ref := b.add(stream)
	for num, loc := range b.compressed {
		b.compressed[num] = [2]int{ref.ObjectNumber, loc[1]}
	}
}

func (b *builder) writeXRefTable(w *generic.OffsetWriter, trailer *generic.DictionaryObject) {
	size := b.next
	fmt.Fprintf(w, "xref\n0 %d\n", size)
	fmt.Fprint(w, "0000000000 65535 f\r\n")
	for num := 1; num < size; num++ {
		fmt.Fprintf(w, "%010d 00000 n\r\n", b.offsets[num])
	}
	trailer.Set("Size", generic.IntegerObject(size))
	fmt.Fprint(w, "trailer\n")
	trailer.Write(w)
	fmt.Fprint(w, "\n")
}

func (b *builder) writeXRefStream(w *generic.OffsetWriter, trailer *generic.DictionaryObject, offset int64) {
	xrefNum := b.next
	size := xrefNum + 1
	b.offsets[xrefNum] = offset

	var rows bytes.Buffer
	for num := 0; num < size; num++ {
		switch loc, packed := b.compressed[num]; {
		case num == 0:
			rows.Write([]byte{0, 0, 0, 0, 0, 0xFF, 0xFF})
		case packed:
			rows.Write([]byte{2, byte(loc[0] >> 24), byte(loc[0] >> 16), byte(loc[0] >> 8), byte(loc[0]), byte(loc[1] >> 8), byte(loc[1])})
		default:
			off := b.offsets[num]
			rows.Write([]byte{1, byte(off >> 24), byte(off >> 16), byte(off >> 8), byte(off), 0, 0})
		}
	}

	trailer.Set("Type", generic.NameObject("XRef"))
	trailer.Set("Size", generic.IntegerObject(size))
	trailer.Set("W", generic.NewArray(generic.IntegerObject(1), generic.IntegerObject(4), generic.IntegerObject(2)))
	stream, err := filters.NewFlateStream(trailer, rows.Bytes(), &filters.Params{Predictor: 12, Columns: 7})
	if err != nil {
		panic(err)
	}
	generic.NewIndirectObject(xrefNum, 0, stream).Write(w)
}

// lengthPreservingStream keeps an indirect /Length reference when written.
type lengthPreservingStream struct {
	*generic.StreamObject
	length generic.Reference
}

func (s *lengthPreservingStream) Write(w io.Writer) error {
	s.Dictionary.Set("Length", s.length)
	if err := s.Dictionary.Write(w); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\nstream\n")); err != nil {
		return err
	}
	if _, err := w.Write(s.Data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\nendstream"))
	return err
}
