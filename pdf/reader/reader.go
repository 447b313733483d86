// Package reader opens existing PDF documents: it follows the cross-reference
// chain, resolves objects (including those packed in object streams) and
// exposes the page tree with inherited geometry.
package reader

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"

	"github.com/georgepadayatti/pdfsign/pdf/filters"
	"github.com/georgepadayatti/pdfsign/pdf/generic"
)

// Common errors
var (
	ErrPdfParse       = errors.New("PDF parse error")
	ErrInvalidPDF     = errors.New("invalid PDF file")
	ErrNoXRef         = errors.New("no xref found")
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidXRef    = errors.New("invalid xref")
	ErrEncrypted      = errors.New("encrypted PDF documents are not supported")
	ErrPageOutOfRange = errors.New("page index out of range")
)

// PdfFileReader is a parsed, read-only view of a PDF document.
type PdfFileReader struct {
	data []byte

	// Version is the version declared in the file header.
	Version string
	// Trailer is the trailer of the newest revision.
	Trailer *generic.TrailerDictionary
	XRef    map[int]*XRefEntry

	Root     *generic.DictionaryObject
	RootRef  generic.Reference
	Info     *generic.DictionaryObject
	Pages    []*Page
	AcroForm *generic.DictionaryObject

	// XRefOffsets lists the xref sections from newest to oldest.
	XRefOffsets []int64
	Trailers    []*generic.TrailerDictionary
	// NewestXRefIsStream reports whether the newest section is an xref stream.
	NewestXRefIsStream bool

	objects    map[int]generic.PdfObject
	objStreams map[int]*objectStream
	resolving  map[int]bool
}

// Open parses a complete PDF document held in memory. Failures wrap
// ErrPdfParse.
func Open(data []byte) (*PdfFileReader, error) {
	r := &PdfFileReader{
		data:       data,
		XRef:       make(map[int]*XRefEntry),
		objects:    make(map[int]generic.PdfObject),
		objStreams: make(map[int]*objectStream),
		resolving:  make(map[int]bool),
	}

	if err := r.parse(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPdfParse, err)
	}
	return r, nil
}

// OpenReader reads r fully and parses it.
func OpenReader(rd io.Reader) (*PdfFileReader, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF data: %w", err)
	}
	return Open(data)
}

func (r *PdfFileReader) parse() error {
	if err := r.parseHeader(); err != nil {
		return err
	}
	if err := r.findAndParseXRef(); err != nil {
		return err
	}
	if r.Trailer.Has("Encrypt") {
		return ErrEncrypted
	}
	return r.loadDocumentStructure()
}

var headerRegex = regexp.MustCompile(`%PDF-(\d+\.\d+)`)

func (r *PdfFileReader) parseHeader() error {
	if len(r.data) < 8 {
		return fmt.Errorf("%w: file too short", ErrInvalidPDF)
	}

	match := headerRegex.FindSubmatch(r.data[:min(1024, len(r.data))])
	if match == nil {
		return fmt.Errorf("%w: missing PDF header", ErrInvalidPDF)
	}

	r.Version = string(match[1])
	return nil
}

// Data returns the raw document bytes. The slice must not be modified.
func (r *PdfFileReader) Data() []byte {
	return r.data
}

// Len returns the document length in bytes.
func (r *PdfFileReader) Len() int64 {
	return int64(len(r.data))
}

func (r *PdfFileReader) loadDocumentStructure() error {
	rootRef := r.Trailer.GetRoot()
	if rootRef == nil {
		return fmt.Errorf("%w: missing Root", ErrInvalidPDF)
	}
	r.RootRef = *rootRef

	root, err := r.GetDict(*rootRef)
	if err != nil {
		return fmt.Errorf("failed to load Root: %w", err)
	}
	r.Root = root

	if infoRef := r.Trailer.GetInfo(); infoRef != nil {
		if info, err := r.GetDict(*infoRef); err == nil {
			r.Info = info
		}
	}

	if err := r.loadPages(); err != nil {
		return fmt.Errorf("failed to load pages: %w", err)
	}

	if form, ok := r.Resolve(r.Root.Get("AcroForm")).(*generic.DictionaryObject); ok {
		r.AcroForm = form
	}

	return nil
}

// GetObject retrieves an object by object number.
func (r *PdfFileReader) GetObject(objNum int) (generic.PdfObject, error) {
	if obj, ok := r.objects[objNum]; ok {
		return obj, nil
	}

	entry, ok := r.XRef[objNum]
	if !ok || !entry.InUse {
		return nil, fmt.Errorf("%w: object %d", ErrObjectNotFound, objNum)
	}

	if r.resolving[objNum] {
		return nil, fmt.Errorf("%w: circular reference to object %d", ErrInvalidPDF, objNum)
	}
	r.resolving[objNum] = true
	defer delete(r.resolving, objNum)

	var obj generic.PdfObject
	var err error
	if entry.InStream {
		obj, err = r.getObjectFromStream(entry.StreamObjNum, entry.IndexInStream)
	} else {
		obj, err = r.getObjectAtOffset(objNum, entry.Offset)
	}
	if err != nil {
		return nil, err
	}

	r.objects[objNum] = obj
	return obj, nil
}

// GetDict retrieves an object that must be a dictionary.
func (r *PdfFileReader) GetDict(ref generic.Reference) (*generic.DictionaryObject, error) {
	obj, err := r.GetObject(ref.ObjectNumber)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(*generic.DictionaryObject)
	if !ok {
		return nil, fmt.Errorf("%w: object %d is %T, not a dictionary", ErrInvalidPDF, ref.ObjectNumber, obj)
	}
	return dict, nil
}

// Resolve follows an indirect reference. Direct objects are returned as is
// and unresolvable references yield nil.
func (r *PdfFileReader) Resolve(obj generic.PdfObject) generic.PdfObject {
	ref, ok := obj.(generic.Reference)
	if !ok {
		return obj
	}
	resolved, err := r.GetObject(ref.ObjectNumber)
	if err != nil {
		return nil
	}
	return resolved
}

// ResolveArray resolves obj to an array, or nil.
func (r *PdfFileReader) ResolveArray(obj generic.PdfObject) generic.ArrayObject {
	arr, _ := r.Resolve(obj).(generic.ArrayObject)
	return arr
}

// LiveObjectNumbers returns the numbers of all in-use objects, ascending.
func (r *PdfFileReader) LiveObjectNumbers() []int {
	nums := make([]int, 0, len(r.XRef))
	for num, entry := range r.XRef {
		if entry.InUse && num > 0 {
			nums = append(nums, num)
		}
	}
	slices.Sort(nums)
	return nums
}

// MaxObjectNumber returns the highest object number known to the xref.
func (r *PdfFileReader) MaxObjectNumber() int {
	highest := 0
	for num := range r.XRef {
		highest = max(highest, num)
	}
	if size := int(r.Trailer.GetSize()); size-1 > highest {
		highest = size - 1
	}
	return highest
}

func (r *PdfFileReader) getObjectAtOffset(objNum int, offset int64) (generic.PdfObject, error) {
	if offset <= 0 || offset >= int64(len(r.data)) {
		return nil, fmt.Errorf("%w: object %d offset %d out of bounds", ErrObjectNotFound, objNum, offset)
	}

	parser := generic.NewParserAt(r.data, offset)
	parser.ResolveLength = r.resolveLength
	indirect, err := parser.ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", objNum, err)
	}
	if indirect.ObjectNumber != objNum {
		return nil, fmt.Errorf("%w: xref points object %d at object %d", ErrInvalidXRef, objNum, indirect.ObjectNumber)
	}
	return indirect.Object, nil
}

func (r *PdfFileReader) resolveLength(ref generic.Reference) (int64, bool) {
	obj, err := r.GetObject(ref.ObjectNumber)
	if err != nil {
		return 0, false
	}
	n, ok := obj.(generic.IntegerObject)
	return int64(n), ok
}

// objectStream is a decoded /Type /ObjStm stream with its offset table.
type objectStream struct {
	data    []byte
	first   int
	offsets []int
}

func (r *PdfFileReader) loadObjectStream(streamObjNum int) (*objectStream, error) {
	if stm, ok := r.objStreams[streamObjNum]; ok {
		return stm, nil
	}

	obj, err := r.GetObject(streamObjNum)
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*generic.StreamObject)
	if !ok {
		return nil, fmt.Errorf("%w: object stream %d is not a stream", ErrInvalidPDF, streamObjNum)
	}

	data, err := filters.Decode(stream)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", streamObjNum, err)
	}

	n, _ := stream.Dictionary.GetInt("N")
	first, _ := stream.Dictionary.GetInt("First")
	if first < 0 || first > int64(len(data)) {
		return nil, fmt.Errorf("%w: object stream %d has bad /First", ErrInvalidPDF, streamObjNum)
	}

	stm := &objectStream{data: data, first: int(first)}
	parser := generic.NewParser(data[:first])
	for i := int64(0); i < n; i++ {
		if _, err := parser.ParseObject(); err != nil {
			break
		}
		offObj, err := parser.ParseObject()
		if err != nil {
			break
		}
		off, _ := offObj.(generic.IntegerObject)
		stm.offsets = append(stm.offsets, int(off))
	}

	r.objStreams[streamObjNum] = stm
	return stm, nil
}

func (r *PdfFileReader) getObjectFromStream(streamObjNum, index int) (generic.PdfObject, error) {
	stm, err := r.loadObjectStream(streamObjNum)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(stm.offsets) {
		return nil, fmt.Errorf("%w: index %d out of bounds in object stream %d", ErrObjectNotFound, index, streamObjNum)
	}

	pos := stm.first + stm.offsets[index]
	if pos >= len(stm.data) {
		return nil, fmt.Errorf("%w: offset out of bounds in object stream %d", ErrInvalidPDF, streamObjNum)
	}
	return generic.NewParserAt(stm.data, int64(pos)).ParseObjectOrReference()
}

// DecodeStream returns the unfiltered bytes of a stream.
func (r *PdfFileReader) DecodeStream(stream *generic.StreamObject) ([]byte, error) {
	if filter, ok := stream.Dictionary.Get("Filter").(generic.Reference); ok {
		stream.Dictionary.Set("Filter", r.Resolve(filter))
	}
	if parms, ok := stream.Dictionary.Get("DecodeParms").(generic.Reference); ok {
		stream.Dictionary.Set("DecodeParms", r.Resolve(parms))
	}
	return filters.Decode(stream)
}

// IsSigned reports whether the document already carries a signature field
// with a value.
func (r *PdfFileReader) IsSigned() bool {
	sigs, err := r.EmbeddedSignatures()
	return err == nil && len(sigs) > 0
}
