// Package writer produces new revisions of parsed PDF documents, either as an
// incremental update appended to the original bytes or as a full rewrite.
package writer

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/georgepadayatti/pdfsign/pdf/generic"
	"github.com/georgepadayatti/pdfsign/pdf/reader"
)

// Common errors
var (
	ErrNoRoot        = errors.New("document has no catalog")
	ErrInvalidObject = errors.New("unexpected object type")
)

// Revision is a pending revision of a document. Objects are read through it
// so that pending modifications shadow the source.
type Revision interface {
	Source() *reader.PdfFileReader
	GetObject(objNum int) (generic.PdfObject, error)
	Resolve(obj generic.PdfObject) generic.PdfObject
	AddObject(obj generic.PdfObject) generic.Reference
	UpdateObject(objNum int, obj generic.PdfObject)
	MarkUpdate(ref generic.Reference) (generic.PdfObject, error)
	EditDict(ref generic.Reference) (*generic.DictionaryObject, error)
	GetRoot() (*generic.DictionaryObject, error)
	RootRef() generic.Reference
	EnsureOutputVersion(version string) error
	Write(out io.Writer) error
}

// objectTable holds the objects added or changed in a revision.
type objectTable struct {
	// Reader is the source document.
	Reader *reader.PdfFileReader

	// Objects holds new and modified objects by object number.
	Objects map[int]*generic.IndirectObject

	nextObjNum int
	rootRef    generic.Reference
	infoRef    *generic.Reference
	documentID generic.ArrayObject
}

func newObjectTable(r *reader.PdfFileReader) objectTable {
	t := objectTable{
		Reader:     r,
		Objects:    make(map[int]*generic.IndirectObject),
		nextObjNum: r.MaxObjectNumber() + 1,
		rootRef:    r.RootRef,
		documentID: handleDocumentID(r),
	}
	if info := r.Trailer.GetInfo(); info != nil {
		t.infoRef = info
	}
	return t
}

// handleDocumentID keeps the permanent part of the file identifier and
// generates a fresh second part for the new revision.
func handleDocumentID(r *reader.PdfFileReader) generic.ArrayObject {
	id2 := make([]byte, 16)
	rand.Read(id2)

	id1 := r.Trailer.FirstID()
	if id1 == nil {
		id1 = make([]byte, 16)
		rand.Read(id1)
	}

	return generic.ArrayObject{generic.NewHexString(id1), generic.NewHexString(id2)}
}

// Source returns the document the revision is based on.
func (t *objectTable) Source() *reader.PdfFileReader {
	return t.Reader
}

// RootRef returns the catalog reference.
func (t *objectTable) RootRef() generic.Reference {
	return t.rootRef
}

// GetObject retrieves an object by number, preferring pending versions.
func (t *objectTable) GetObject(objNum int) (generic.PdfObject, error) {
	if obj, ok := t.Objects[objNum]; ok {
		return obj.Object, nil
	}
	return t.Reader.GetObject(objNum)
}

// Resolve follows a reference through the revision. Unresolvable references
// yield nil.
func (t *objectTable) Resolve(obj generic.PdfObject) generic.PdfObject {
	ref, ok := obj.(generic.Reference)
	if !ok {
		return obj
	}
	resolved, err := t.GetObject(ref.ObjectNumber)
	if err != nil {
		return nil
	}
	return resolved
}

// GetRoot returns the document catalog as currently seen by the revision.
func (t *objectTable) GetRoot() (*generic.DictionaryObject, error) {
	if t.rootRef.IsZero() {
		return nil, ErrNoRoot
	}
	obj, err := t.GetObject(t.rootRef.ObjectNumber)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(*generic.DictionaryObject)
	if !ok {
		return nil, fmt.Errorf("%w: catalog is %T", ErrInvalidObject, obj)
	}
	return dict, nil
}

// AddObject adds a new object and returns its reference.
func (t *objectTable) AddObject(obj generic.PdfObject) generic.Reference {
	objNum := t.nextObjNum
	t.nextObjNum++
	t.Objects[objNum] = generic.NewIndirectObject(objNum, 0, obj)
	return generic.NewReference(objNum, 0)
}

// UpdateObject replaces an existing object in the revision.
func (t *objectTable) UpdateObject(objNum int, obj generic.PdfObject) {
	gen := 0
	if entry := t.Reader.XRef[objNum]; entry != nil && !entry.InStream {
		gen = entry.Generation
	}
	t.Objects[objNum] = generic.NewIndirectObject(objNum, gen, obj)
}

// MarkUpdate schedules an object for rewriting and returns the copy that
// will be written. Changes to the returned object end up in the output.
func (t *objectTable) MarkUpdate(ref generic.Reference) (generic.PdfObject, error) {
	if obj, ok := t.Objects[ref.ObjectNumber]; ok {
		return obj.Object, nil
	}
	obj, err := t.Reader.GetObject(ref.ObjectNumber)
	if err != nil {
		return nil, err
	}
	obj = obj.Clone()
	t.UpdateObject(ref.ObjectNumber, obj)
	return obj, nil
}

// EditDict is MarkUpdate for dictionaries.
func (t *objectTable) EditDict(ref generic.Reference) (*generic.DictionaryObject, error) {
	obj, err := t.MarkUpdate(ref)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(*generic.DictionaryObject)
	if !ok {
		return nil, fmt.Errorf("%w: object %d is %T, not a dictionary", ErrInvalidObject, ref.ObjectNumber, obj)
	}
	return dict, nil
}

// structuralTrailerKeys are recomputed for every revision and never copied
// from the source trailer.
var structuralTrailerKeys = map[string]bool{
	"Size": true, "Prev": true, "Root": true, "Info": true, "ID": true,
	"XRefStm": true, "Type": true, "W": true, "Index": true,
	"Filter": true, "DecodeParms": true, "Length": true, "Encrypt": true,
}

// populateTrailer fills the trailer entries shared by both writers.
func (t *objectTable) populateTrailer(size int) *generic.DictionaryObject {
	trailer := generic.NewDictionary()
	trailer.Set("Size", generic.IntegerObject(size))
	trailer.Set("Root", t.rootRef)
	if t.infoRef != nil {
		trailer.Set("Info", *t.infoRef)
	}
	trailer.Set("ID", t.documentID)

	extra := t.Reader.Trailer.Clone().(*generic.DictionaryObject)
	for key := range structuralTrailerKeys {
		extra.Delete(key)
	}
	for _, key := range extra.Keys() {
		trailer.Set(key, extra.Get(key))
	}
	return trailer
}

// writeObjects serializes objs in object number order and returns the xref
// entries describing where each one landed.
func writeObjects(w *generic.OffsetWriter, objs map[int]*generic.IndirectObject) ([]xrefEntry, error) {
	nums := make([]int, 0, len(objs))
	for num := range objs {
		nums = append(nums, num)
	}
	slices.Sort(nums)

	entries := make([]xrefEntry, 0, len(nums))
	for _, num := range nums {
		obj := objs[num]
		entries = append(entries, xrefEntry{
			objNum: num,
			offset: w.Offset(),
			gen:    obj.GenerationNumber,
		})
		if err := obj.Write(w); err != nil {
			return nil, fmt.Errorf("failed to write object %d: %w", num, err)
		}
	}
	return entries, nil
}

func writeStartXRef(w io.Writer, offset int64) error {
	_, err := fmt.Fprintf(w, "startxref\n%d\n%%%%EOF\n", offset)
	return err
}

var (
	_ Revision = (*IncrementalWriter)(nil)
	_ Revision = (*RewriteWriter)(nil)
)
