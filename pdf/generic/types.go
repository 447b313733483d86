// Package generic provides the PDF object model used by the reader and writers.
package generic

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
)

// PdfObject is the base interface for all PDF objects.
type PdfObject interface {
	// Write serializes the object to PDF syntax.
	Write(w io.Writer) error
	// Clone creates a deep copy of the object.
	Clone() PdfObject
}

// Reference represents an indirect reference to a PDF object.
type Reference struct {
	ObjectNumber     int
	GenerationNumber int
}

// NewReference creates a new reference.
func NewReference(objNum, genNum int) Reference {
	return Reference{ObjectNumber: objNum, GenerationNumber: genNum}
}

// Write implements PdfObject.
func (r Reference) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d %d R", r.ObjectNumber, r.GenerationNumber)
	return err
}

// Clone implements PdfObject.
func (r Reference) Clone() PdfObject {
	return r
}

// IsZero reports whether the reference points nowhere.
func (r Reference) IsZero() bool {
	return r.ObjectNumber == 0
}

// String returns the string representation.
func (r Reference) String() string {
	return fmt.Sprintf("%d %d R", r.ObjectNumber, r.GenerationNumber)
}

// IndirectObject wraps a PDF object with its object and generation numbers.
type IndirectObject struct {
	ObjectNumber     int
	GenerationNumber int
	Object           PdfObject
}

// NewIndirectObject creates a new indirect object.
func NewIndirectObject(objNum, genNum int, obj PdfObject) *IndirectObject {
	return &IndirectObject{
		ObjectNumber:     objNum,
		GenerationNumber: genNum,
		Object:           obj,
	}
}

// Write implements PdfObject.
func (i *IndirectObject) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%d %d obj\n", i.ObjectNumber, i.GenerationNumber); err != nil {
		return err
	}
	obj := i.Object
	if obj == nil {
		obj = NullObject{}
	}
	if err := obj.Write(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\nendobj\n")
	return err
}

// Clone implements PdfObject.
func (i *IndirectObject) Clone() PdfObject {
	var obj PdfObject
	if i.Object != nil {
		obj = i.Object.Clone()
	}
	return &IndirectObject{
		ObjectNumber:     i.ObjectNumber,
		GenerationNumber: i.GenerationNumber,
		Object:           obj,
	}
}

// Reference returns a reference to this indirect object.
func (i *IndirectObject) Reference() Reference {
	return Reference{ObjectNumber: i.ObjectNumber, GenerationNumber: i.GenerationNumber}
}

// NullObject represents the PDF null value.
type NullObject struct{}

// Write implements PdfObject.
func (n NullObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, "null")
	return err
}

// Clone implements PdfObject.
func (n NullObject) Clone() PdfObject { return n }

// BooleanObject represents a PDF boolean value.
type BooleanObject bool

// Write implements PdfObject.
func (b BooleanObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatBool(bool(b)))
	return err
}

// Clone implements PdfObject.
func (b BooleanObject) Clone() PdfObject { return b }

// IntegerObject represents a PDF integer value.
type IntegerObject int64

// Write implements PdfObject.
func (i IntegerObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatInt(int64(i), 10))
	return err
}

// Clone implements PdfObject.
func (i IntegerObject) Clone() PdfObject { return i }

// RealObject represents a PDF real number.
type RealObject float64

// Write implements PdfObject. PDF has no exponent syntax, so values are
// always written in plain decimal form.
func (r RealObject) Write(w io.Writer) error {
	v := float64(r)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	_, err := io.WriteString(w, s)
	return err
}

// Clone implements PdfObject.
func (r RealObject) Clone() PdfObject { return r }

// NameObject represents a PDF name object (e.g. /Type), stored without the slash.
type NameObject string

var nameEscapeRegex = regexp.MustCompile(`[^!-~]|[#%/\[\]()<>{}]`)

// Write implements PdfObject.
func (n NameObject) Write(w io.Writer) error {
	escaped := nameEscapeRegex.ReplaceAllStringFunc(string(n), func(s string) string {
		return fmt.Sprintf("#%02X", s[0])
	})
	_, err := io.WriteString(w, "/"+escaped)
	return err
}

// Clone implements PdfObject.
func (n NameObject) Clone() PdfObject { return n }

// String returns the name without the leading slash.
func (n NameObject) String() string {
	return string(n)
}

// StringObject represents a PDF string object.
type StringObject struct {
	Value []byte
	IsHex bool
}

// NewLiteralString creates a new literal string.
func NewLiteralString(s string) *StringObject {
	return &StringObject{Value: []byte(s)}
}

// NewHexString creates a new hex string.
func NewHexString(data []byte) *StringObject {
	return &StringObject{Value: data, IsHex: true}
}

// Write implements PdfObject.
func (s *StringObject) Write(w io.Writer) error {
	if s.IsHex {
		_, err := fmt.Fprintf(w, "<%X>", s.Value)
		return err
	}

	var buf bytes.Buffer
	buf.WriteByte('(')
	for _, b := range s.Value {
		switch b {
		case '\\':
			buf.WriteString(`\\`)
		case '(':
			buf.WriteString(`\(`)
		case ')':
			buf.WriteString(`\)`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if b < 32 || b > 126 {
				fmt.Fprintf(&buf, "\\%03o", b)
			} else {
				buf.WriteByte(b)
			}
		}
	}
	buf.WriteByte(')')
	_, err := w.Write(buf.Bytes())
	return err
}

// Clone implements PdfObject.
func (s *StringObject) Clone() PdfObject {
	return &StringObject{Value: bytes.Clone(s.Value), IsHex: s.IsHex}
}

// ArrayObject represents a PDF array.
type ArrayObject []PdfObject

// NewArray creates a new array.
func NewArray(items ...PdfObject) ArrayObject {
	return ArrayObject(items)
}

// Write implements PdfObject.
func (a ArrayObject) Write(w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i, item := range a {
		if i > 0 {
			if _, err := io.WriteString(w, " "); err != nil {
				return err
			}
		}
		if item == nil {
			item = NullObject{}
		}
		if err := item.Write(w); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]")
	return err
}

// Clone implements PdfObject.
func (a ArrayObject) Clone() PdfObject {
	result := make(ArrayObject, len(a))
	for i, item := range a {
		if item != nil {
			result[i] = item.Clone()
		}
	}
	return result
}

// DictionaryObject represents a PDF dictionary. Keys keep insertion order so
// that rewritten objects serialize deterministically.
type DictionaryObject struct {
	entries map[string]PdfObject
	order   []string
}

// NewDictionary creates a new dictionary.
func NewDictionary() *DictionaryObject {
	return &DictionaryObject{
		entries: make(map[string]PdfObject),
	}
}

// Write implements PdfObject.
func (d *DictionaryObject) Write(w io.Writer) error {
	if _, err := io.WriteString(w, "<<"); err != nil {
		return err
	}
	for _, key := range d.order {
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
		if err := NameObject(key).Write(w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, " "); err != nil {
			return err
		}
		val := d.entries[key]
		if val == nil {
			val = NullObject{}
		}
		if err := val.Write(w); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n>>")
	return err
}

// Clone implements PdfObject.
func (d *DictionaryObject) Clone() PdfObject {
	result := NewDictionary()
	for _, key := range d.order {
		var val PdfObject
		if v := d.entries[key]; v != nil {
			val = v.Clone()
		}
		result.Set(key, val)
	}
	return result
}

// Set sets a key-value pair.
func (d *DictionaryObject) Set(key string, value PdfObject) {
	if _, exists := d.entries[key]; !exists {
		d.order = append(d.order, key)
	}
	d.entries[key] = value
}

// Get returns the value for a key, or nil.
func (d *DictionaryObject) Get(key string) PdfObject {
	return d.entries[key]
}

// GetName returns a name value.
func (d *DictionaryObject) GetName(key string) string {
	if name, ok := d.Get(key).(NameObject); ok {
		return string(name)
	}
	return ""
}

// GetInt returns an integer value.
func (d *DictionaryObject) GetInt(key string) (int64, bool) {
	if i, ok := d.Get(key).(IntegerObject); ok {
		return int64(i), true
	}
	return 0, false
}

// GetArray returns a direct array value.
func (d *DictionaryObject) GetArray(key string) ArrayObject {
	if arr, ok := d.Get(key).(ArrayObject); ok {
		return arr
	}
	return nil
}

// GetDict returns a direct dictionary value.
func (d *DictionaryObject) GetDict(key string) *DictionaryObject {
	if dict, ok := d.Get(key).(*DictionaryObject); ok {
		return dict
	}
	return nil
}

// Delete removes a key.
func (d *DictionaryObject) Delete(key string) {
	if _, exists := d.entries[key]; !exists {
		return
	}
	delete(d.entries, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Has returns true if the key exists.
func (d *DictionaryObject) Has(key string) bool {
	_, exists := d.entries[key]
	return exists
}

// Keys returns all keys in insertion order.
func (d *DictionaryObject) Keys() []string {
	return d.order
}

// Len returns the number of entries.
func (d *DictionaryObject) Len() int {
	return len(d.entries)
}

// StreamObject represents a PDF stream. Data holds the bytes exactly as they
// appear in the file (still filtered); Decoded holds the unfiltered bytes when
// they have been computed.
type StreamObject struct {
	Dictionary *DictionaryObject
	Data       []byte
	Decoded    []byte
}

// NewStream creates a new stream holding raw data.
func NewStream(dict *DictionaryObject, data []byte) *StreamObject {
	if dict == nil {
		dict = NewDictionary()
	}
	return &StreamObject{
		Dictionary: dict,
		Data:       data,
	}
}

// Write implements PdfObject. /Length is always rewritten as a direct integer.
func (s *StreamObject) Write(w io.Writer) error {
	s.Dictionary.Set("Length", IntegerObject(len(s.Data)))
	if err := s.Dictionary.Write(w); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\nstream\n"); err != nil {
		return err
	}
	if _, err := w.Write(s.Data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\nendstream")
	return err
}

// Clone implements PdfObject.
func (s *StreamObject) Clone() PdfObject {
	return &StreamObject{
		Dictionary: s.Dictionary.Clone().(*DictionaryObject),
		Data:       bytes.Clone(s.Data),
		Decoded:    bytes.Clone(s.Decoded),
	}
}

// Rectangle represents a PDF rectangle given by two opposite corners.
type Rectangle struct {
	LLX, LLY float64
	URX, URY float64
}

// NewRectangle creates a rectangle from a four element numeric array.
func NewRectangle(arr ArrayObject) (*Rectangle, error) {
	if len(arr) != 4 {
		return nil, fmt.Errorf("rectangle must have 4 elements, got %d", len(arr))
	}

	var values [4]float64
	for i, obj := range arr {
		v, ok := Number(obj)
		if !ok {
			return nil, fmt.Errorf("rectangle element %d must be numeric", i)
		}
		values[i] = v
	}

	return &Rectangle{LLX: values[0], LLY: values[1], URX: values[2], URY: values[3]}, nil
}

// ToArray converts the rectangle to a PDF array, keeping corner order.
func (r Rectangle) ToArray() ArrayObject {
	return ArrayObject{
		RealObject(r.LLX),
		RealObject(r.LLY),
		RealObject(r.URX),
		RealObject(r.URY),
	}
}

// Normalize returns the rectangle with lower-left and upper-right corners ordered.
func (r Rectangle) Normalize() Rectangle {
	return Rectangle{
		LLX: math.Min(r.LLX, r.URX),
		LLY: math.Min(r.LLY, r.URY),
		URX: math.Max(r.LLX, r.URX),
		URY: math.Max(r.LLY, r.URY),
	}
}

// Intersect returns the overlap of two rectangles after normalization.
func (r Rectangle) Intersect(other Rectangle) Rectangle {
	a, b := r.Normalize(), other.Normalize()
	out := Rectangle{
		LLX: math.Max(a.LLX, b.LLX),
		LLY: math.Max(a.LLY, b.LLY),
		URX: math.Min(a.URX, b.URX),
		URY: math.Min(a.URY, b.URY),
	}
	if out.URX < out.LLX {
		out.URX = out.LLX
	}
	if out.URY < out.LLY {
		out.URY = out.LLY
	}
	return out
}

// Width returns the absolute rectangle width.
func (r Rectangle) Width() float64 {
	return math.Abs(r.URX - r.LLX)
}

// Height returns the absolute rectangle height.
func (r Rectangle) Height() float64 {
	return math.Abs(r.URY - r.LLY)
}

// Number extracts a float from an integer or real object.
func Number(obj PdfObject) (float64, bool) {
	switch v := obj.(type) {
	case IntegerObject:
		return float64(v), true
	case RealObject:
		return float64(v), true
	default:
		return 0, false
	}
}

// TrailerDictionary represents the PDF trailer.
type TrailerDictionary struct {
	*DictionaryObject
}

// GetRoot returns the document catalog reference.
func (t *TrailerDictionary) GetRoot() *Reference {
	if ref, ok := t.Get("Root").(Reference); ok {
		return &ref
	}
	return nil
}

// GetInfo returns the document info reference.
func (t *TrailerDictionary) GetInfo() *Reference {
	if ref, ok := t.Get("Info").(Reference); ok {
		return &ref
	}
	return nil
}

// GetSize returns the declared number of xref entries.
func (t *TrailerDictionary) GetSize() int64 {
	if size, ok := t.GetInt("Size"); ok {
		return size
	}
	return 0
}

// GetPrev returns the previous xref offset.
func (t *TrailerDictionary) GetPrev() (int64, bool) {
	return t.GetInt("Prev")
}

// FirstID returns the permanent part of the file identifier, if any.
func (t *TrailerDictionary) FirstID() []byte {
	ids := t.GetArray("ID")
	if len(ids) == 0 {
		return nil
	}
	if s, ok := ids[0].(*StringObject); ok {
		return s.Value
	}
	return nil
}
