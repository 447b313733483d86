package reader

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/georgepadayatti/pdfsign/pdf/filters"
	"github.com/georgepadayatti/pdfsign/pdf/generic"
)

// XRefEntry represents an entry in the cross-reference table.
type XRefEntry struct {
	Offset     int64
	Generation int
	InUse      bool

	// InStream marks objects stored in an object stream.
	InStream      bool
	StreamObjNum  int
	IndexInStream int
}

// xrefSection is the content of one cross-reference section before it is
// merged into the document-wide table.
type xrefSection struct {
	entries map[int]*XRefEntry
	trailer *generic.TrailerDictionary
	stream  bool
}

func (r *PdfFileReader) findAndParseXRef() error {
	startxrefPos := bytes.LastIndex(r.data, []byte("startxref"))
	if startxrefPos == -1 {
		return ErrNoXRef
	}

	p := generic.NewParserAt(r.data, int64(startxrefPos+len("startxref")))
	obj, err := p.ParseObject()
	if err != nil {
		return fmt.Errorf("%w: missing xref offset", ErrInvalidXRef)
	}
	offset, ok := obj.(generic.IntegerObject)
	if !ok {
		return fmt.Errorf("%w: xref offset is not an integer", ErrInvalidXRef)
	}

	return r.parseXRefChain(int64(offset))
}

// parseXRefChain walks the /Prev chain from the newest section. Entries from
// newer sections shadow older ones.
func (r *PdfFileReader) parseXRefChain(offset int64) error {
	visited := make(map[int64]bool)

	for first := true; ; first = false {
		if visited[offset] {
			break
		}
		visited[offset] = true

		if offset < 0 || offset >= int64(len(r.data)) {
			return fmt.Errorf("%w: xref offset %d out of bounds", ErrInvalidXRef, offset)
		}

		section, err := r.parseXRefSection(offset)
		if err != nil {
			return err
		}

		// A hybrid file points at a stream holding the compressed entries.
		if stmOffset, ok := section.trailer.GetInt("XRefStm"); ok && !section.stream {
			hybrid, err := r.parseXRefStream(stmOffset)
			if err != nil {
				return fmt.Errorf("hybrid xref stream: %w", err)
			}
			for num, entry := range hybrid.entries {
				if existing, ok := section.entries[num]; !ok || !existing.InUse {
					section.entries[num] = entry
				}
			}
		}

		for num, entry := range section.entries {
			if _, exists := r.XRef[num]; !exists {
				r.XRef[num] = entry
			}
		}

		r.XRefOffsets = append(r.XRefOffsets, offset)
		r.Trailers = append(r.Trailers, section.trailer)
		if first {
			r.Trailer = section.trailer
			r.NewestXRefIsStream = section.stream
		}

		prev, ok := section.trailer.GetPrev()
		if !ok {
			break
		}
		offset = prev
	}

	return nil
}

func (r *PdfFileReader) parseXRefSection(offset int64) (*xrefSection, error) {
	pos := int(offset)
	for pos < len(r.data) && generic.IsWhitespace(r.data[pos]) {
		pos++
	}
	if bytes.HasPrefix(r.data[pos:], []byte("xref")) {
		return r.parseXRefTable(pos)
	}
	return r.parseXRefStream(int64(pos))
}

// parseXRefTable parses a classic table starting at the "xref" keyword.
func (r *PdfFileReader) parseXRefTable(pos int) (*xrefSection, error) {
	section := &xrefSection{entries: make(map[int]*XRefEntry)}
	p := generic.NewParserAt(r.data, int64(pos+len("xref")))

	for {
		p.SkipWhitespace()
		if bytes.HasPrefix(r.data[p.Pos():], []byte("trailer")) {
			p.SetPos(p.Pos() + int64(len("trailer")))
			break
		}

		startObj, count, err := r.parseXRefSubsectionHeader(p)
		if err != nil {
			return nil, err
		}

		for i := 0; i < count; i++ {
			entry, err := r.parseXRefEntry(p)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", startObj+i, err)
			}
			section.entries[startObj+i] = entry
		}
	}

	obj, err := p.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("failed to parse trailer: %w", err)
	}
	dict, ok := obj.(*generic.DictionaryObject)
	if !ok {
		return nil, fmt.Errorf("%w: trailer must be dictionary", ErrInvalidXRef)
	}

	section.trailer = &generic.TrailerDictionary{DictionaryObject: dict}
	return section, nil
}

func (r *PdfFileReader) parseXRefSubsectionHeader(p *generic.Parser) (int, int, error) {
	start, err := strconv.Atoi(p.ReadToken())
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad subsection start", ErrInvalidXRef)
	}
	count, err := strconv.Atoi(p.ReadToken())
	if err != nil || count < 0 {
		return 0, 0, fmt.Errorf("%w: bad subsection count", ErrInvalidXRef)
	}
	return start, count, nil
}

// parseXRefEntry reads "nnnnnnnnnn ggggg n". Entries are parsed by token
// rather than fixed width so that sloppy end-of-line handling is tolerated.
func (r *PdfFileReader) parseXRefEntry(p *generic.Parser) (*XRefEntry, error) {
	offset, err := strconv.ParseInt(p.ReadToken(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid offset: %v", ErrInvalidXRef, err)
	}
	gen, err := strconv.Atoi(p.ReadToken())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid generation: %v", ErrInvalidXRef, err)
	}

	switch status := p.ReadToken(); status {
	case "n":
		return &XRefEntry{Offset: offset, Generation: gen, InUse: true}, nil
	case "f":
		return &XRefEntry{Offset: offset, Generation: gen}, nil
	default:
		return nil, fmt.Errorf("%w: invalid entry type %q", ErrInvalidXRef, status)
	}
}

func (r *PdfFileReader) parseXRefStream(offset int64) (*xrefSection, error) {
	if offset < 0 || offset >= int64(len(r.data)) {
		return nil, fmt.Errorf("%w: xref stream offset %d out of bounds", ErrInvalidXRef, offset)
	}

	parser := generic.NewParserAt(r.data, offset)
	parser.ResolveLength = r.resolveLength
	indirect, err := parser.ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("failed to parse xref stream: %w", err)
	}

	stream, ok := indirect.Object.(*generic.StreamObject)
	if !ok || stream.Dictionary.GetName("Type") != "XRef" {
		return nil, fmt.Errorf("%w: xref stream expected at offset %d", ErrInvalidXRef, offset)
	}
	dict := stream.Dictionary

	data, err := filters.Decode(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to decode xref stream: %w", err)
	}

	wArray := dict.GetArray("W")
	if len(wArray) != 3 {
		return nil, fmt.Errorf("%w: invalid W array", ErrInvalidXRef)
	}
	var w [3]int
	for i, v := range wArray {
		iv, ok := v.(generic.IntegerObject)
		if !ok || iv < 0 || iv > 8 {
			return nil, fmt.Errorf("%w: invalid W entry", ErrInvalidXRef)
		}
		w[i] = int(iv)
	}
	entrySize := w[0] + w[1] + w[2]
	if entrySize == 0 {
		return nil, fmt.Errorf("%w: zero entry size", ErrInvalidXRef)
	}

	var index []int
	if indexArray := dict.GetArray("Index"); indexArray != nil {
		for _, v := range indexArray {
			if iv, ok := v.(generic.IntegerObject); ok {
				index = append(index, int(iv))
			}
		}
	} else if size, ok := dict.GetInt("Size"); ok {
		index = []int{0, int(size)}
	}

	section := &xrefSection{
		entries: make(map[int]*XRefEntry),
		trailer: &generic.TrailerDictionary{DictionaryObject: dict},
		stream:  true,
	}

	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		for j := 0; j < index[i+1]; j++ {
			if pos+entrySize > len(data) {
				return section, nil
			}
			section.entries[index[i]+j] = parseXRefStreamEntry(data[pos:pos+entrySize], w)
			pos += entrySize
		}
	}

	return section, nil
}

func parseXRefStreamEntry(data []byte, w [3]int) *XRefEntry {
	readField := func(start, length int) int64 {
		var val int64
		for i := 0; i < length; i++ {
			val = val<<8 | int64(data[start+i])
		}
		return val
	}

	typ := int64(1)
	if w[0] > 0 {
		typ = readField(0, w[0])
	}
	field2 := readField(w[0], w[1])
	field3 := readField(w[0]+w[1], w[2])

	switch typ {
	case 0:
		return &XRefEntry{Offset: field2, Generation: int(field3)}
	case 1:
		return &XRefEntry{Offset: field2, Generation: int(field3), InUse: true}
	case 2:
		return &XRefEntry{
			InUse:         true,
			InStream:      true,
			StreamObjNum:  int(field2),
			IndexInStream: int(field3),
		}
	default:
		// Unknown types are treated as references to the null object.
		return &XRefEntry{}
	}
}
