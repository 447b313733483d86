package writer

import (
	"fmt"

	"github.com/georgepadayatti/pdfsign/pdf/filters"
	"github.com/georgepadayatti/pdfsign/pdf/generic"
)

// xrefEntry is one row of an output cross-reference section.
type xrefEntry struct {
	objNum int
	offset int64
	gen    int
	// free entries use nextFree instead of offset.
	free     bool
	nextFree int
}

// subsections splits entries sorted by object number into runs of
// consecutive numbers.
func subsections(entries []xrefEntry) [][]xrefEntry {
	var out [][]xrefEntry
	start := 0
	for i := 1; i <= len(entries); i++ {
		if i == len(entries) || entries[i].objNum != entries[i-1].objNum+1 {
			out = append(out, entries[start:i])
			start = i
		}
	}
	return out
}

// writeXRefTable writes a classic cross-reference table followed by its
// trailer.
func writeXRefTable(w *generic.OffsetWriter, entries []xrefEntry, trailer *generic.DictionaryObject) error {
	if _, err := fmt.Fprint(w, "xref\n"); err != nil {
		return err
	}

	for _, sub := range subsections(entries) {
		if _, err := fmt.Fprintf(w, "%d %d\n", sub[0].objNum, len(sub)); err != nil {
			return err
		}
		for _, e := range sub {
			var err error
			if e.free {
				_, err = fmt.Fprintf(w, "%010d %05d f \n", e.nextFree, e.gen)
			} else {
				_, err = fmt.Fprintf(w, "%010d %05d n \n", e.offset, e.gen)
			}
			if err != nil {
				return err
			}
		}
	}

	if _, err := fmt.Fprint(w, "trailer\n"); err != nil {
		return err
	}
	if err := trailer.Write(w); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}

// writeXRefStream writes a cross-reference stream as object objNum. The
// stream describes itself and carries the trailer entries in its dictionary.
func writeXRefStream(w *generic.OffsetWriter, entries []xrefEntry, trailer *generic.DictionaryObject, objNum int) error {
	entries = append(entries, xrefEntry{objNum: objNum, offset: w.Offset()})

	var highest int64
	for _, e := range entries {
		highest = max(highest, e.offset, int64(e.nextFree))
	}
	width := fieldWidth(highest)
	rowLen := 1 + width + 2

	data := make([]byte, 0, len(entries)*rowLen)
	for _, e := range entries {
		if e.free {
			data = append(data, 0)
			data = appendField(data, int64(e.nextFree), width)
		} else {
			data = append(data, 1)
			data = appendField(data, e.offset, width)
		}
		data = appendField(data, int64(e.gen), 2)
	}

	var index generic.ArrayObject
	for _, sub := range subsections(entries) {
		index = append(index, generic.IntegerObject(sub[0].objNum), generic.IntegerObject(len(sub)))
	}

	dict := trailer.Clone().(*generic.DictionaryObject)
	dict.Set("Type", generic.NameObject("XRef"))
	dict.Set("W", generic.NewArray(generic.IntegerObject(1), generic.IntegerObject(width), generic.IntegerObject(2)))
	dict.Set("Index", index)

	stream, err := filters.NewFlateStream(dict, data, &filters.Params{Predictor: 12, Columns: rowLen})
	if err != nil {
		return fmt.Errorf("failed to encode xref stream: %w", err)
	}
	return generic.NewIndirectObject(objNum, 0, stream).Write(w)
}

// fieldWidth returns the number of bytes needed to store v big-endian.
func fieldWidth(v int64) int {
	n := 1
	for v > 0xFF {
		v >>= 8
		n++
	}
	return n
}

func appendField(buf []byte, v int64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}
