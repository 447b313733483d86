package writer

import (
	"fmt"
	"io"
	"slices"

	"github.com/georgepadayatti/pdfsign/pdf/generic"
	"github.com/georgepadayatti/pdfsign/pdf/reader"
)

// RewriteWriter writes the whole document as a single revision. Objects
// packed in object streams are written as plain objects and the output has
// one classic xref table without /Prev.
type RewriteWriter struct {
	objectTable

	version string
}

// NewRewriteWriter creates a full rewriter for r.
func NewRewriteWriter(r *reader.PdfFileReader) *RewriteWriter {
	return &RewriteWriter{
		objectTable: newObjectTable(r),
		version:     r.EffectiveVersion(),
	}
}

// Version returns the header version the output will carry.
func (w *RewriteWriter) Version() string {
	return w.version
}

// EnsureOutputVersion raises the header version to at least version.
func (w *RewriteWriter) EnsureOutputVersion(version string) error {
	if _, err := reader.ParseVersion(version); err != nil {
		return err
	}
	if !reader.VersionAtLeast(w.version, version) {
		w.version = version
	}
	return nil
}

// liveObjects collects every object of the output: the live source objects
// (minus object streams and xref streams) overlaid with pending changes.
func (w *RewriteWriter) liveObjects() (map[int]*generic.IndirectObject, error) {
	objs := make(map[int]*generic.IndirectObject, len(w.Objects))

	for _, num := range w.Reader.LiveObjectNumbers() {
		if _, pending := w.Objects[num]; pending {
			continue
		}
		obj, err := w.Reader.GetObject(num)
		if err != nil {
			return nil, fmt.Errorf("failed to read object %d: %w", num, err)
		}
		if stream, ok := obj.(*generic.StreamObject); ok {
			switch stream.Dictionary.GetName("Type") {
			case "ObjStm", "XRef":
				continue
			}
		}

		gen := 0
		if entry := w.Reader.XRef[num]; !entry.InStream {
			gen = entry.Generation
		}
		objs[num] = generic.NewIndirectObject(num, gen, obj)
	}

	for num, obj := range w.Objects {
		objs[num] = obj
	}
	return objs, nil
}

// freeEntries builds the linked list of free entries for every number below
// size that is not written.
func (w *RewriteWriter) freeEntries(written []xrefEntry, size int) []xrefEntry {
	used := make(map[int]bool, len(written))
	for _, e := range written {
		used[e.objNum] = true
	}

	var free []int
	for num := 1; num < size; num++ {
		if !used[num] {
			free = append(free, num)
		}
	}

	entries := make([]xrefEntry, 0, len(free)+1)
	head := xrefEntry{objNum: 0, gen: 65535, free: true}
	if len(free) > 0 {
		head.nextFree = free[0]
	}
	entries = append(entries, head)

	for i, num := range free {
		e := xrefEntry{objNum: num, free: true}
		if i+1 < len(free) {
			e.nextFree = free[i+1]
		}
		if src := w.Reader.XRef[num]; src != nil {
			switch {
			case !src.InUse:
				e.gen = src.Generation
			case !src.InStream:
				e.gen = min(src.Generation+1, 65535)
			}
		}
		entries = append(entries, e)
	}
	return entries
}

// Write emits the complete document.
func (w *RewriteWriter) Write(out io.Writer) error {
	ow := generic.NewOffsetWriter(out, 0)
	if _, err := fmt.Fprintf(ow, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", w.version); err != nil {
		return err
	}

	objs, err := w.liveObjects()
	if err != nil {
		return err
	}
	written, err := writeObjects(ow, objs)
	if err != nil {
		return err
	}

	size := w.nextObjNum
	entries := append(written, w.freeEntries(written, size)...)
	slices.SortFunc(entries, func(a, b xrefEntry) int {
		return a.objNum - b.objNum
	})

	xrefOffset := ow.Offset()
	if err := writeXRefTable(ow, entries, w.populateTrailer(size)); err != nil {
		return fmt.Errorf("failed to write xref table: %w", err)
	}
	return writeStartXRef(ow, xrefOffset)
}
