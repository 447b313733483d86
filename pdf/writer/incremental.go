package writer

import (
	"fmt"
	"io"

	"github.com/georgepadayatti/pdfsign/pdf/generic"
	"github.com/georgepadayatti/pdfsign/pdf/reader"
)

// IncrementalWriter appends a revision to an existing document. The source
// bytes are copied unchanged, which keeps earlier signatures intact.
type IncrementalWriter struct {
	objectTable

	// StreamXRefs selects an xref stream for the new section. It defaults to
	// the kind of the newest section in the source.
	StreamXRefs bool
}

// NewIncrementalWriter creates an incremental writer for r.
func NewIncrementalWriter(r *reader.PdfFileReader) *IncrementalWriter {
	return &IncrementalWriter{
		objectTable: newObjectTable(r),
		StreamXRefs: r.NewestXRefIsStream,
	}
}

// EnsureOutputVersion records version in the catalog /Version entry unless
// the document already declares at least that version.
func (w *IncrementalWriter) EnsureOutputVersion(version string) error {
	if _, err := reader.ParseVersion(version); err != nil {
		return err
	}
	if reader.VersionAtLeast(w.Reader.Version, version) {
		return nil
	}

	root, err := w.GetRoot()
	if err != nil {
		return err
	}
	if current := root.GetName("Version"); current != "" && reader.VersionAtLeast(current, version) {
		return nil
	}

	root, err = w.EditDict(w.rootRef)
	if err != nil {
		return err
	}
	root.Set("Version", generic.NameObject(version))
	return nil
}

// Write emits the original document followed by the new revision.
func (w *IncrementalWriter) Write(out io.Writer) error {
	original := w.Reader.Data()
	ow := generic.NewOffsetWriter(out, 0)

	if _, err := ow.Write(original); err != nil {
		return err
	}
	if len(original) > 0 && original[len(original)-1] != '\n' {
		if _, err := io.WriteString(ow, "\n"); err != nil {
			return err
		}
	}

	entries, err := writeObjects(ow, w.Objects)
	if err != nil {
		return err
	}

	xrefOffset := ow.Offset()
	size := w.nextObjNum
	if w.StreamXRefs {
		size++
	}
	trailer := w.populateTrailer(size)
	if len(w.Reader.XRefOffsets) > 0 {
		trailer.Set("Prev", generic.IntegerObject(w.Reader.XRefOffsets[0]))
	}

	if w.StreamXRefs {
		err = writeXRefStream(ow, entries, trailer, w.nextObjNum)
	} else {
		err = writeXRefTable(ow, entries, trailer)
	}
	if err != nil {
		return fmt.Errorf("failed to write xref section: %w", err)
	}

	return writeStartXRef(ow, xrefOffset)
}
