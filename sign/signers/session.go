package signers

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/georgepadayatti/pdfsign/pdf/generic"
	"github.com/georgepadayatti/pdfsign/pdf/reader"
	"github.com/georgepadayatti/pdfsign/pdf/writer"
	"github.com/georgepadayatti/pdfsign/stamp"
)

// MinOutputVersion is the lowest PDF version a signed output declares.
const MinOutputVersion = "1.6"

// DefaultSubFilter is the signature sub-filter written to /SubFilter.
const DefaultSubFilter = "adbe.pkcs7.detached"

// Annotation flags: Print and Locked.
const widgetFlags = 4 | 128

// SigFlags: SignaturesExist and AppendOnly.
const sigFlags = 1 | 2

// Mode selects how the new revision is written.
type Mode int

const (
	// ModeAppend adds an incremental update after the original bytes.
	ModeAppend Mode = iota
	// ModeRewrite writes the whole document as a single revision.
	ModeRewrite
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m == ModeRewrite {
		return "rewrite"
	}
	return "append"
}

// SessionOptions configures a signature session.
type SessionOptions struct {
	// SignatureSize is the number of bytes reserved for the CMS object.
	SignatureSize int
	// FieldName names the signature field; empty picks SignatureN.
	FieldName string
	// SignerName is written to /Name and shown in the appearance.
	SignerName  string
	SigningTime time.Time
	// BuildProps is written to /Prop_Build /App when set.
	BuildProps *BuildProps
	Style      *stamp.StampStyle
}

type sessionState int

const (
	stateOpen sessionState = iota
	stateDrafted
	stateFinalized
)

// SignatureSession reserves a signature in a new revision of a document and
// fills it in once the CMS object is known.
type SignatureSession struct {
	doc  *reader.PdfFileReader
	rev  writer.Revision
	mode Mode
	opts SessionOptions

	appearance *stamp.SignatureAppearance
	reason     *string
	location   *string

	byteRange *SigByteRangeObject
	contents  *DERPlaceholder
	fieldName string

	state  sessionState
	draft  []byte
	ranges ByteRanges
}

// BeginSignature starts a signature session on doc.
func BeginSignature(doc *reader.PdfFileReader, mode Mode, opts SessionOptions) (*SignatureSession, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: no document", ErrSessionState)
	}
	if opts.SignatureSize <= 0 {
		opts.SignatureSize = DefaultSignatureSize
	}
	if opts.SigningTime.IsZero() {
		opts.SigningTime = time.Now()
	}

	var rev writer.Revision
	switch mode {
	case ModeAppend:
		rev = writer.NewIncrementalWriter(doc)
	case ModeRewrite:
		rev = writer.NewRewriteWriter(doc)
	default:
		return nil, fmt.Errorf("%w: unknown mode %d", ErrSessionState, mode)
	}
	if err := rev.EnsureOutputVersion(MinOutputVersion); err != nil {
		return nil, err
	}

	return &SignatureSession{
		doc:       doc,
		rev:       rev,
		mode:      mode,
		opts:      opts,
		byteRange: NewSigByteRangeObject(),
		contents:  NewDERPlaceholder(opts.SignatureSize),
	}, nil
}

// Mode returns the revision mode of the session.
func (s *SignatureSession) Mode() Mode {
	return s.mode
}

// SetAppearance makes the signature visible. A nil appearance keeps it
// invisible.
func (s *SignatureSession) SetAppearance(a *stamp.SignatureAppearance) error {
	if s.state != stateOpen {
		return fmt.Errorf("%w: appearance set after drafting", ErrSessionState)
	}
	if a != nil && (a.PageIndex < 0 || a.PageIndex >= s.doc.PageCount()) {
		return fmt.Errorf("%w: page index %d of %d", ErrPageOutOfRange, a.PageIndex, s.doc.PageCount())
	}
	s.appearance = a
	return nil
}

// SetMetadataFields sets /Reason and /Location; nil leaves an entry out.
func (s *SignatureSession) SetMetadataFields(reason, location *string) error {
	if s.state != stateOpen {
		return fmt.Errorf("%w: metadata set after drafting", ErrSessionState)
	}
	s.reason, s.location = reason, location
	return nil
}

// FieldName returns the name of the signature field once drafted.
func (s *SignatureSession) FieldName() string {
	return s.fieldName
}

// DigestRanges returns the byte ranges to be signed, drafting the revision
// on first use.
func (s *SignatureSession) DigestRanges() (ByteRanges, error) {
	if s.state == stateOpen {
		if err := s.buildDraft(); err != nil {
			return ByteRanges{}, err
		}
	}
	return s.ranges, nil
}

// Draft returns the drafted document with an empty signature slot.
func (s *SignatureSession) Draft() ([]byte, error) {
	if _, err := s.DigestRanges(); err != nil {
		return nil, err
	}
	return s.draft, nil
}

// Finalize writes the DER signature into the reserved slot and returns the
// signed document. The output has the same length as the draft.
func (s *SignatureSession) Finalize(signature []byte) ([]byte, error) {
	if s.state != stateDrafted {
		return nil, fmt.Errorf("%w: finalize requires a fresh draft", ErrSessionState)
	}

	start, end := s.ranges.Slot()
	capacity := int(end-start) - 2
	encoded := strings.ToUpper(hex.EncodeToString(signature))
	if len(encoded) > capacity {
		return nil, fmt.Errorf("%w: %d bytes needed, %d reserved", ErrSignatureTooLarge, len(signature), capacity/2)
	}

	out := bytes.Clone(s.draft)
	copy(out[start+1:], encoded)
	s.state = stateFinalized
	return out, nil
}

// buildDraft adds the signature objects to the revision and renders it.
func (s *SignatureSession) buildDraft() error {
	sigRef := s.rev.AddObject(s.signatureDictionary())

	if err := s.addField(sigRef); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := s.rev.Write(&buf); err != nil {
		return fmt.Errorf("failed to write revision: %w", err)
	}
	draft := buf.Bytes()

	start, end, err := s.contents.Offsets()
	if err != nil {
		return err
	}
	size := int64(len(draft))
	ranges := ByteRanges{0, start, end, size - end}
	if err := ranges.Validate(size); err != nil {
		return err
	}
	if err := s.byteRange.Fill(draft, ranges); err != nil {
		return err
	}

	s.draft = draft
	s.ranges = ranges
	s.state = stateDrafted
	return nil
}

func (s *SignatureSession) signatureDictionary() *generic.DictionaryObject {
	dict := generic.NewDictionary()
	dict.Set("Type", generic.NameObject("Sig"))
	dict.Set("Filter", generic.NameObject("Adobe.PPKLite"))
	dict.Set("SubFilter", generic.NameObject(DefaultSubFilter))
	dict.Set("ByteRange", s.byteRange)
	dict.Set("Contents", s.contents)
	dict.Set("M", generic.NewLiteralString(generic.FormatDate(s.opts.SigningTime)))
	if s.opts.SignerName != "" {
		dict.Set("Name", generic.NewTextString(s.opts.SignerName))
	}
	if s.reason != nil {
		dict.Set("Reason", generic.NewTextString(*s.reason))
	}
	if s.location != nil {
		dict.Set("Location", generic.NewTextString(*s.location))
	}
	if s.opts.BuildProps != nil {
		propBuild := generic.NewDictionary()
		propBuild.Set("App", s.opts.BuildProps.AsPdfObject())
		dict.Set("Prop_Build", propBuild)
	}
	return dict
}

// addField creates the merged signature field and widget, hooks it into the
// page's /Annots and the AcroForm /Fields.
func (s *SignatureSession) addField(sigRef generic.Reference) error {
	if s.doc.PageCount() == 0 {
		return fmt.Errorf("%w: document has no pages", ErrPageOutOfRange)
	}

	pageIndex := 0
	if s.appearance != nil {
		pageIndex = s.appearance.PageIndex
	}
	page := s.doc.Pages[pageIndex]
	pageRef := page.Ref

	// The appearance rectangle is in displayed coordinates; /Rect is not.
	rect := generic.Rectangle{}
	if s.appearance != nil {
		rect = page.ToPageSpace(s.appearance.Rect)
	}

	acroForm, err := s.acroForm()
	if err != nil {
		return err
	}
	s.fieldName = s.opts.FieldName
	if s.fieldName == "" {
		s.fieldName = s.uniqueFieldName(acroForm)
	}

	widget := generic.NewDictionary()
	widget.Set("Type", generic.NameObject("Annot"))
	widget.Set("Subtype", generic.NameObject("Widget"))
	widget.Set("FT", generic.NameObject("Sig"))
	widget.Set("T", generic.NewTextString(s.fieldName))
	widget.Set("V", sigRef)
	widget.Set("F", generic.IntegerObject(widgetFlags))
	widget.Set("P", pageRef)
	widget.Set("Rect", rect.ToArray())

	if s.appearance != nil {
		lines := s.appearance.Lines
		if lines == nil {
			lines = stamp.SignatureLines(s.opts.SignerName, s.opts.SigningTime, deref(s.reason), deref(s.location))
		}
		ap := stamp.BuildAppearanceStream(s.appearance.Rect.Normalize(), lines, s.opts.Style, page.Rotate)
		apDict := generic.NewDictionary()
		apDict.Set("N", s.rev.AddObject(ap))
		widget.Set("AP", apDict)
	}
	widgetRef := s.rev.AddObject(widget)

	pageDict, err := s.rev.EditDict(pageRef)
	if err != nil {
		return err
	}
	if err := s.appendTo(pageDict, "Annots", widgetRef); err != nil {
		return err
	}
	if err := s.appendTo(acroForm, "Fields", widgetRef); err != nil {
		return err
	}

	flags, _ := generic.Number(s.rev.Resolve(acroForm.Get("SigFlags")))
	acroForm.Set("SigFlags", generic.IntegerObject(int64(flags)|sigFlags))
	return nil
}

// acroForm returns the editable AcroForm dictionary, creating an indirect one
// when the catalog has none.
func (s *SignatureSession) acroForm() (*generic.DictionaryObject, error) {
	root, err := s.rev.GetRoot()
	if err != nil {
		return nil, err
	}

	switch v := root.Get("AcroForm").(type) {
	case generic.Reference:
		if _, ok := s.rev.Resolve(v).(*generic.DictionaryObject); ok {
			return s.rev.EditDict(v)
		}
	case *generic.DictionaryObject:
		root, err = s.rev.EditDict(s.rev.RootRef())
		if err != nil {
			return nil, err
		}
		return root.GetDict("AcroForm"), nil
	}

	root, err = s.rev.EditDict(s.rev.RootRef())
	if err != nil {
		return nil, err
	}
	form := generic.NewDictionary()
	form.Set("Fields", generic.ArrayObject{})
	root.Set("AcroForm", s.rev.AddObject(form))
	return form, nil
}

// appendTo appends item to the array stored under key in dict. Indirect
// arrays are updated in place, missing ones are created direct.
func (s *SignatureSession) appendTo(dict *generic.DictionaryObject, key string, item generic.PdfObject) error {
	switch v := dict.Get(key).(type) {
	case generic.Reference:
		obj, err := s.rev.MarkUpdate(v)
		if err != nil {
			return err
		}
		arr, ok := obj.(generic.ArrayObject)
		if !ok {
			return fmt.Errorf("%w: /%s is %T", writer.ErrInvalidObject, key, obj)
		}
		s.rev.UpdateObject(v.ObjectNumber, append(arr, item))
	case generic.ArrayObject:
		dict.Set(key, append(v, item))
	case nil:
		dict.Set(key, generic.ArrayObject{item})
	default:
		return fmt.Errorf("%w: /%s is %T", writer.ErrInvalidObject, key, v)
	}
	return nil
}

// uniqueFieldName picks the first SignatureN not used by a field.
func (s *SignatureSession) uniqueFieldName(acroForm *generic.DictionaryObject) string {
	used := make(map[string]bool)
	visited := make(map[int]bool)

	var walk func(items generic.ArrayObject, prefix string)
	walk = func(items generic.ArrayObject, prefix string) {
		for _, item := range items {
			if ref, ok := item.(generic.Reference); ok {
				if visited[ref.ObjectNumber] {
					continue
				}
				visited[ref.ObjectNumber] = true
			}
			field, ok := s.rev.Resolve(item).(*generic.DictionaryObject)
			if !ok {
				continue
			}
			name := prefix
			if t, ok := s.rev.Resolve(field.Get("T")).(*generic.StringObject); ok {
				if name != "" {
					name += "."
				}
				name += t.Text()
				used[name] = true
			}
			if kids, ok := s.rev.Resolve(field.Get("Kids")).(generic.ArrayObject); ok {
				walk(kids, name)
			}
		}
	}
	if fields, ok := s.rev.Resolve(acroForm.Get("Fields")).(generic.ArrayObject); ok {
		walk(fields, "")
	}

	for i := 1; ; i++ {
		name := fmt.Sprintf("Signature%d", i)
		if !used[name] {
			return name
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
