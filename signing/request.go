package signing

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/georgepadayatti/pdfsign/keys"
	"github.com/georgepadayatti/pdfsign/stamp"
	"github.com/georgepadayatti/pdfsign/store"
)

// Default widget size in points.
const (
	DefaultWidth  = 200
	DefaultHeight = 100
)

// Request parameter names.
const (
	ParamSource            = "source"
	ParamPrivateKey        = "private-key"
	ParamStorePassword     = "store-password"
	ParamKeyPassword       = "key-password"
	ParamKeyType           = "key-type"
	ParamAlias             = "alias"
	ParamVisibility        = "visibility"
	ParamPosition          = "position"
	ParamLocationX         = "location-x"
	ParamLocationY         = "location-y"
	ParamWidth             = "width"
	ParamHeight            = "height"
	ParamPage              = "page"
	ParamReason            = "reason"
	ParamLocation          = "location"
	ParamNewRevision       = "new-revision"
	ParamInPlace           = "inplace"
	ParamCreateNew         = "create-new"
	ParamDestinationFolder = "destination-folder"
	ParamDestinationName   = "destination-name"
	ParamSignedBy          = "signed-by"
)

var knownParams = []string{
	ParamSource, ParamPrivateKey, ParamStorePassword, ParamKeyPassword, ParamKeyType,
	ParamAlias, ParamVisibility, ParamPosition, ParamLocationX, ParamLocationY,
	ParamWidth, ParamHeight, ParamPage, ParamReason, ParamLocation, ParamNewRevision,
	ParamInPlace, ParamCreateNew, ParamDestinationFolder, ParamDestinationName, ParamSignedBy,
}

var requiredParams = []string{ParamSource, ParamPrivateKey, ParamStorePassword, ParamKeyPassword}

// Request describes one signing operation.
type Request struct {
	Source store.Handle
	// PrivateKey is the handle of the key store bytes.
	PrivateKey    store.Handle
	StorePassword string
	KeyPassword   string
	KeyAlias      string
	KeyType       keys.KeyType

	Visibility Visibility
	Position   stamp.Position
	ManualX    float64
	ManualY    float64
	Width      float64
	Height     float64
	// Page is the 1-based page to sign. Zero selects the first page and
	// negative values count back from the last (-1 is the last page);
	// values past the end clamp to the last page.
	Page int

	Reason   string
	Location string

	// NewRevision appends an incremental update instead of rewriting the
	// file.
	NewRevision       bool
	InPlace           bool
	CreateNew         bool
	DestinationFolder store.Handle
	DestinationName   string

	// SignedBy overrides the signer name recorded in metadata.
	SignedBy string
}

// NewRequest returns a request with the defaults applied.
func NewRequest(source, privateKey store.Handle) Request {
	return Request{
		Source:      source,
		PrivateKey:  privateKey,
		KeyType:     keys.KeyTypeDefault,
		Visibility:  VisibilityHidden,
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		NewRevision: true,
	}
}

// Visible reports whether a widget is drawn.
func (r *Request) Visible() bool {
	return r.Visibility == VisibilityVisible
}

// ApplyDefaults replaces unset or zero width and height.
func (r *Request) ApplyDefaults() {
	if r.Width == 0 {
		r.Width = DefaultWidth
	}
	if r.Height == 0 {
		r.Height = DefaultHeight
	}
	if r.KeyType == "" {
		r.KeyType = keys.KeyTypeDefault
	}
	if r.Visibility == "" {
		r.Visibility = VisibilityHidden
	}
}

// Validate checks the request against the enum registry.
func (r *Request) Validate() error {
	reg := Registry()
	switch {
	case r.Source == "":
		return fmt.Errorf("%w: %s is required", ErrInvalidRequest, ParamSource)
	case r.PrivateKey == "":
		return fmt.Errorf("%w: %s is required", ErrInvalidRequest, ParamPrivateKey)
	case !reg.ValidPosition(r.Position):
		return fmt.Errorf("%w: unknown %s %q", ErrInvalidRequest, ParamPosition, r.Position)
	case !reg.ValidKeyType(r.KeyType):
		return fmt.Errorf("%w: unknown %s %q", ErrInvalidRequest, ParamKeyType, r.KeyType)
	case r.Width < 0 || r.Height < 0:
		return fmt.Errorf("%w: widget size must not be negative", ErrInvalidRequest)
	}
	if !r.InPlace && r.DestinationName != "" {
		if err := store.ValidateName(store.WithPDFExtension(r.DestinationName)); err != nil {
			return fmt.Errorf("%w: %s %q", ErrInvalidRequest, ParamDestinationName, r.DestinationName)
		}
	}
	return nil
}

// ParseRequest builds a request from named string parameters. Unknown names
// and malformed values fail with ErrInvalidRequest.
func ParseRequest(params map[string]string) (Request, error) {
	for name := range params {
		if !slices.Contains(knownParams, name) {
			return Request{}, fmt.Errorf("%w: unknown parameter %q", ErrInvalidRequest, name)
		}
	}
	for _, name := range requiredParams {
		if _, ok := params[name]; !ok {
			return Request{}, fmt.Errorf("%w: %s is required", ErrInvalidRequest, name)
		}
	}

	req := NewRequest(store.Handle(params[ParamSource]), store.Handle(params[ParamPrivateKey]))
	req.StorePassword = params[ParamStorePassword]
	req.KeyPassword = params[ParamKeyPassword]
	req.KeyAlias = params[ParamAlias]
	req.Reason = params[ParamReason]
	req.Location = params[ParamLocation]
	req.DestinationFolder = store.Handle(params[ParamDestinationFolder])
	req.DestinationName = params[ParamDestinationName]
	req.SignedBy = params[ParamSignedBy]

	var err error
	if v, ok := params[ParamKeyType]; ok {
		if req.KeyType, err = keys.ParseKeyType(v); err != nil {
			return Request{}, fmt.Errorf("%w: %s %q", ErrInvalidRequest, ParamKeyType, v)
		}
	}
	if strings.EqualFold(strings.TrimSpace(params[ParamVisibility]), string(VisibilityVisible)) {
		req.Visibility = VisibilityVisible
	}
	if v, ok := params[ParamPosition]; ok {
		if req.Position, err = stamp.ParsePosition(v); err != nil {
			return Request{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{ParamLocationX, &req.ManualX},
		{ParamLocationY, &req.ManualY},
		{ParamWidth, &req.Width},
		{ParamHeight, &req.Height},
	}
	for _, f := range floats {
		if err := parseFloat(params, f.name, f.dst); err != nil {
			return Request{}, err
		}
	}

	if v, ok := params[ParamPage]; ok && strings.TrimSpace(v) != "" {
		if req.Page, err = strconv.Atoi(strings.TrimSpace(v)); err != nil {
			return Request{}, fmt.Errorf("%w: %s %q is not an integer", ErrInvalidRequest, ParamPage, v)
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{ParamNewRevision, &req.NewRevision},
		{ParamInPlace, &req.InPlace},
		{ParamCreateNew, &req.CreateNew},
	}
	for _, b := range bools {
		if err := parseBool(params, b.name, b.dst); err != nil {
			return Request{}, err
		}
	}

	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

func parseFloat(params map[string]string, name string, dst *float64) error {
	v, ok := params[name]
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("%w: %s %q is not a number", ErrInvalidRequest, name, v)
	}
	*dst = f
	return nil
}

func parseBool(params map[string]string, name string, dst *bool) error {
	v, ok := params[name]
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%w: %s %q is not a boolean", ErrInvalidRequest, name, v)
	}
	*dst = b
	return nil
}
