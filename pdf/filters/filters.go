// Package filters implements the PDF stream filters needed to read document
// structure: FlateDecode with PNG predictors, ASCIIHexDecode and ASCII85Decode.
package filters

import (
	"bytes"
	"compress/zlib"
	"encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/georgepadayatti/pdfsign/pdf/generic"
)

// Common errors
var (
	ErrUnsupportedFilter = errors.New("unsupported filter")
	ErrDecodeFailed      = errors.New("decode failed")
)

// Params are the decode parameters of one filter stage. A nil Params uses the
// filter defaults.
type Params struct {
	Predictor        int
	Columns          int
	Colors           int
	BitsPerComponent int
}

// ParamsFromDict reads decode parameters from a /DecodeParms dictionary.
func ParamsFromDict(d *generic.DictionaryObject) *Params {
	if d == nil {
		return nil
	}
	p := &Params{Predictor: 1, Columns: 1, Colors: 1, BitsPerComponent: 8}
	if v, ok := d.GetInt("Predictor"); ok {
		p.Predictor = int(v)
	}
	if v, ok := d.GetInt("Columns"); ok {
		p.Columns = int(v)
	}
	if v, ok := d.GetInt("Colors"); ok {
		p.Colors = int(v)
	}
	if v, ok := d.GetInt("BitsPerComponent"); ok {
		p.BitsPerComponent = int(v)
	}
	return p
}

// Filter represents a PDF stream filter.
type Filter interface {
	Decode(data []byte, params *Params) ([]byte, error)
	Encode(data []byte, params *Params) ([]byte, error)
	Name() string
}

// FlateDecodeFilter implements the FlateDecode filter (zlib compression).
type FlateDecodeFilter struct{}

// Name implements Filter.
func (f *FlateDecodeFilter) Name() string {
	return "FlateDecode"
}

// Decode implements Filter.
func (f *FlateDecodeFilter) Decode(data []byte, params *Params) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	if params == nil || params.Predictor < 10 {
		return buf.Bytes(), nil
	}
	return decodePNGPredictor(buf.Bytes(), params.rowLength(), params.bytesPerPixel())
}

// Encode implements Filter. With a PNG predictor the rows are encoded with the
// Up filter before compression.
func (f *FlateDecodeFilter) Encode(data []byte, params *Params) ([]byte, error) {
	if params != nil && params.Predictor >= 10 {
		data = encodePNGUp(data, params.rowLength()-1)
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("flate encode failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("flate encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *Params) sampleShape() (colors, bits, columns int) {
	colors, bits, columns = p.Colors, p.BitsPerComponent, p.Columns
	if colors < 1 {
		colors = 1
	}
	if bits < 1 {
		bits = 8
	}
	if columns < 1 {
		columns = 1
	}
	return colors, bits, columns
}

func (p *Params) bytesPerPixel() int {
	colors, bits, _ := p.sampleShape()
	return max((colors*bits+7)/8, 1)
}

// rowLength includes the leading filter-type byte.
func (p *Params) rowLength() int {
	colors, bits, columns := p.sampleShape()
	return (columns*colors*bits+7)/8 + 1
}

func decodePNGPredictor(data []byte, rowLength, bytesPerPixel int) ([]byte, error) {
	if rowLength < 2 {
		return nil, fmt.Errorf("%w: invalid predictor row length %d", ErrDecodeFailed, rowLength)
	}

	width := rowLength - 1
	output := make([]byte, 0, len(data)/rowLength*width)
	prev := make([]byte, width)
	cur := make([]byte, width)

	for i := 0; i+rowLength <= len(data); i += rowLength {
		filterType := data[i]
		row := data[i+1 : i+rowLength]

		for j := range row {
			var left, upLeft byte
			if j >= bytesPerPixel {
				left = cur[j-bytesPerPixel]
				upLeft = prev[j-bytesPerPixel]
			}
			up := prev[j]

			switch filterType {
			case 1:
				cur[j] = row[j] + left
			case 2:
				cur[j] = row[j] + up
			case 3:
				cur[j] = row[j] + byte((int(left)+int(up))/2)
			case 4:
				cur[j] = row[j] + paethPredictor(left, up, upLeft)
			default:
				cur[j] = row[j]
			}
		}

		output = append(output, cur...)
		prev, cur = cur, prev
	}

	return output, nil
}

func encodePNGUp(data []byte, width int) []byte {
	if width < 1 {
		return data
	}
	out := make([]byte, 0, len(data)+len(data)/width+1)
	prev := make([]byte, width)
	for i := 0; i < len(data); i += width {
		end := min(i+width, len(data))
		row := data[i:end]
		out = append(out, 2)
		for j, b := range row {
			out = append(out, b-prev[j])
		}
		copy(prev, row)
	}
	return out
}

func paethPredictor(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))

	if pa <= pb && pa <= pc {
		return a
	} else if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// ASCIIHexDecodeFilter implements the ASCIIHexDecode filter.
type ASCIIHexDecodeFilter struct{}

// Name implements Filter.
func (f *ASCIIHexDecodeFilter) Name() string {
	return "ASCIIHexDecode"
}

// Decode implements Filter.
func (f *ASCIIHexDecodeFilter) Decode(data []byte, _ *Params) ([]byte, error) {
	digits := make([]byte, 0, len(data))
	for _, b := range data {
		if b == '>' {
			break
		}
		if generic.IsWhitespace(b) {
			continue
		}
		digits = append(digits, b)
	}
	if len(digits)%2 != 0 {
		digits = append(digits, '0')
	}

	out := make([]byte, len(digits)/2)
	if _, err := hex.Decode(out, digits); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return out, nil
}

// Encode implements Filter.
func (f *ASCIIHexDecodeFilter) Encode(data []byte, _ *Params) ([]byte, error) {
	return []byte(hex.EncodeToString(data) + ">"), nil
}

// ASCII85DecodeFilter implements the ASCII85Decode filter.
type ASCII85DecodeFilter struct{}

// Name implements Filter.
func (f *ASCII85DecodeFilter) Name() string {
	return "ASCII85Decode"
}

// Decode implements Filter.
func (f *ASCII85DecodeFilter) Decode(data []byte, _ *Params) ([]byte, error) {
	data = bytes.TrimSpace(data)
	data = bytes.TrimPrefix(data, []byte("<~"))
	if idx := bytes.Index(data, []byte("~>")); idx >= 0 {
		data = data[:idx]
	}

	out := make([]byte, len(data)*4+4)
	n, _, err := ascii85.Decode(out, data, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return out[:n], nil
}

// Encode implements Filter.
func (f *ASCII85DecodeFilter) Encode(data []byte, _ *Params) ([]byte, error) {
	out := make([]byte, ascii85.MaxEncodedLen(len(data)))
	n := ascii85.Encode(out, data)
	return append(out[:n], '~', '>'), nil
}

// Registry holds all registered filters, keyed by full and abbreviated name.
var Registry = map[string]Filter{
	"FlateDecode":    &FlateDecodeFilter{},
	"Fl":             &FlateDecodeFilter{},
	"ASCIIHexDecode": &ASCIIHexDecodeFilter{},
	"AHx":            &ASCIIHexDecodeFilter{},
	"ASCII85Decode":  &ASCII85DecodeFilter{},
	"A85":            &ASCII85DecodeFilter{},
}

// GetFilter returns a filter by name.
func GetFilter(name string) (Filter, error) {
	if f, ok := Registry[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
}

// DecodeStream decodes stream data through a filter pipeline.
func DecodeStream(data []byte, names []string, params []*Params) ([]byte, error) {
	result := data
	for i, name := range names {
		filter, err := GetFilter(name)
		if err != nil {
			return nil, err
		}

		var p *Params
		if i < len(params) {
			p = params[i]
		}

		result, err = filter.Decode(result, p)
		if err != nil {
			return nil, fmt.Errorf("filter %s decode failed: %w", name, err)
		}
	}
	return result, nil
}

// EncodeStream encodes data so that DecodeStream with the same pipeline
// restores it.
func EncodeStream(data []byte, names []string, params []*Params) ([]byte, error) {
	result := data
	for i := len(names) - 1; i >= 0; i-- {
		filter, err := GetFilter(names[i])
		if err != nil {
			return nil, err
		}

		var p *Params
		if i < len(params) {
			p = params[i]
		}

		result, err = filter.Encode(result, p)
		if err != nil {
			return nil, fmt.Errorf("filter %s encode failed: %w", names[i], err)
		}
	}
	return result, nil
}

// Decode returns the unfiltered data of a stream object, reading /Filter and
// /DecodeParms from its dictionary. Resolution of indirect filter entries is
// the caller's job.
func Decode(stream *generic.StreamObject) ([]byte, error) {
	if stream.Decoded != nil {
		return stream.Decoded, nil
	}

	var names []string
	var params []*Params

	switch f := stream.Dictionary.Get("Filter").(type) {
	case generic.NameObject:
		names = []string{string(f)}
	case generic.ArrayObject:
		for _, item := range f {
			if name, ok := item.(generic.NameObject); ok {
				names = append(names, string(name))
			}
		}
	}

	switch dp := stream.Dictionary.Get("DecodeParms").(type) {
	case *generic.DictionaryObject:
		params = []*Params{ParamsFromDict(dp)}
	case generic.ArrayObject:
		for _, item := range dp {
			d, _ := item.(*generic.DictionaryObject)
			params = append(params, ParamsFromDict(d))
		}
	}

	decoded, err := DecodeStream(stream.Data, names, params)
	if err != nil {
		return nil, err
	}
	stream.Decoded = decoded
	return decoded, nil
}

// NewFlateStream builds a Flate-compressed stream object holding data.
func NewFlateStream(dict *generic.DictionaryObject, data []byte, params *Params) (*generic.StreamObject, error) {
	encoded, err := EncodeStream(data, []string{"FlateDecode"}, []*Params{params})
	if err != nil {
		return nil, err
	}
	if dict == nil {
		dict = generic.NewDictionary()
	}
	dict.Set("Filter", generic.NameObject("FlateDecode"))
	if params != nil && params.Predictor >= 10 {
		dp := generic.NewDictionary()
		dp.Set("Predictor", generic.IntegerObject(params.Predictor))
		dp.Set("Columns", generic.IntegerObject(params.Columns))
		dict.Set("DecodeParms", dp)
	}
	stream := generic.NewStream(dict, encoded)
	stream.Decoded = data
	return stream, nil
}
