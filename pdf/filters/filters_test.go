package filters

import (
	"bytes"
	"compress/zlib"
	"errors"
	"testing"

	"github.com/georgepadayatti/pdfsign/pdf/generic"
)

func TestFlateDecodeFilter(t *testing.T) {
	original := []byte("Hello, World! This is a test of the FlateDecode filter.")

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	w.Write(original)
	w.Close()

	decoded, err := (&FlateDecodeFilter{}).Decode(compressed.Bytes(), nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decoded, original) {
		t.Errorf("Decode = %q, want %q", decoded, original)
	}
}

func TestFlatePredictorRoundTrip(t *testing.T) {
	// Five xref-stream rows of width 4.
	rows := []byte{
		1, 0, 0, 0,
		1, 0, 15, 0,
		1, 0, 200, 0,
		2, 0, 3, 1,
		1, 1, 44, 0,
	}
	params := &Params{Predictor: 12, Columns: 4}

	f := &FlateDecodeFilter{}
	encoded, err := f.Encode(rows, params)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := f.Decode(encoded, params)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decoded, rows) {
		t.Errorf("Decode = %v, want %v", decoded, rows)
	}
}

func TestPNGPredictorFilters(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{"none", []byte{0, 1, 2, 0, 3, 4}, []byte{1, 2, 3, 4}},
		{"sub", []byte{1, 1, 1, 1, 5, 1}, []byte{1, 2, 5, 6}},
		{"up", []byte{0, 1, 2, 2, 1, 1}, []byte{1, 2, 2, 3}},
		{"average", []byte{0, 2, 4, 3, 1, 1}, []byte{2, 4, 2, 4}},
		{"paeth", []byte{0, 2, 4, 4, 1, 1}, []byte{2, 4, 3, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodePNGPredictor(tt.input, 3, 1)
			if err != nil {
				t.Fatalf("decodePNGPredictor failed: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("decodePNGPredictor = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestASCIIHexDecode(t *testing.T) {
	got, err := (&ASCIIHexDecodeFilter{}).Decode([]byte("48 65 6c6c 6F>"), nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if string(got) != "Hello" {
		t.Errorf("Decode = %q, want Hello", got)
	}
}

func TestASCII85RoundTrip(t *testing.T) {
	original := []byte{0, 0, 0, 0, 'p', 'd', 'f', 's', 'i', 'g', 'n'}
	f := &ASCII85DecodeFilter{}

	encoded, err := f.Encode(original, nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := f.Decode(append([]byte("<~"), encoded...), nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decoded, original) {
		t.Errorf("Decode = %v, want %v", decoded, original)
	}
}

func TestDecodePipeline(t *testing.T) {
	original := []byte("pipeline data")
	names := []string{"AHx", "FlateDecode"}

	encoded, err := EncodeStream(original, names, nil)
	if err != nil {
		t.Fatalf("EncodeStream failed: %v", err)
	}
	decoded, err := DecodeStream(encoded, names, nil)
	if err != nil {
		t.Fatalf("DecodeStream failed: %v", err)
	}
	if !bytes.Equal(decoded, original) {
		t.Errorf("DecodeStream = %q, want %q", decoded, original)
	}

	if _, err := DecodeStream(original, []string{"JBIG2Decode"}, nil); !errors.Is(err, ErrUnsupportedFilter) {
		t.Errorf("DecodeStream error = %v, want ErrUnsupportedFilter", err)
	}
}

func TestDecodeStreamObject(t *testing.T) {
	content := []byte("0 1 2 3 4 5")
	stream, err := NewFlateStream(nil, content, nil)
	if err != nil {
		t.Fatalf("NewFlateStream failed: %v", err)
	}

	// Drop the cached copy so Decode has to work from the filtered bytes.
	stream.Decoded = nil
	got, err := Decode(stream)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Decode = %q, want %q", got, content)
	}
	if stream.Dictionary.GetName("Filter") != "FlateDecode" {
		t.Errorf("Filter = %q", stream.Dictionary.GetName("Filter"))
	}

	plain := generic.NewStream(nil, []byte("raw"))
	got, err = Decode(plain)
	if err != nil || string(got) != "raw" {
		t.Errorf("Decode(unfiltered) = %q, %v", got, err)
	}
}

func TestParamsFromDict(t *testing.T) {
	if ParamsFromDict(nil) != nil {
		t.Error("ParamsFromDict(nil) should be nil")
	}

	d := generic.NewDictionary()
	d.Set("Predictor", generic.IntegerObject(12))
	d.Set("Columns", generic.IntegerObject(5))
	p := ParamsFromDict(d)
	if p.Predictor != 12 || p.Columns != 5 || p.Colors != 1 || p.BitsPerComponent != 8 {
		t.Errorf("ParamsFromDict = %+v", p)
	}
	if p.rowLength() != 6 {
		t.Errorf("rowLength = %d, want 6", p.rowLength())
	}
}
