package stamp

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/georgepadayatti/pdfsign/pdf/generic"
)

func TestPlace(t *testing.T) {
	page := generic.Rectangle{URX: 600, URY: 800}

	tests := []struct {
		position Position
		want     generic.Rectangle
	}{
		{PositionBottomLeft, generic.Rectangle{LLX: 0, LLY: 100, URX: 200, URY: 0}},
		{PositionBottomRight, generic.Rectangle{LLX: 400, LLY: 100, URX: 600, URY: 0}},
		{PositionTopLeft, generic.Rectangle{LLX: 0, LLY: 800, URX: 200, URY: 700}},
		{PositionTopRight, generic.Rectangle{LLX: 400, LLY: 800, URX: 600, URY: 700}},
		{PositionCenter, generic.Rectangle{LLX: 200, LLY: 350, URX: 400, URY: 450}},
		{PositionManual, generic.Rectangle{LLX: 50, LLY: 300, URX: 250, URY: 200}},
		{PositionNone, generic.Rectangle{LLX: 50, LLY: 300, URX: 250, URY: 200}},
	}

	for _, tt := range tests {
		t.Run(string(tt.position), func(t *testing.T) {
			got := Place(tt.position, page, 200, 100, 50, 300)
			if got != tt.want {
				t.Errorf("Place(%q) = %+v, want %+v", tt.position, got, tt.want)
			}
		})
	}
}

func TestPlaceUsesPageSizeNotOrigin(t *testing.T) {
	// A rotated page reports its size already swapped.
	page := generic.Rectangle{URX: 800, URY: 600}
	got := Place(PositionTopRight, page, 200, 100, 0, 0)
	want := generic.Rectangle{LLX: 600, LLY: 600, URX: 800, URY: 500}
	if got != want {
		t.Errorf("Place = %+v, want %+v", got, want)
	}
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    Position
		wantErr bool
	}{
		{"topleft", PositionTopLeft, false},
		{"TopRight", PositionTopRight, false},
		{" BOTTOMLEFT ", PositionBottomLeft, false},
		{"bottomright", PositionBottomRight, false},
		{"Center", PositionCenter, false},
		{"manual", PositionManual, false},
		{"", PositionNone, false},
		{"middle", "", true},
	}

	for _, tt := range tests {
		got, err := ParsePosition(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidPosition) {
				t.Errorf("ParsePosition(%q) error = %v, want ErrInvalidPosition", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParsePosition(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestSignatureLines(t *testing.T) {
	when := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	lines := SignatureLines("Jane Signer", when, "Approved", "Amsterdam")
	want := []string{
		"Digitally signed by Jane Signer",
		"Date: 2024.03.01 10:30:00 +00:00",
		"Reason: Approved",
		"Location: Amsterdam",
	}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("SignatureLines = %q, want %q", lines, want)
	}

	if lines := SignatureLines("Jane Signer", when, "", ""); len(lines) != 2 {
		t.Errorf("SignatureLines without reason/location = %q", lines)
	}
}

func TestBuildAppearanceStream(t *testing.T) {
	// Rectangles come from Place with the top edge first.
	rect := generic.Rectangle{LLX: 0, LLY: 100, URX: 200, URY: 0}
	stream := BuildAppearanceStream(rect, []string{"Digitally signed by Jane (QA)"}, nil, 0)

	if stream.Dictionary.GetName("Subtype") != "Form" {
		t.Errorf("Subtype = %s, want Form", stream.Dictionary.GetName("Subtype"))
	}
	bbox, err := generic.NewRectangle(stream.Dictionary.GetArray("BBox"))
	if err != nil {
		t.Fatalf("BBox: %v", err)
	}
	if *bbox != (generic.Rectangle{URX: 200, URY: 100}) {
		t.Errorf("BBox = %+v, want 0 0 200 100", *bbox)
	}

	if stream.Dictionary.Get("Matrix") != nil {
		t.Error("unrotated appearance carries a /Matrix")
	}

	fonts := stream.Dictionary.GetDict("Resources").GetDict("Font")
	if fonts.GetDict("F1").GetName("BaseFont") != "Helvetica" {
		t.Error("appearance does not declare Helvetica as F1")
	}

	content := string(stream.Data)
	for _, want := range []string{"re S", "/F1 10 Tf", `(Digitally signed by Jane \(QA\)) Tj`} {
		if !strings.Contains(content, want) {
			t.Errorf("content missing %q:\n%s", want, content)
		}
	}
}

func TestBuildAppearanceStreamShrinksText(t *testing.T) {
	long := strings.Repeat("x", 200)
	stream := BuildAppearanceStream(generic.Rectangle{URX: 100, URY: 50}, []string{long}, nil, 0)
	if strings.Contains(string(stream.Data), "/F1 10 Tf") {
		t.Error("font size was not reduced for a long line")
	}
}

func TestBuildAppearanceStreamOnRotatedPage(t *testing.T) {
	tests := []struct {
		rotate int
		want   [6]float64
	}{
		{90, [6]float64{0, 1, -1, 0, 100, 0}},
		{180, [6]float64{-1, 0, 0, -1, 200, 100}},
		{270, [6]float64{0, -1, 1, 0, 0, 200}},
	}
	for _, tt := range tests {
		stream := BuildAppearanceStream(generic.Rectangle{URX: 200, URY: 100}, []string{"signed"}, nil, tt.rotate)
		matrix := stream.Dictionary.GetArray("Matrix")
		if len(matrix) != 6 {
			t.Fatalf("rotate %d: Matrix = %v", tt.rotate, matrix)
		}
		for i, v := range matrix {
			if got, _ := generic.Number(v); got != tt.want[i] {
				t.Errorf("rotate %d: Matrix[%d] = %v, want %v", tt.rotate, i, got, tt.want[i])
			}
		}

		// The BBox stays upright; the matrix turns it.
		bbox, err := generic.NewRectangle(stream.Dictionary.GetArray("BBox"))
		if err != nil {
			t.Fatalf("BBox: %v", err)
		}
		if *bbox != (generic.Rectangle{URX: 200, URY: 100}) {
			t.Errorf("rotate %d: BBox = %+v", tt.rotate, *bbox)
		}
	}
}

func TestEscapeString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{`a(b)c\d`, `a\(b\)c\\d`},
		{"café", `caf\351`},
		{"€", `\200`},
		{"日本", `\077\077`},
	}
	for _, tt := range tests {
		if got := escapeString(tt.in); got != tt.want {
			t.Errorf("escapeString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
