package stamp

import (
	"bytes"
	"fmt"
	"image/color"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/georgepadayatti/pdfsign/pdf/generic"
)

// SignatureAppearance is a visible signature: where it goes and what it says.
type SignatureAppearance struct {
	// Rect is the widget rectangle in page space, as returned by Place.
	Rect generic.Rectangle
	// PageIndex is 0-based.
	PageIndex int
	Lines     []string
}

// StampStyle configures the appearance of a stamp.
type StampStyle struct {
	BorderColor color.RGBA
	// BorderWidth in points; zero disables the border.
	BorderWidth float64
	TextColor   color.RGBA
	// FontSize in points; text is shrunk to fit when needed.
	FontSize float64
	// FontName is one of the standard 14 fonts.
	FontName string
	Padding  float64
}

// DefaultStampStyle returns the default stamp style.
func DefaultStampStyle() *StampStyle {
	return &StampStyle{
		BorderColor: color.RGBA{0, 0, 0, 255},
		BorderWidth: 1.0,
		TextColor:   color.RGBA{0, 0, 0, 255},
		FontSize:    10.0,
		FontName:    "Helvetica",
		Padding:     5.0,
	}
}

// SignatureLines returns the text shown in a visible signature.
func SignatureLines(signer string, signingTime time.Time, reason, location string) []string {
	lines := []string{
		fmt.Sprintf("Digitally signed by %s", signer),
		fmt.Sprintf("Date: %s", signingTime.Format("2006.01.02 15:04:05 -07:00")),
	}
	if reason != "" {
		lines = append(lines, fmt.Sprintf("Reason: %s", reason))
	}
	if location != "" {
		lines = append(lines, fmt.Sprintf("Location: %s", location))
	}
	return lines
}

// BuildAppearanceStream draws a bordered box holding lines as a form XObject
// sized to rect, which is given as the page is displayed. rotate is the
// page's /Rotate; the form is turned against it so the text reads upright.
func BuildAppearanceStream(rect generic.Rectangle, lines []string, style *StampStyle, rotate int) *generic.StreamObject {
	if style == nil {
		style = DefaultStampStyle()
	}
	width, height := rect.Width(), rect.Height()

	dict := generic.NewDictionary()
	dict.Set("Type", generic.NameObject("XObject"))
	dict.Set("Subtype", generic.NameObject("Form"))
	dict.Set("BBox", generic.Rectangle{URX: width, URY: height}.ToArray())
	if m := RotationMatrix(rotate, width, height); m != nil {
		dict.Set("Matrix", m)
	}

	font := generic.NewDictionary()
	font.Set("Type", generic.NameObject("Font"))
	font.Set("Subtype", generic.NameObject("Type1"))
	font.Set("BaseFont", generic.NameObject(style.FontName))
	font.Set("Encoding", generic.NameObject("WinAnsiEncoding"))
	fonts := generic.NewDictionary()
	fonts.Set("F1", font)
	resources := generic.NewDictionary()
	resources.Set("Font", fonts)
	dict.Set("Resources", resources)

	return generic.NewStream(dict, render(width, height, lines, style))
}

// RotationMatrix returns the form matrix that maps a width x height box
// drawn upright onto a page rotated by rotate degrees. It returns nil for
// unrotated pages.
func RotationMatrix(rotate int, width, height float64) generic.ArrayObject {
	var m [6]float64
	switch rotate {
	case 90:
		m = [6]float64{0, 1, -1, 0, height, 0}
	case 180:
		m = [6]float64{-1, 0, 0, -1, width, height}
	case 270:
		m = [6]float64{0, -1, 1, 0, 0, width}
	default:
		return nil
	}
	arr := make(generic.ArrayObject, len(m))
	for i, v := range m {
		arr[i] = generic.RealObject(v)
	}
	return arr
}

func render(width, height float64, lines []string, style *StampStyle) []byte {
	var buf bytes.Buffer
	buf.WriteString("q\n")

	if style.BorderWidth > 0 {
		fmt.Fprintf(&buf, "%s RG\n", rgb(style.BorderColor))
		fmt.Fprintf(&buf, "%s w\n", num(style.BorderWidth))
		half := style.BorderWidth / 2
		fmt.Fprintf(&buf, "%s %s %s %s re S\n", num(half), num(half), num(width-style.BorderWidth), num(height-style.BorderWidth))
	}

	if len(lines) > 0 {
		fontSize := fitFontSize(width, height, lines, style)
		leading := fontSize * 1.2

		fmt.Fprintf(&buf, "%s rg\n", rgb(style.TextColor))
		buf.WriteString("BT\n")
		fmt.Fprintf(&buf, "/F1 %s Tf\n", num(fontSize))
		fmt.Fprintf(&buf, "%s TL\n", num(leading))
		fmt.Fprintf(&buf, "%s %s Td\n", num(style.Padding), num(height-style.Padding-fontSize))
		for i, line := range lines {
			if i > 0 {
				buf.WriteString("T*\n")
			}
			fmt.Fprintf(&buf, "(%s) Tj\n", escapeString(line))
		}
		buf.WriteString("ET\n")
	}

	buf.WriteString("Q\n")
	return buf.Bytes()
}

// fitFontSize shrinks the style's font size until the lines fit the box,
// estimating glyphs at half the font size.
func fitFontSize(width, height float64, lines []string, style *StampStyle) float64 {
	size := style.FontSize
	availW := width - 2*style.Padding
	availH := height - 2*style.Padding

	longest := 0
	for _, line := range lines {
		longest = max(longest, len([]rune(line)))
	}

	if longest > 0 && float64(longest)*size*0.5 > availW {
		size = availW / (float64(longest) * 0.5)
	}
	if need := float64(len(lines)) * size * 1.2; need > availH {
		size = availH / (float64(len(lines)) * 1.2)
	}
	return max(size, 1)
}

// escapeString encodes s for a literal string shown with a WinAnsi font.
func escapeString(s string) string {
	var buf bytes.Buffer
	for _, r := range s {
		switch r {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteRune(r)
			continue
		}
		if r < 0x80 {
			buf.WriteRune(r)
			continue
		}
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
		}
		fmt.Fprintf(&buf, "\\%03o", b)
	}
	return buf.String()
}

func rgb(c color.RGBA) string {
	return fmt.Sprintf("%s %s %s", num(float64(c.R)/255), num(float64(c.G)/255), num(float64(c.B)/255))
}

// num formats a content stream number without trailing zeros.
func num(v float64) string {
	var buf bytes.Buffer
	generic.RealObject(v).Write(&buf)
	return buf.String()
}
