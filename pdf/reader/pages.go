package reader

import (
	"fmt"

	"github.com/georgepadayatti/pdfsign/pdf/generic"
)

// DefaultMediaBox is used when neither a page nor its ancestors declare one.
var DefaultMediaBox = generic.Rectangle{URX: 612, URY: 792}

// Page is a leaf of the page tree with its inheritable attributes resolved.
type Page struct {
	Ref      generic.Reference
	Dict     *generic.DictionaryObject
	MediaBox generic.Rectangle
	CropBox  *generic.Rectangle
	// Rotate is normalized to 0, 90, 180 or 270.
	Rotate    int
	Resources generic.PdfObject
}

// inherited carries the attributes a page node passes to its kids.
type inherited struct {
	mediaBox  *generic.Rectangle
	cropBox   *generic.Rectangle
	rotate    *int
	resources generic.PdfObject
}

func (r *PdfFileReader) loadPages() error {
	pagesRef, ok := r.Root.Get("Pages").(generic.Reference)
	if !ok {
		return fmt.Errorf("%w: missing Pages reference", ErrInvalidPDF)
	}

	node, err := r.GetDict(pagesRef)
	if err != nil {
		return err
	}

	visited := map[int]bool{pagesRef.ObjectNumber: true}
	return r.loadPageTree(pagesRef, node, inherited{}, visited)
}

func (r *PdfFileReader) loadPageTree(ref generic.Reference, node *generic.DictionaryObject, attrs inherited, visited map[int]bool) error {
	if box := r.rectangle(node.Get("MediaBox")); box != nil {
		attrs.mediaBox = box
	}
	if box := r.rectangle(node.Get("CropBox")); box != nil {
		attrs.cropBox = box
	}
	if rot, ok := r.Resolve(node.Get("Rotate")).(generic.IntegerObject); ok {
		v := int(rot)
		attrs.rotate = &v
	}
	if res := node.Get("Resources"); res != nil {
		attrs.resources = res
	}

	if node.GetName("Type") == "Page" || (node.GetName("Type") == "" && !node.Has("Kids")) {
		page := &Page{
			Ref:       ref,
			Dict:      node,
			MediaBox:  DefaultMediaBox,
			CropBox:   attrs.cropBox,
			Resources: attrs.resources,
		}
		if attrs.mediaBox != nil {
			page.MediaBox = *attrs.mediaBox
		}
		if attrs.rotate != nil {
			page.Rotate = normalizeRotation(*attrs.rotate)
		}
		r.Pages = append(r.Pages, page)
		return nil
	}

	for _, kid := range r.ResolveArray(node.Get("Kids")) {
		kidRef, ok := kid.(generic.Reference)
		if !ok || visited[kidRef.ObjectNumber] {
			continue
		}
		visited[kidRef.ObjectNumber] = true

		kidDict, err := r.GetDict(kidRef)
		if err != nil {
			return fmt.Errorf("page tree node %d: %w", kidRef.ObjectNumber, err)
		}
		if err := r.loadPageTree(kidRef, kidDict, attrs, visited); err != nil {
			return err
		}
	}

	return nil
}

func (r *PdfFileReader) rectangle(obj generic.PdfObject) *generic.Rectangle {
	arr := r.ResolveArray(obj)
	if arr == nil {
		return nil
	}
	resolved := make(generic.ArrayObject, len(arr))
	for i, v := range arr {
		resolved[i] = r.Resolve(v)
	}
	rect, err := generic.NewRectangle(resolved)
	if err != nil {
		return nil
	}
	return rect
}

func normalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	// Only quarter turns are meaningful.
	return deg / 90 * 90
}

// PageCount returns the number of pages.
func (r *PdfFileReader) PageCount() int {
	return len(r.Pages)
}

// GetPage returns a page by 0-based index.
func (r *PdfFileReader) GetPage(index int) (*Page, error) {
	if index < 0 || index >= len(r.Pages) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, index, len(r.Pages))
	}
	return r.Pages[index], nil
}

// PageSize returns the visible page area as the user sees it: the media box
// clipped to the crop box, moved to the origin, with width and height swapped
// for pages rotated by 90 or 270 degrees.
func (r *PdfFileReader) PageSize(index int) (generic.Rectangle, error) {
	page, err := r.GetPage(index)
	if err != nil {
		return generic.Rectangle{}, err
	}
	return page.Size(), nil
}

// Size returns the page size, see PdfFileReader.PageSize.
func (p *Page) Size() generic.Rectangle {
	box := p.visibleBox()
	w, h := box.Width(), box.Height()
	if p.Rotate == 90 || p.Rotate == 270 {
		w, h = h, w
	}
	return generic.Rectangle{URX: w, URY: h}
}

func (p *Page) visibleBox() generic.Rectangle {
	box := p.MediaBox.Normalize()
	if p.CropBox != nil {
		box = box.Intersect(*p.CropBox)
	}
	return box
}

// ToPageSpace maps a rectangle given in the coordinates of Size, the page as
// displayed, into the page's default user space, undoing /Rotate and the
// crop box offset. The result is normalized.
func (p *Page) ToPageSpace(r generic.Rectangle) generic.Rectangle {
	box := p.visibleBox()
	w, h := box.Width(), box.Height()

	point := func(x, y float64) (float64, float64) {
		switch p.Rotate {
		case 90:
			x, y = w-y, x
		case 180:
			x, y = w-x, h-y
		case 270:
			x, y = y, h-x
		}
		return box.LLX + x, box.LLY + y
	}

	llx, lly := point(r.LLX, r.LLY)
	urx, ury := point(r.URX, r.URY)
	return generic.Rectangle{LLX: llx, LLY: lly, URX: urx, URY: ury}.Normalize()
}

// ResolvePageNumber maps a requested page number to a valid 1-based page.
// Zero selects the first page, negative numbers count back from the last
// page (-1 is the last page) and out-of-range values are clamped.
func (r *PdfFileReader) ResolvePageNumber(requested int) int {
	return ResolvePageNumber(requested, r.PageCount())
}

// ResolvePageNumber is the arithmetic behind PdfFileReader.ResolvePageNumber.
func ResolvePageNumber(requested, count int) int {
	page := requested
	switch {
	case requested == 0:
		page = 1
	case requested < 0:
		page = count + 1 + requested
	case requested > count:
		page = count
	}
	return max(page, 1)
}
