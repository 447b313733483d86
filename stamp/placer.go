// Package stamp places visible signatures on a page and draws their
// appearance.
package stamp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/georgepadayatti/pdfsign/pdf/generic"
)

// ErrInvalidPosition is returned for unknown position names.
var ErrInvalidPosition = errors.New("invalid signature position")

// Position names where a visible signature is anchored on the page.
type Position string

const (
	PositionTopLeft     Position = "topleft"
	PositionTopRight    Position = "topright"
	PositionBottomLeft  Position = "bottomleft"
	PositionBottomRight Position = "bottomright"
	PositionCenter      Position = "center"
	PositionManual      Position = "manual"
	// PositionNone is the unset position; it places like PositionManual.
	PositionNone Position = ""
)

// Positions lists the accepted position names.
var Positions = []Position{
	PositionTopLeft,
	PositionTopRight,
	PositionBottomLeft,
	PositionBottomRight,
	PositionCenter,
	PositionManual,
}

// ParsePosition parses a position name, ignoring case and surrounding space.
// The empty string yields PositionNone.
func ParsePosition(s string) (Position, error) {
	p := Position(strings.ToLower(strings.TrimSpace(s)))
	if p == PositionNone {
		return PositionNone, nil
	}
	for _, known := range Positions {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPosition, s)
}

// Place computes the signature rectangle on a page of the given size.
// The rectangle is returned as (x0, y0, x1, y1) in page space:
//
//	bottomleft   (0, h, w, 0)
//	bottomright  (W-w, h, W, 0)
//	topleft      (0, H, w, H-h)
//	topright     (W-w, H, W, H-h)
//	center       (W/2-w/2, H/2-h/2, W/2+w/2, H/2+h/2)
//	manual, none (x, y, x+w, y-h)
//
// where W and H are the page width and height.
func Place(position Position, pageRect generic.Rectangle, width, height, manualX, manualY float64) generic.Rectangle {
	pageW := pageRect.Width()
	pageH := pageRect.Height()

	switch position {
	case PositionBottomLeft:
		return generic.Rectangle{LLX: 0, LLY: height, URX: width, URY: 0}
	case PositionBottomRight:
		return generic.Rectangle{LLX: pageW - width, LLY: height, URX: pageW, URY: 0}
	case PositionTopLeft:
		return generic.Rectangle{LLX: 0, LLY: pageH, URX: width, URY: pageH - height}
	case PositionTopRight:
		return generic.Rectangle{LLX: pageW - width, LLY: pageH, URX: pageW, URY: pageH - height}
	case PositionCenter:
		return generic.Rectangle{
			LLX: pageW/2 - width/2,
			LLY: pageH/2 - height/2,
			URX: pageW/2 + width/2,
			URY: pageH/2 + height/2,
		}
	default:
		return generic.Rectangle{LLX: manualX, LLY: manualY, URX: manualX + width, URY: manualY - height}
	}
}
