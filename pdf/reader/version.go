package reader

import (
	"fmt"

	goversion "github.com/hashicorp/go-version"
)

// ParseVersion parses a PDF version string such as "1.7".
func ParseVersion(s string) (*goversion.Version, error) {
	v, err := goversion.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("invalid PDF version %q: %w", s, err)
	}
	return v, nil
}

// EffectiveVersion returns the document version: the later of the header
// version and the catalog /Version entry.
func (r *PdfFileReader) EffectiveVersion() string {
	best := r.Version
	bestV, _ := ParseVersion(r.Version)

	if name := r.Root.GetName("Version"); name != "" {
		if v, err := ParseVersion(name); err == nil && (bestV == nil || v.GreaterThan(bestV)) {
			best = name
		}
	}
	return best
}

// VersionAtLeast reports whether the effective version is at least minimum.
func (r *PdfFileReader) VersionAtLeast(minimum string) bool {
	return VersionAtLeast(r.EffectiveVersion(), minimum)
}

// VersionAtLeast compares two PDF version strings. Unparseable versions
// compare as too old.
func VersionAtLeast(have, minimum string) bool {
	h, err := ParseVersion(have)
	if err != nil {
		return false
	}
	m, err := ParseVersion(minimum)
	if err != nil {
		return false
	}
	return h.GreaterThanOrEqual(m)
}
