package signing

import (
	"slices"
	"sync"

	"github.com/georgepadayatti/pdfsign/keys"
	"github.com/georgepadayatti/pdfsign/stamp"
)

// Visibility selects whether the signature gets a visible widget.
type Visibility string

const (
	VisibilityVisible Visibility = "visible"
	VisibilityHidden  Visibility = "hidden"
)

// EnumRegistry lists the values accepted by the request surface. It is built
// once and never mutated.
type EnumRegistry struct {
	positions    []stamp.Position
	visibilities []Visibility
	keyTypes     []keys.KeyType
}

var (
	registry     *EnumRegistry
	registryOnce sync.Once
)

// Registry returns the process-wide enum registry.
func Registry() *EnumRegistry {
	registryOnce.Do(func() {
		registry = &EnumRegistry{
			positions:    slices.Clone(stamp.Positions),
			visibilities: []Visibility{VisibilityVisible, VisibilityHidden},
			keyTypes:     []keys.KeyType{keys.KeyTypeDefault, keys.KeyTypePKCS12},
		}
	})
	return registry
}

// Positions returns the named widget positions.
func (r *EnumRegistry) Positions() []stamp.Position {
	return slices.Clone(r.positions)
}

// Visibilities returns the visibility values.
func (r *EnumRegistry) Visibilities() []Visibility {
	return slices.Clone(r.visibilities)
}

// KeyTypes returns the key store types.
func (r *EnumRegistry) KeyTypes() []keys.KeyType {
	return slices.Clone(r.keyTypes)
}

// ValidPosition reports whether p is a named position or the empty one.
func (r *EnumRegistry) ValidPosition(p stamp.Position) bool {
	return p == stamp.PositionNone || slices.Contains(r.positions, p)
}

// ValidKeyType reports whether t is supported.
func (r *EnumRegistry) ValidKeyType(t keys.KeyType) bool {
	return slices.Contains(r.keyTypes, t)
}
