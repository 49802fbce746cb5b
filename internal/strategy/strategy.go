// Package strategy runs declarative auto-trading strategies on a timer and
// provides a Registry of the budget allocators they can name.
package strategy

import (
	"sort"

	"github.com/shopspring/decimal"

	"commander/internal/domain"
)

// Allocator computes the total budget of one strategy tick.
type Allocator interface {
	// Name returns the sizing type this allocator serves, e.g. "bp_percent".
	Name() string

	// Budget returns the dollars to spend this tick, given the strategy's
	// sizing value and the current buying power. It never exceeds
	// buyingPower.
	Budget(value, buyingPower decimal.Decimal) (decimal.Decimal, error)
}

// Registry holds a named collection of allocators for lookup and enumeration.
type Registry struct {
	allocators map[domain.SizingType]Allocator
}

// NewRegistry creates an empty allocator Registry.
func NewRegistry() *Registry {
	return &Registry{
		allocators: make(map[domain.SizingType]Allocator),
	}
}

// Register adds an allocator to the registry, keyed by its Name().
func (r *Registry) Register(a Allocator) {
	r.allocators[domain.SizingType(a.Name())] = a
}

// Get retrieves the allocator for a sizing type. The second return value
// indicates whether it was found.
func (r *Registry) Get(t domain.SizingType) (Allocator, bool) {
	a, ok := r.allocators[t]
	return a, ok
}

// List returns a sorted slice of all registered sizing types.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.allocators))
	for name := range r.allocators {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}
