// Package catalog is the pricing table and capability registry: one
// immutable descriptor per provider/model, keyed uniquely, read-only
// after loading. Policy (ordering, eligibility) lives in the selector;
// the catalog only stores and lists.
package catalog

import (
	"sort"
)

// Catalog holds registered descriptors. It is not safe for concurrent
// registration, but once loaded it is never mutated and is safe for
// unsynchronized concurrent reads. Use Store for atomic reloads.
type Catalog struct {
	Version     string
	descriptors map[string]Descriptor
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{descriptors: make(map[string]Descriptor)}
}

// Register adds a descriptor. It fails fast on invalid fields and on a
// duplicate (provider, model) key.
func (c *Catalog) Register(desc Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if _, exists := c.descriptors[desc.Key()]; exists {
		return &DuplicateModelError{Provider: desc.Provider, Model: desc.Model}
	}
	c.descriptors[desc.Key()] = desc
	return nil
}

// Lookup returns the descriptor for (provider, model), or
// UnknownModelError if absent.
func (c *Catalog) Lookup(provider, model string) (Descriptor, error) {
	desc, ok := c.descriptors[provider+"/"+model]
	if !ok {
		return Descriptor{}, &UnknownModelError{Provider: provider, Model: model}
	}
	return desc, nil
}

// Candidates returns every registered descriptor in a stable order
// (provider, then model). The order carries no policy meaning; the
// selector defines preference.
func (c *Catalog) Candidates() []Descriptor {
	out := make([]Descriptor, 0, len(c.descriptors))
	for _, desc := range c.descriptors {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// Len returns the number of registered descriptors.
func (c *Catalog) Len() int {
	return len(c.descriptors)
}
