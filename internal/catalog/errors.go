package catalog

import "fmt"

// DuplicateModelError reports a second registration for an already
// registered (provider, model) key. Registration-time misconfiguration.
type DuplicateModelError struct {
	Provider string
	Model    string
}

func (e *DuplicateModelError) Error() string {
	return fmt.Sprintf("duplicate model registration: %s/%s", e.Provider, e.Model)
}

// UnknownModelError reports a lookup for a (provider, model) key that
// was never registered.
type UnknownModelError struct {
	Provider string
	Model    string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model: %s/%s", e.Provider, e.Model)
}
