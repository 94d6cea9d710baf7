package router

import (
	"errors"
	"fmt"
)

// ProviderErrorKind classifies transient provider failures.
type ProviderErrorKind string

const (
	ProviderUnavailable ProviderErrorKind = "unavailable"
	ProviderRateLimited ProviderErrorKind = "rate-limited"
	ProviderTimeout     ProviderErrorKind = "timeout"
)

// ProviderError is a transient failure from a provider call. The router
// retries the same provider once, then fails over to the next eligible
// candidate if the request allows it.
type ProviderError struct {
	Provider string
	Model    string
	Kind     ProviderErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s/%s %s: %v", e.Provider, e.Model, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s/%s %s", e.Provider, e.Model, e.Kind)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var providerErr *ProviderError
	return errors.As(err, &providerErr)
}

// MissingCredentialError reports that the user has no API key stored
// for the chosen provider. Fatal for the request and user-actionable;
// the router never substitutes a different provider silently.
type MissingCredentialError struct {
	UserID   string
	Provider string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("no credential for user %s on provider %s", e.UserID, e.Provider)
}

// NoClientError reports a catalog descriptor with no registered client.
// Configuration error, fatal at request time.
type NoClientError struct {
	Provider string
}

func (e *NoClientError) Error() string {
	return fmt.Sprintf("no client registered for provider %s", e.Provider)
}

// ProviderIntegrityError reports a provider whose actual token usage
// overran its own declared context window. The exchange result stands
// and its cost is committed; the fault is surfaced, never silently
// adjusted away.
type ProviderIntegrityError struct {
	Provider     string
	Model        string
	WindowTokens int
	ActualTokens int
}

func (e *ProviderIntegrityError) Error() string {
	return fmt.Sprintf("provider %s/%s reported %d tokens against a declared window of %d",
		e.Provider, e.Model, e.ActualTokens, e.WindowTokens)
}
