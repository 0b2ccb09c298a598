// Package errs defines the error taxonomy shared across the service.
package errs

import "fmt"

// ConfigurationError reports bad or missing key material or other startup
// configuration that cannot be recovered from at runtime.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// UpstreamError is a non-2xx response from the GitHub API.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("github api error: status %d: %s", e.Status, e.Message)
}

// UpstreamAuthError is a failed credential exchange (app assertion or
// installation token) against the GitHub API.
type UpstreamAuthError struct {
	Status int
}

func (e *UpstreamAuthError) Error() string {
	return fmt.Sprintf("github auth error: status %d", e.Status)
}

// NotLinkedError means the owner has no GitHub App installation on record.
type NotLinkedError struct {
	OwnerID int64
}

func (e *NotLinkedError) Error() string {
	return fmt.Sprintf("no github installation linked for owner %d", e.OwnerID)
}

// InvalidSignatureError is a webhook whose HMAC signature did not match the
// received body. The payload is rejected without being processed.
type InvalidSignatureError struct {
	Err error
}

func (e *InvalidSignatureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid webhook signature: %v", e.Err)
	}
	return "invalid webhook signature"
}

func (e *InvalidSignatureError) Unwrap() error { return e.Err }

// InvalidRepoLinkError is returned when a project's git link does not
// normalize to 'owner/name' form.
type InvalidRepoLinkError struct {
	Link string
}

func (e *InvalidRepoLinkError) Error() string {
	return fmt.Sprintf("invalid repository link: %q, expected 'owner/name'", e.Link)
}

