package auth

import "errors"

var (
	// ErrTokenInvalid is returned for malformed, unsigned, expired or
	// subject-less tokens.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrAPIKeyInvalid is returned when an API key is malformed, unknown,
	// revoked or does not match its stored hash.
	ErrAPIKeyInvalid = errors.New("auth: invalid api key")

	// ErrAPIKeyNotFound is returned by lookups of a key ID that does not exist.
	ErrAPIKeyNotFound = errors.New("auth: api key not found")

	// ErrIdentityRequired is returned when issuing a credential for an empty identity.
	ErrIdentityRequired = errors.New("auth: identity required")
)
