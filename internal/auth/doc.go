// Package auth turns request credentials into a registry.Identity.
//
// Two credential kinds are accepted:
//   - HS256 JWT bearer tokens whose subject is the caller identity
//   - API keys for machine callers, stored as Argon2id hashes
//
// Nothing here decides what an identity may do. Ownership checks belong to
// the registry package and the store.
package auth
