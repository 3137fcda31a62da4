// Package auth resolves who is calling: it issues and parses session tokens,
// checks passwords, and carries the resolved Identity through the request context.
//
// A session token is an HS256 JWT whose "sv" claim is the user's sessionVersion
// at login. Deactivating a user, deleting them or changing their password
// increments sessionVersion, which invalidates every outstanding token within
// the VersionCache TTL.
package auth
