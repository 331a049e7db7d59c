// Package internal contains helpers private to the auth client: nonce and PKCE
// generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: login, refresh, validation and logout orchestration used by the Manager
//
// # What this package must NOT do
//
//   - Export types that appear in the public authclient API.
//   - Be imported by any package outside the auth-client module.
package internal
