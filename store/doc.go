// Package store provides the persisted token slots used by the session manager:
// identity token, access token, refresh token and the login nonce.
//
// # Key scheme
//
// Every slot is addressed as "<prefix>::<clientID>::<field>". The prefix and client
// identifier namespace the slots so several applications can share one backend.
//
// # Architecture boundaries
//
// This package owns the [TokenStore] facade and the [Backend] port. Concrete
// backends live in sub-packages (redisstore, keyringstore, sqlitestore) so that
// importers only link the driver they use. [Memory] is provided here for tests and
// short-lived processes.
//
// # What this package must NOT do
//
//   - Import authclient, jwt or flows (no upward imports).
//   - Interpret token contents. Slots hold opaque strings.
//   - Log slot values.
package store
