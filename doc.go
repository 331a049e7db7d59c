// Package authclient manages the authentication session of a client application:
// restoring a persisted identity, logging in with the PASSWORD or CODE (PKCE)
// grant, silently refreshing access tokens and tearing the session down on any
// failure or explicit logout.
//
// A [Manager] is built once through [Builder.Build] and is safe to call from
// multiple goroutines. It is the sole writer of the token store; every failure
// path converges on [Manager.Invalidate] so stale tokens never outlive a session.
//
// # Architecture boundaries
//
// authclient is the public surface. It exposes [Manager], [Builder], [Config] and
// value types (Session, User, MetricsSnapshot, AuditEvent). Storage media live in
// store/ and its sub-packages, the remote service contract in remote/, token
// verification in jwt/. Flow orchestration and audit dispatch live under
// internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Return errors or panic from Invalidate, Login, Logout or GetAccessToken for
//     expected failures; those become state transitions and bool / "" results.
//   - Log or audit token, password, nonce or PKCE material.
//   - Import any sub-package that re-imports authclient (no import cycles).
package authclient
