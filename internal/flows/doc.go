// Package flows contains the orchestration steps behind each Manager operation:
// the PASSWORD and CODE login grants, silent refresh, token validation and the
// best-effort logout notification.
//
// Each flow function (RunLogin, RunRefresh, RunLogoutNotify, ValidateToken)
// accepts a typed dependency struct and returns a Result carrying a failure kind
// instead of deciding session state itself.
//
// # Architecture boundaries
//
// Flow functions call the remote service, the PKCE generator and the token
// validator. They never touch the token store or the session state: persisting a
// result and choosing the Invalidate reason stay with the Manager.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authclient (to avoid import cycles).
//   - Log secrets: tokens, passwords, nonces, codes and verifiers.
package flows
