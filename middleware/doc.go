// Package middleware connects a Manager session to net/http.
//
// # Client side
//
// [Transport] injects "Authorization: Bearer <token>" from
// [authclient.Manager.GetAccessToken] into outgoing requests and invalidates the
// session when a resource server answers 401.
//
// # Server side
//
// [Guard] verifies bearer tokens with a [jwt.Verifier] and stores the claims in
// the request context, for resource servers and the development server.
//
// # What this package must NOT do
//
//   - Read or write the token store directly; the Manager owns it.
//   - Retry a request after a 401.
package middleware
