// Package jwt verifies identity and access tokens held by the session manager and,
// for development servers and tests, issues them.
//
// Verification is local: signature, algorithm pinning, expiry, optional issuer and
// audience. A token whose subject claim is empty is rejected.
package jwt
