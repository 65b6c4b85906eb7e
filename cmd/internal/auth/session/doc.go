// Package session is the notebox Token Issuer.
//
// Session tokens are HS256 JWTs (header.payload.signature) carrying the subject's id and
// email, valid for a fixed TTL (7 days by default). Tokens are stateless: the server
// keeps no session rows, so any replica holding the secret can validate them.
//
// Validate enforces expiry. ValidateIgnoringExpiry still checks signature and structure
// but accepts an expired token; only the refresh path uses it, through Service.Refresh,
// which also re-reads the account so deleted or suspended users cannot refresh.
package session
