// Package token holds the key material helpers behind session token signing.
//
// It loads the HMAC signing secret from the environment, enforces a minimum key size
// when the deployment requires it, and derives short fingerprints of issued tokens so
// logs and audit rows can correlate a token without storing it.
//
// Environment:
//   - NOTEBOX_TOKEN_SECRET: HMAC secret used to sign session tokens.
package token
