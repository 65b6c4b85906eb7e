// Package password provides password hashing and verification for notebox accounts.
//
// New hashes are Argon2id in a PHC-like encoded string. Verification also accepts bcrypt
// hashes ($2a$, $2b$, $2y$) carried over from accounts created by the previous backend;
// callers upgrade those with NeedsRehash after a successful login.
//
// Hash strings are treated as untrusted input during Verify and parameters above
// reasonable bounds are refused.
package password
