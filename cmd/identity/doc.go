// Package identity owns notebox user accounts.
//
// It defines the canonical User record, the Store persistence boundary with Postgres
// and in-memory implementations, and the credential check used by login and
// password changes.
package identity
