package sessionclient

import (
	"errors"
	"fmt"
	"net/http"

	v1 "notebox/shared/contracts/auth/v1"
)

// Kind classifies a failed call. The set is closed.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuth
	KindConflict
	KindNetwork
	KindServer
	KindNotFound
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindConflict:
		return "conflict"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// ErrNoSession is the refresh failure when no token is stored.
var ErrNoSession = errors.New("sessionclient: no stored session")

// Error is returned by every failed call.
//
// Status and Code are zero for transport failures. When a 401/403 could not be recovered
// by refreshing, Refresh holds the refresh failure and the rest of the Error still
// describes the original response.
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Err     error
	Refresh error
}

func (e *Error) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Code != "":
		return fmt.Sprintf("%s: %d %s: %s", e.Kind, e.Status, e.Code, e.Message)
	default:
		return fmt.Sprintf("%s: %d: %s", e.Kind, e.Status, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == k
}

// HasCode reports whether err is an *Error carrying the wire code.
func HasCode(err error, code string) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

var codeKinds = map[string]Kind{
	v1.CodeMissingFields:      KindValidation,
	v1.CodeMissingCredentials: KindValidation,
	v1.CodeInvalidEmail:       KindValidation,
	v1.CodeWeakPassword:       KindValidation,
	v1.CodeInvalidJSON:        KindValidation,
	v1.CodeEmailExists:        KindConflict,
	v1.CodeFolderExists:       KindConflict,
	v1.CodeInvalidCredentials: KindAuth,
	v1.CodeNoToken:            KindAuth,
	v1.CodeInvalidToken:       KindAuth,
	v1.CodeTokenExpired:       KindAuth,
	v1.CodeAccountDisabled:    KindAuth,
	v1.CodeUserNotFound:       KindNotFound,
	v1.CodeFolderNotFound:     KindNotFound,
	v1.CodeNotFound:           KindNotFound,
	v1.CodeTooManyAttempts:    KindRateLimited,
	v1.CodeMethodNotAllowed:   KindValidation,
	v1.CodeInternal:           KindServer,
	v1.CodeServerBusy:         KindServer,
}

// CodeKind returns the kind a wire code belongs to.
func CodeKind(code string) (Kind, bool) {
	k, ok := codeKinds[code]
	return k, ok
}

// classify maps an HTTP failure to a Kind. The status decides; USER_NOT_FOUND, for
// example, is an auth failure on refresh (401) and a lookup failure on /profile (404).
func classify(status int, code string) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindValidation
	case status >= 500:
		return KindServer
	}
	if k, ok := CodeKind(code); ok {
		return k
	}
	if status >= 400 {
		return KindValidation
	}
	return KindServer
}
