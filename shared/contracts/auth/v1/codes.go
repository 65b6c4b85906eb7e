package v1

// Error codes (wire-stable).
const (
	CodeMissingFields      = "MISSING_FIELDS"
	CodeMissingCredentials = "MISSING_CREDENTIALS"
	CodeInvalidEmail       = "INVALID_EMAIL"
	CodeWeakPassword       = "WEAK_PASSWORD"
	CodeInvalidJSON        = "INVALID_JSON"
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeNoToken            = "NO_TOKEN"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeAccountDisabled    = "ACCOUNT_DISABLED"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	CodeFolderExists       = "FOLDER_EXISTS"
	CodeFolderNotFound     = "FOLDER_NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL"
	CodeServerBusy         = "SERVER_BUSY"
)
