// Package v1 defines the notebox auth API v1 wire contract.
//
// It is shared by the server handlers and the client so both sides agree on field
// names, paths and error codes.
package v1

import "strings"

// Paths (wire-stable).
const (
	PathRegister       = "/register"
	PathLogin          = "/login"
	PathRefreshToken   = "/refresh-token"
	PathProfile        = "/profile"
	PathChangePassword = "/change-password"
	PathFolders        = "/folders"
)

// User is the public profile returned by every auth endpoint.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Complete reports whether the user carries the fields a client session needs.
func (u User) Complete() bool {
	return strings.TrimSpace(u.ID) != "" && strings.TrimSpace(u.Email) != ""
}

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned by register, login and refresh.
type SessionResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	User    User   `json:"user"`
}

// UpdateProfileRequest is the body of PUT /profile.
type UpdateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ProfileResponse is returned by PUT /profile.
type ProfileResponse struct {
	Success bool `json:"success"`
	User    User `json:"user"`
}

// ChangePasswordRequest is the body of POST /change-password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// SuccessResponse is returned by endpoints with no payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// Folder is a user-owned container for notes.
type Folder struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

// CreateFolderRequest is the body of POST /folders.
type CreateFolderRequest struct {
	Name string `json:"name"`
}

// FolderResponse is returned by POST /folders.
type FolderResponse struct {
	Success bool   `json:"success"`
	Folder  Folder `json:"folder"`
}

// FoldersResponse is returned by GET /folders.
type FoldersResponse struct {
	Success bool     `json:"success"`
	Folders []Folder `json:"folders"`
}

// Error is the error object inside ErrorResponse.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Success bool  `json:"success"`
	Error   Error `json:"error"`
}
