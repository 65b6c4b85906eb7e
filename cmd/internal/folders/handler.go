package folders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"notebox/cmd/identity"
	authapi "notebox/cmd/internal/auth/api"
	v1 "notebox/shared/contracts/auth/v1"
)

// Owners resolves the account behind a token subject.
type Owners interface {
	GetUserByID(ctx context.Context, id string) (identity.User, error)
}

// Handler serves the /folders routes for the authenticated subject.
type Handler struct {
	log          *slog.Logger
	store        Store
	owners       Owners
	maxBodyBytes int64
}

// NewHandler serves folders from store. Writes are refused with USER_NOT_FOUND once
// owners no longer knows the token's subject.
func NewHandler(log *slog.Logger, store Store, owners Owners) (*Handler, error) {
	if store == nil || owners == nil {
		return nil, errors.New("folders: store and owners are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, store: store, owners: owners, maxBodyBytes: 64 << 10}, nil
}

// Mount registers the folder routes behind requireAuth.
func (h *Handler) Mount(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Route(v1.PathFolders, func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Delete("/{id}", h.handleDelete)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	sub, ok := authapi.SubjectFromContext(r.Context())
	if !ok {
		authapi.WriteError(w, http.StatusUnauthorized, v1.CodeNoToken, "missing bearer token")
		return
	}

	list, err := h.store.List(r.Context(), sub.ID)
	if err != nil {
		h.log.Error("folders.list.fail", "err", err, "user_id", sub.ID)
		authapi.WriteError(w, http.StatusInternalServerError, v1.CodeInternal, "internal error")
		return
	}

	out := v1.FoldersResponse{Success: true, Folders: make([]v1.Folder, 0, len(list))}
	for _, f := range list {
		out.Folders = append(out.Folders, toWire(f))
	}
	authapi.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	sub, ok := authapi.SubjectFromContext(r.Context())
	if !ok {
		authapi.WriteError(w, http.StatusUnauthorized, v1.CodeNoToken, "missing bearer token")
		return
	}

	var req v1.CreateFolderRequest
	if err := authapi.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		authapi.WriteError(w, http.StatusBadRequest, v1.CodeInvalidJSON, "invalid request body")
		return
	}
	if NormalizeName(req.Name) == "" {
		authapi.WriteError(w, http.StatusBadRequest, v1.CodeMissingFields, "name is required")
		return
	}
	if _, err := h.owners.GetUserByID(r.Context(), sub.ID); err != nil {
		if identity.IsNotFound(err) {
			authapi.WriteError(w, http.StatusNotFound, v1.CodeUserNotFound, "user not found")
			return
		}
		h.log.Error("folders.owner.lookup.fail", "err", err, "user_id", sub.ID)
		authapi.WriteError(w, http.StatusInternalServerError, v1.CodeInternal, "internal error")
		return
	}

	f, err := h.store.Create(r.Context(), sub.ID, req.Name, time.Now().UTC())
	switch {
	case err == nil:
	case errors.Is(err, ErrOwnerNotFound):
		authapi.WriteError(w, http.StatusNotFound, v1.CodeUserNotFound, "user not found")
		return
	case errors.Is(err, ErrExists):
		authapi.WriteError(w, http.StatusConflict, v1.CodeFolderExists, "folder already exists")
		return
	case errors.Is(err, ErrInvalidName):
		authapi.WriteError(w, http.StatusBadRequest, v1.CodeMissingFields, "folder name is too long")
		return
	default:
		h.log.Error("folders.create.fail", "err", err, "user_id", sub.ID)
		authapi.WriteError(w, http.StatusInternalServerError, v1.CodeInternal, "internal error")
		return
	}

	authapi.WriteJSON(w, http.StatusCreated, v1.FolderResponse{Success: true, Folder: toWire(f)})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sub, ok := authapi.SubjectFromContext(r.Context())
	if !ok {
		authapi.WriteError(w, http.StatusUnauthorized, v1.CodeNoToken, "missing bearer token")
		return
	}

	err := h.store.Delete(r.Context(), sub.ID, chi.URLParam(r, "id"))
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		authapi.WriteError(w, http.StatusNotFound, v1.CodeFolderNotFound, "folder not found")
		return
	default:
		h.log.Error("folders.delete.fail", "err", err, "user_id", sub.ID)
		authapi.WriteError(w, http.StatusInternalServerError, v1.CodeInternal, "internal error")
		return
	}
	authapi.WriteJSON(w, http.StatusOK, v1.SuccessResponse{Success: true})
}

func toWire(f Folder) v1.Folder {
	return v1.Folder{ID: f.ID, Name: f.Name, CreatedAt: f.CreatedAt.UTC().Format(time.RFC3339)}
}
