// This file, `handlers.go`, maps the user routes onto UserService.
package users

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/user/quill-go/apperror"
	"github.com/user/quill-go/assets"
	"github.com/user/quill-go/auth"
)

// avatarField is the multipart field carrying the new avatar.
const avatarField = "avatar"

// UserHandlers provides HTTP handlers for the user workflow.
type UserHandlers struct {
	service *UserService
}

// NewUserHandlers creates new UserHandlers.
func NewUserHandlers(service *UserService) *UserHandlers {
	return &UserHandlers{service: service}
}

// RegisterRoutes mounts the user routes on router, which is expected to be the
// `/api/users` sub-router. guard protects the mutating routes. throttle, if not nil,
// wraps register and login.
func (h *UserHandlers) RegisterRoutes(router chi.Router, guard, throttle func(http.Handler) http.Handler) {
	router.Group(func(r chi.Router) {
		if throttle != nil {
			r.Use(throttle)
		}
		r.Post("/register", h.HandleRegister())
		r.Post("/login", h.HandleLogin())
	})

	router.Get("/", h.HandleGetAuthors())

	router.Group(func(r chi.Router) {
		r.Use(guard)
		r.Post("/change-avatar", h.HandleChangeAvatar())
		r.Patch("/edit-user", h.HandleEditUser())
	})

	router.Get("/{id}", h.HandleGetUser())
}

// identityOrError returns the identity the guard attached to the request.
func identityOrError(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		auth.WriteError(w, r, apperror.NewAuthError("Unauthorized. No token.", nil))
		return nil, false
	}
	return identity, true
}

// HandleRegister godoc
// @Summary Register a new user
// @Description Creates an account. The email is stored lowercased and must be unused.
// @Tags users
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration details"
// @Success 201 {object} auth.MessageResponse
// @Failure 422 {object} apperror.ErrorResponse "Missing fields, short password, mismatch or email taken"
// @Failure 429 {object} apperror.ErrorResponse
// @Router /users/register [post]
func (h *UserHandlers) HandleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := auth.DecodeJSON(w, r, &req); err != nil {
			auth.WriteError(w, r, err)
			return
		}

		message, err := h.service.Register(r.Context(), req)
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		auth.WriteJSON(w, http.StatusCreated, auth.MessageResponse{Message: message})
	}
}

// HandleLogin godoc
// @Summary Log in
// @Description Verifies credentials and returns a bearer token valid for 24 hours.
// @Tags users
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} apperror.ErrorResponse "Invalid credentials"
// @Failure 422 {object} apperror.ErrorResponse
// @Router /users/login [post]
func (h *UserHandlers) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := auth.DecodeJSON(w, r, &req); err != nil {
			auth.WriteError(w, r, err)
			return
		}

		resp, err := h.service.Login(r.Context(), req)
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		auth.WriteJSON(w, http.StatusOK, resp)
	}
}

// HandleGetUser godoc
// @Summary Get a user profile
// @Tags users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} store.User
// @Failure 404 {object} apperror.ErrorResponse
// @Router /users/{id} [get]
func (h *UserHandlers) HandleGetUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := h.service.GetUser(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		auth.WriteJSON(w, http.StatusOK, user)
	}
}

// HandleGetAuthors godoc
// @Summary List authors
// @Tags users
// @Produce json
// @Success 200 {array} store.User
// @Router /users [get]
func (h *UserHandlers) HandleGetAuthors() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authors, err := h.service.GetAuthors(r.Context())
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		auth.WriteJSON(w, http.StatusOK, authors)
	}
}

// HandleChangeAvatar godoc
// @Summary Change the caller's avatar
// @Tags users
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param avatar formData file true "New avatar, at most 500,000 bytes"
// @Success 200 {object} store.User
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 403 {object} apperror.ErrorResponse
// @Failure 413 {object} apperror.ErrorResponse
// @Failure 422 {object} apperror.ErrorResponse
// @Router /users/change-avatar [post]
func (h *UserHandlers) HandleChangeAvatar() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := identityOrError(w, r)
		if !ok {
			return
		}
		if !assets.IsMultipart(r) {
			auth.WriteError(w, r, apperror.NewValidationError(msgSelectImage, nil))
			return
		}
		if err := assets.ParseForm(w, r, h.service.avatar); err != nil {
			auth.WriteError(w, r, err)
			return
		}
		defer assets.CleanupForm(r)

		upload, err := assets.FormUpload(r, avatarField)
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		defer upload.Close()

		user, err := h.service.ChangeAvatar(r.Context(), identity, upload)
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		auth.WriteJSON(w, http.StatusOK, user)
	}
}

// HandleEditUser godoc
// @Summary Edit the caller's profile
// @Description Changes name, email and password. The current password is required.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body EditUserRequest true "New profile details"
// @Success 200 {object} store.User
// @Failure 401 {object} apperror.ErrorResponse "Missing token or wrong current password"
// @Failure 403 {object} apperror.ErrorResponse
// @Failure 422 {object} apperror.ErrorResponse
// @Router /users/edit-user [patch]
func (h *UserHandlers) HandleEditUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := identityOrError(w, r)
		if !ok {
			return
		}

		var req EditUserRequest
		if err := auth.DecodeJSON(w, r, &req); err != nil {
			auth.WriteError(w, r, err)
			return
		}

		user, err := h.service.EditUser(r.Context(), identity, req)
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		auth.WriteJSON(w, http.StatusOK, user)
	}
}
