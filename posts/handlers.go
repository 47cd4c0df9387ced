package posts

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/user/quill-go/apperror"
	"github.com/user/quill-go/assets"
	"github.com/user/quill-go/auth"
)

// thumbnailField is the multipart field carrying a post thumbnail.
const thumbnailField = "thumbnail"

// PostHandler handles HTTP requests for posts.
type PostHandler struct {
	service *PostService
}

// NewPostHandler creates a new PostHandler.
func NewPostHandler(service *PostService) *PostHandler {
	return &PostHandler{service: service}
}

// RegisterRoutes mounts the post routes on the `/api/posts` sub-router.
// Reads are public; guard protects create, edit and delete.
func (h *PostHandler) RegisterRoutes(router chi.Router, guard func(http.Handler) http.Handler) {
	router.Get("/", h.getPosts)
	router.Get("/{id}", h.getPost)
	router.Get("/categories/{categoryId}", h.getCategoryPosts)
	router.Get("/users/{id}", h.getUserPosts)

	router.Group(func(r chi.Router) {
		r.Use(guard)
		r.Post("/", h.createPost)
		r.Patch("/{id}", h.editPost)
		r.Delete("/{id}", h.deletePost)
	})
}

func identityOrError(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		auth.WriteError(w, r, apperror.NewAuthError("Unauthorized. No token.", nil))
		return nil, false
	}
	return identity, true
}

// createPost godoc
// @Summary Create a post
// @Tags posts
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param title formData string true "Title"
// @Param description formData string true "Body"
// @Param category formData string true "Category" Enums(Agriculture, Business, Education, Entertainment, Art, Investment, Uncategorized, Weather)
// @Param thumbnail formData file true "Thumbnail, at most 2,000,000 bytes"
// @Success 201 {object} store.Post
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 403 {object} apperror.ErrorResponse
// @Failure 413 {object} apperror.ErrorResponse
// @Failure 422 {object} apperror.ErrorResponse
// @Router /posts [post]
func (h *PostHandler) createPost(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrError(w, r)
	if !ok {
		return
	}
	if !assets.IsMultipart(r) {
		auth.WriteError(w, r, apperror.NewValidationError(msgCreateFields, nil))
		return
	}
	if err := assets.ParseForm(w, r, h.service.ThumbnailConstraints()); err != nil {
		auth.WriteError(w, r, err)
		return
	}
	defer assets.CleanupForm(r)

	upload, err := assets.FormUpload(r, thumbnailField)
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}
	defer upload.Close()

	post, err := h.service.CreatePost(r.Context(), identity, CreatePostRequest{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Thumbnail:   upload,
	})
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}
	auth.WriteJSON(w, http.StatusCreated, post)
}

// getPosts godoc
// @Summary List posts
// @Description Every post, most recently updated first.
// @Tags posts
// @Produce json
// @Success 200 {array} store.Post
// @Router /posts [get]
func (h *PostHandler) getPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.GetPosts(r.Context())
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, posts)
}

// getPost godoc
// @Summary Get a post
// @Tags posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} store.Post
// @Failure 404 {object} apperror.ErrorResponse
// @Router /posts/{id} [get]
func (h *PostHandler) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.service.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, post)
}

// getCategoryPosts godoc
// @Summary List posts in a category
// @Tags posts
// @Produce json
// @Param categoryId path string true "Category"
// @Success 200 {array} store.Post
// @Router /posts/categories/{categoryId} [get]
func (h *PostHandler) getCategoryPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.GetCategoryPosts(r.Context(), chi.URLParam(r, "categoryId"))
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, posts)
}

// getUserPosts godoc
// @Summary List a user's posts
// @Tags posts
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {array} store.Post
// @Router /posts/users/{id} [get]
func (h *PostHandler) getUserPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.GetUserPosts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, posts)
}

// editPost godoc
// @Summary Edit a post
// @Description Accepts multipart form data (optionally with a new thumbnail) or a JSON body with the text fields.
// @Tags posts
// @Accept mpfd,json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Param title formData string true "Title"
// @Param description formData string true "Body, at least 12 characters"
// @Param category formData string true "Category"
// @Param thumbnail formData file false "Replacement thumbnail"
// @Success 200 {object} store.Post
// @Failure 403 {object} apperror.ErrorResponse "Not the creator"
// @Failure 404 {object} apperror.ErrorResponse
// @Failure 413 {object} apperror.ErrorResponse
// @Failure 422 {object} apperror.ErrorResponse
// @Router /posts/{id} [patch]
func (h *PostHandler) editPost(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrError(w, r)
	if !ok {
		return
	}

	var req EditPostRequest
	if assets.IsMultipart(r) {
		if err := assets.ParseForm(w, r, h.service.ThumbnailConstraints()); err != nil {
			auth.WriteError(w, r, err)
			return
		}
		defer assets.CleanupForm(r)

		upload, err := assets.FormUpload(r, thumbnailField)
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		defer upload.Close()

		req = EditPostRequest{
			Title:       r.FormValue("title"),
			Category:    r.FormValue("category"),
			Description: r.FormValue("description"),
			Thumbnail:   upload,
		}
	} else if err := auth.DecodeJSON(w, r, &req); err != nil {
		auth.WriteError(w, r, err)
		return
	}

	post, err := h.service.EditPost(r.Context(), identity, chi.URLParam(r, "id"), req)
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, post)
}

// deletePost godoc
// @Summary Delete a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Success 200 {string} string "Post <id> deleted Successfully."
// @Failure 403 {object} apperror.ErrorResponse "Not the creator"
// @Failure 404 {object} apperror.ErrorResponse
// @Router /posts/{id} [delete]
func (h *PostHandler) deletePost(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrError(w, r)
	if !ok {
		return
	}

	message, err := h.service.DeletePost(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}
	// Existing clients read the confirmation as a bare JSON string.
	auth.WriteJSON(w, http.StatusOK, message)
}
