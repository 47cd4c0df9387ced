// Package posts implements the post workflow: creation with a thumbnail, public listings,
// and owner-only edits and deletes that keep the creator's post counter and the asset
// directory in step with the records.
package posts

import "github.com/user/quill-go/assets"

// CreatePostRequest carries the form fields of POST /api/posts.
type CreatePostRequest struct {
	Title       string         `validate:"required"`
	Description string         `validate:"required"`
	Category    string         `validate:"required"`
	Thumbnail   *assets.Upload `validate:"required"`
}

// EditPostRequest carries PATCH /api/posts/{id}. Thumbnail is optional; without it only
// the text fields change.
type EditPostRequest struct {
	Title       string         `json:"title" validate:"required"`
	Category    string         `json:"category" validate:"required"`
	Description string         `json:"description" validate:"min=12"`
	Thumbnail   *assets.Upload `json:"-"`
}
