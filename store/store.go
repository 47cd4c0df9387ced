// Package store defines the persistence contract shared by the user and post workflows.
// Two implementations exist: store/postgres (pgx) for deployments and store/memory for
// tests and single-process runs. Both return the sentinels below so workflows never
// depend on driver-specific errors.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the requested record does not exist (or the id is not well formed).
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicate means a unique constraint (user email) would be violated.
	ErrDuplicate = errors.New("store: duplicate entry")
)

// User is a registered author. Password holds the bcrypt hash and is never serialized.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Avatar    string    `json:"avatar"`
	Posts     int       `json:"posts"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Post is a blog entry. Creator is set once at creation and never changes.
type Post struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Thumbnail   string    `json:"thumbnail"`
	Creator     string    `json:"creator"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UserChanges lists the fields to overwrite; nil fields keep their stored value.
type UserChanges struct {
	Name     *string
	Email    *string
	Password *string
	Avatar   *string
}

// PostChanges lists the fields to overwrite; nil fields keep their stored value.
type PostChanges struct {
	Title       *string
	Description *string
	Category    *string
	Thumbnail   *string
}

// UserRepository stores users.
type UserRepository interface {
	// CreateUser inserts u, filling in ID and timestamps. ErrDuplicate if the email is taken.
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	// GetUserByEmail matches the stored (lowercase) email exactly.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	// UpdateUser applies changes and bumps UpdatedAt, returning the stored result.
	UpdateUser(ctx context.Context, id string, changes UserChanges) (*User, error)
	// AdjustPostCount adds delta to the user's post counter atomically, never going below zero.
	AdjustPostCount(ctx context.Context, id string, delta int) error
}

// PostRepository stores posts.
type PostRepository interface {
	// CreatePost inserts p, filling in ID and timestamps.
	CreatePost(ctx context.Context, p *Post) error
	GetPost(ctx context.Context, id string) (*Post, error)
	// ListPosts returns every post, most recently updated first.
	ListPosts(ctx context.Context) ([]*Post, error)
	// ListPostsByCategory returns the category's posts, newest first.
	ListPostsByCategory(ctx context.Context, category string) ([]*Post, error)
	// ListPostsByCreator returns the user's posts, newest first.
	ListPostsByCreator(ctx context.Context, creatorID string) ([]*Post, error)
	UpdatePost(ctx context.Context, id string, changes PostChanges) (*Post, error)
	DeletePost(ctx context.Context, id string) error
}

// AssetIndex reports every asset name still referenced by a record.
type AssetIndex interface {
	ReferencedAssets(ctx context.Context) (map[string]struct{}, error)
}

// Store bundles the repositories one backend provides.
type Store interface {
	UserRepository
	PostRepository
	AssetIndex
	Close()
}
