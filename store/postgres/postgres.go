// Package postgres implements store.Store on PostgreSQL through a pgx connection pool.
// The schema lives in migrations/ and is applied by db.RunMigrations.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/quill-go/store"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

const (
	userColumns = `id, name, email, password, avatar, posts, created_at, updated_at`
	postColumns = `id, title, description, category, thumbnail, creator, created_at, updated_at`
)

// Store is the pgx-backed store.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New wraps an open pool. The Store takes ownership and closes it in Close.
func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("postgres: nil pool")
	}
	return &Store{pool: pool}
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// validID reports whether id can be a primary key; anything else can never match a row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// translate maps driver errors onto store sentinels.
func translate(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return store.ErrDuplicate
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}

func scanUser(row pgx.Row) (*store.User, error) {
	var u store.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Avatar, &u.Posts, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanPost(row pgx.Row) (*store.Post, error) {
	var p store.Post
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Category, &p.Thumbnail, &p.Creator, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	query := `INSERT INTO users (id, name, email, password, avatar, posts)
              VALUES ($1, $2, $3, $4, $5, GREATEST($6, 0))
              RETURNING id, created_at, updated_at`
	id := uuid.NewString()
	err := s.pool.QueryRow(ctx, query, id, u.Name, u.Email, u.Password, u.Avatar, u.Posts).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return translate(err, "create user")
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get user")
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, translate(err, "get user by email")
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*store.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, translate(err, "list users")
	}
	defer rows.Close()

	users := make([]*store.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, translate(err, "scan user")
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list users")
	}
	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, changes store.UserChanges) (*store.User, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}
	// COALESCE keeps the stored value for every change left nil.
	query := `UPDATE users SET
                  name = COALESCE($2, name),
                  email = COALESCE($3, email),
                  password = COALESCE($4, password),
                  avatar = COALESCE($5, avatar),
                  updated_at = NOW()
              WHERE id = $1
              RETURNING ` + userColumns
	u, err := scanUser(s.pool.QueryRow(ctx, query, id, changes.Name, changes.Email, changes.Password, changes.Avatar))
	if err != nil {
		return nil, translate(err, "update user")
	}
	return u, nil
}

func (s *Store) AdjustPostCount(ctx context.Context, id string, delta int) error {
	if !validID(id) {
		return store.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `UPDATE users SET posts = GREATEST(posts + $2, 0) WHERE id = $1`, id, delta)
	if err != nil {
		return translate(err, "adjust post count")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreatePost(ctx context.Context, p *store.Post) error {
	query := `INSERT INTO posts (id, title, description, category, thumbnail, creator)
              VALUES ($1, $2, $3, $4, $5, $6)
              RETURNING id, created_at, updated_at`
	err := s.pool.QueryRow(ctx, query, uuid.NewString(), p.Title, p.Description, p.Category, p.Thumbnail, p.Creator).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return translate(err, "create post")
	}
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (*store.Post, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}
	p, err := scanPost(s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get post")
	}
	return p, nil
}

func (s *Store) queryPosts(ctx context.Context, op, query string, args ...interface{}) ([]*store.Post, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err, op)
	}
	defer rows.Close()

	posts := make([]*store.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, translate(err, op)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, op)
	}
	return posts, nil
}

func (s *Store) ListPosts(ctx context.Context) ([]*store.Post, error) {
	return s.queryPosts(ctx, "list posts",
		`SELECT `+postColumns+` FROM posts ORDER BY updated_at DESC`)
}

func (s *Store) ListPostsByCategory(ctx context.Context, category string) ([]*store.Post, error) {
	return s.queryPosts(ctx, "list posts by category",
		`SELECT `+postColumns+` FROM posts WHERE category = $1 ORDER BY created_at DESC`, category)
}

func (s *Store) ListPostsByCreator(ctx context.Context, creatorID string) ([]*store.Post, error) {
	if !validID(creatorID) {
		return []*store.Post{}, nil
	}
	return s.queryPosts(ctx, "list posts by creator",
		`SELECT `+postColumns+` FROM posts WHERE creator = $1 ORDER BY created_at DESC`, creatorID)
}

func (s *Store) UpdatePost(ctx context.Context, id string, changes store.PostChanges) (*store.Post, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}
	query := `UPDATE posts SET
                  title = COALESCE($2, title),
                  description = COALESCE($3, description),
                  category = COALESCE($4, category),
                  thumbnail = COALESCE($5, thumbnail),
                  updated_at = NOW()
              WHERE id = $1
              RETURNING ` + postColumns
	p, err := scanPost(s.pool.QueryRow(ctx, query, id, changes.Title, changes.Description, changes.Category, changes.Thumbnail))
	if err != nil {
		return nil, translate(err, "update post")
	}
	return p, nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	if !validID(id) {
		return store.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return translate(err, "delete post")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ReferencedAssets(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT avatar FROM users WHERE avatar <> ''
                                    UNION
                                    SELECT thumbnail FROM posts WHERE thumbnail <> ''`)
	if err != nil {
		return nil, translate(err, "referenced assets")
	}
	defer rows.Close()

	refs := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, translate(err, "scan asset name")
		}
		refs[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "referenced assets")
	}
	return refs, nil
}
