// Package memory is an in-process implementation of store.Store.
// Records are copied on the way in and out so callers never share state with the store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/quill-go/store"
)

// Store keeps users and posts in maps guarded by a single RWMutex.
type Store struct {
	mu    sync.RWMutex
	users map[string]*store.User
	posts map[string]*store.Post
	last  time.Time
	now   func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		users: make(map[string]*store.User),
		posts: make(map[string]*store.Post),
		now:   time.Now,
	}
}

// tick returns a timestamp strictly after the previous one so orderings are total.
// Callers hold s.mu for writing.
func (s *Store) tick() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func copyUser(u *store.User) *store.User {
	c := *u
	return &c
}

func copyPost(p *store.Post) *store.Post {
	c := *p
	return &c
}

// emailTaken reports whether another user already holds email. Callers hold s.mu.
func (s *Store) emailTaken(email, exceptID string) bool {
	for id, u := range s.users {
		if id != exceptID && u.Email == email {
			return true
		}
	}
	return false
}

func (s *Store) CreateUser(_ context.Context, u *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.emailTaken(u.Email, "") {
		return store.ErrDuplicate
	}
	now := s.tick()
	u.ID = uuid.NewString()
	u.CreatedAt, u.UpdatedAt = now, now
	if u.Posts < 0 {
		u.Posts = 0
	}
	s.users[u.ID] = copyUser(u)
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateUser(_ context.Context, id string, changes store.UserChanges) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if changes.Email != nil && s.emailTaken(*changes.Email, id) {
		return nil, store.ErrDuplicate
	}

	updated := copyUser(u)
	if changes.Name != nil {
		updated.Name = *changes.Name
	}
	if changes.Email != nil {
		updated.Email = *changes.Email
	}
	if changes.Password != nil {
		updated.Password = *changes.Password
	}
	if changes.Avatar != nil {
		updated.Avatar = *changes.Avatar
	}
	updated.UpdatedAt = s.tick()
	s.users[id] = updated
	return copyUser(updated), nil
}

func (s *Store) AdjustPostCount(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Posts += delta
	if u.Posts < 0 {
		u.Posts = 0
	}
	return nil
}

func (s *Store) CreatePost(_ context.Context, p *store.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.tick()
	p.ID = uuid.NewString()
	p.CreatedAt, p.UpdatedAt = now, now
	s.posts[p.ID] = copyPost(p)
	return nil
}

func (s *Store) GetPost(_ context.Context, id string) (*store.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyPost(p), nil
}

// filterPosts copies the posts matching keep, ordered by less. Callers hold s.mu.
func (s *Store) filterPosts(keep func(*store.Post) bool, less func(a, b *store.Post) bool) []*store.Post {
	out := make([]*store.Post, 0)
	for _, p := range s.posts {
		if keep(p) {
			out = append(out, copyPost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func newestCreated(a, b *store.Post) bool { return a.CreatedAt.After(b.CreatedAt) }

func (s *Store) ListPosts(_ context.Context) ([]*store.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterPosts(
		func(*store.Post) bool { return true },
		func(a, b *store.Post) bool { return a.UpdatedAt.After(b.UpdatedAt) },
	), nil
}

func (s *Store) ListPostsByCategory(_ context.Context, category string) ([]*store.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterPosts(func(p *store.Post) bool { return p.Category == category }, newestCreated), nil
}

func (s *Store) ListPostsByCreator(_ context.Context, creatorID string) ([]*store.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterPosts(func(p *store.Post) bool { return p.Creator == creatorID }, newestCreated), nil
}

func (s *Store) UpdatePost(_ context.Context, id string, changes store.PostChanges) (*store.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	updated := copyPost(p)
	if changes.Title != nil {
		updated.Title = *changes.Title
	}
	if changes.Description != nil {
		updated.Description = *changes.Description
	}
	if changes.Category != nil {
		updated.Category = *changes.Category
	}
	if changes.Thumbnail != nil {
		updated.Thumbnail = *changes.Thumbnail
	}
	updated.UpdatedAt = s.tick()
	s.posts[id] = updated
	return copyPost(updated), nil
}

func (s *Store) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *Store) ReferencedAssets(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make(map[string]struct{}, len(s.users)+len(s.posts))
	for _, u := range s.users {
		if u.Avatar != "" {
			refs[u.Avatar] = struct{}{}
		}
	}
	for _, p := range s.posts {
		if p.Thumbnail != "" {
			refs[p.Thumbnail] = struct{}{}
		}
	}
	return refs, nil
}

// Close is a no-op; it exists to satisfy store.Store.
func (s *Store) Close() {}
