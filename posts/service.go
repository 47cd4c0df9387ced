// This file contains the business logic for the post workflow.
package posts

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/user/quill-go/apperror"
	"github.com/user/quill-go/assets"
	"github.com/user/quill-go/auth"
	"github.com/user/quill-go/events"
	"github.com/user/quill-go/store"
)

// Messages returned to clients.
const (
	msgCreateFields     = "Fill in all the fields and choose a thumbnail."
	msgEditFields       = "Fields cannot be empty."
	msgUnknownCategory  = "Category is not supported."
	msgThumbnailTooBig  = "Thumbnail too big. File should be less than 2MB."
	msgPostNotFound     = "Post not found."
	msgPostUnavailable  = "Post Unavailable."
	msgNotCreated       = "Post couldn't be created."
	msgNotUpdated       = "Post couldn't be updated."
	msgEditForbidden    = "Post couldn't be edited."
	msgDeleteForbidden  = "Post couldn't be deleted."
	msgPostsUnavailable = "Could not load posts."
)

// Repository is the persistence the workflow needs: posts, plus the creator's counter.
type Repository interface {
	store.PostRepository
	AdjustPostCount(ctx context.Context, id string, delta int) error
}

// AssetStore writes uploaded thumbnails.
type AssetStore interface {
	Store(ctx context.Context, upload *assets.Upload, c assets.Constraints) (string, error)
}

// Cleaner removes assets that no record references any more, off the request path.
type Cleaner interface {
	Schedule(name string)
}

// PostService implements the post workflow.
type PostService struct {
	repo      Repository
	files     AssetStore
	cleaner   Cleaner
	publisher events.Publisher
	thumbnail assets.Constraints
	validate  *validator.Validate
	logger    logrus.FieldLogger
}

// NewPostService wires the workflow. thumbnailMaxBytes bounds thumbnail uploads.
func NewPostService(
	repo Repository,
	files AssetStore,
	cleaner Cleaner,
	publisher events.Publisher,
	thumbnailMaxBytes int64,
	logger logrus.FieldLogger,
) *PostService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &PostService{
		repo:      repo,
		files:     files,
		cleaner:   cleaner,
		publisher: publisher,
		thumbnail: assets.Constraints{MaxBytes: thumbnailMaxBytes, TooLargeMessage: msgThumbnailTooBig},
		validate:  validator.New(),
		logger:    logger.WithField("component", "posts"),
	}
}

// ThumbnailConstraints returns the limits applied to thumbnail uploads.
func (s *PostService) ThumbnailConstraints() assets.Constraints { return s.thumbnail }

func (s *PostService) event(p *store.Post) events.PostEvent {
	return events.PostEvent{
		PostID:    p.ID,
		CreatorID: p.Creator,
		Title:     p.Title,
		Category:  p.Category,
		Thumbnail: p.Thumbnail,
		Timestamp: events.Timestamp(p.UpdatedAt),
	}
}

// CreatePost stores the thumbnail, creates the post owned by identity and bumps the
// creator's post counter.
func (s *PostService) CreatePost(ctx context.Context, identity *auth.Identity, req CreatePostRequest) (*store.Post, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperror.NewValidationError(msgCreateFields, err)
	}
	if !IsCategory(req.Category) {
		return nil, apperror.NewValidationError(msgUnknownCategory, fmt.Errorf("category %q", req.Category))
	}

	name, err := s.files.Store(ctx, req.Thumbnail, s.thumbnail)
	if err != nil {
		return nil, err
	}

	post := &store.Post{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Thumbnail:   name,
		Creator:     identity.UserID,
	}
	if err := s.repo.CreatePost(ctx, post); err != nil {
		s.cleaner.Schedule(name)
		return nil, apperror.NewCreationError(msgNotCreated, err)
	}

	logger := s.logger.WithFields(logrus.Fields{"post_id": post.ID, "user_id": identity.UserID})
	if err := s.repo.AdjustPostCount(ctx, identity.UserID, 1); err != nil {
		// The post exists; a stale counter is not worth failing the request over.
		logger.WithError(err).Warn("Failed to increment post counter")
	}

	logger.Info("Post created")
	s.publisher.Publish(events.SubjectPostCreated, s.event(post))
	return post, nil
}

// GetPosts returns every post, most recently updated first.
func (s *PostService) GetPosts(ctx context.Context) ([]*store.Post, error) {
	posts, err := s.repo.ListPosts(ctx)
	if err != nil {
		return nil, apperror.NewDatabaseError(msgPostsUnavailable, err)
	}
	return posts, nil
}

// GetPost returns a single post.
func (s *PostService) GetPost(ctx context.Context, id string) (*store.Post, error) {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NewNotFoundError(msgPostNotFound, nil)
		}
		return nil, apperror.NewDatabaseError(msgPostsUnavailable, err)
	}
	return post, nil
}

// GetCategoryPosts returns the posts filed under category, newest first.
// An unknown category simply has no posts.
func (s *PostService) GetCategoryPosts(ctx context.Context, category string) ([]*store.Post, error) {
	posts, err := s.repo.ListPostsByCategory(ctx, category)
	if err != nil {
		return nil, apperror.NewDatabaseError(msgPostsUnavailable, err)
	}
	return posts, nil
}

// GetUserPosts returns the posts created by userID, newest first.
func (s *PostService) GetUserPosts(ctx context.Context, userID string) ([]*store.Post, error) {
	posts, err := s.repo.ListPostsByCreator(ctx, userID)
	if err != nil {
		return nil, apperror.NewDatabaseError(msgPostsUnavailable, err)
	}
	return posts, nil
}

// loadOwned fetches the post and checks that identity created it.
func (s *PostService) loadOwned(ctx context.Context, identity *auth.Identity, postID, forbidden string) (*store.Post, error) {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Creator != identity.UserID {
		return nil, apperror.NewForbiddenError(forbidden, fmt.Errorf("user %s does not own post %s", identity.UserID, postID))
	}
	return post, nil
}

// EditPost updates an owned post. Without a thumbnail only the text fields change.
// With one, the new file is stored first and the old file is scheduled for removal only
// after the record points at the new one.
func (s *PostService) EditPost(ctx context.Context, identity *auth.Identity, postID string, req EditPostRequest) (*store.Post, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperror.NewValidationError(msgEditFields, err)
	}
	if !IsCategory(req.Category) {
		return nil, apperror.NewValidationError(msgUnknownCategory, fmt.Errorf("category %q", req.Category))
	}

	old, err := s.loadOwned(ctx, identity, postID, msgEditForbidden)
	if err != nil {
		return nil, err
	}

	changes := store.PostChanges{
		Title:       &req.Title,
		Description: &req.Description,
		Category:    &req.Category,
	}
	var stored string
	if req.Thumbnail != nil {
		stored, err = s.files.Store(ctx, req.Thumbnail, s.thumbnail)
		if err != nil {
			return nil, err
		}
		changes.Thumbnail = &stored
	}

	updated, err := s.repo.UpdatePost(ctx, postID, changes)
	if err != nil {
		if stored != "" {
			s.cleaner.Schedule(stored)
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NewNotFoundError(msgPostNotFound, nil)
		}
		return nil, apperror.NewUpdateError(msgNotUpdated, err)
	}

	if stored != "" && old.Thumbnail != "" && old.Thumbnail != stored {
		s.cleaner.Schedule(old.Thumbnail)
	}

	s.logger.WithFields(logrus.Fields{"post_id": postID, "user_id": identity.UserID}).Info("Post updated")
	s.publisher.Publish(events.SubjectPostUpdated, s.event(updated))
	return updated, nil
}

// DeletePost removes an owned post, schedules its thumbnail for removal and decrements
// the creator's post counter. It returns the confirmation message.
func (s *PostService) DeletePost(ctx context.Context, identity *auth.Identity, postID string) (string, error) {
	if postID == "" {
		return "", apperror.NewValidationError(msgPostUnavailable, nil)
	}

	post, err := s.loadOwned(ctx, identity, postID, msgDeleteForbidden)
	if err != nil {
		return "", err
	}

	if err := s.repo.DeletePost(ctx, postID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", apperror.NewNotFoundError(msgPostNotFound, nil)
		}
		return "", apperror.NewDatabaseError("Post couldn't be deleted.", err)
	}

	s.cleaner.Schedule(post.Thumbnail)

	logger := s.logger.WithFields(logrus.Fields{"post_id": postID, "user_id": identity.UserID})
	if err := s.repo.AdjustPostCount(ctx, post.Creator, -1); err != nil {
		logger.WithError(err).Warn("Failed to decrement post counter")
	}

	logger.Info("Post deleted")
	s.publisher.Publish(events.SubjectPostDeleted, s.event(post))
	return fmt.Sprintf("Post %s deleted Successfully.", postID), nil
}
