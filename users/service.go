// This file contains the business logic for the user workflow.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/user/quill-go/apperror"
	"github.com/user/quill-go/assets"
	"github.com/user/quill-go/auth"
	"github.com/user/quill-go/events"
	"github.com/user/quill-go/store"
)

// minPasswordLength applies to the trimmed password.
const minPasswordLength = 6

// Messages returned to clients.
const (
	msgFillAllFields      = "Fill in all the fields."
	msgEmailExists        = "Email already exists."
	msgPasswordTooShort   = "Password should be atleast 6 characters."
	msgPasswordsMismatch  = "Passwords do not match."
	msgInvalidCredentials = "Invalid credentials."
	msgUserNotFound       = "User not found."
	msgSelectImage        = "Please select an image."
	msgAvatarTooBig       = "Profile picture too big. Should be less than 500kb."
	msgAvatarNotChanged   = "Avatar couldn't be changed."
	msgSamePassword       = "New password cannot be same as current password."
	msgInvalidCurrentPass = "Invalid current password."
	msgNewPasswordsDiffer = "New passwords do not match."
	msgUserNotUpdated     = "User couldn't be updated."
	msgRegistrationFailed = "User registration failed."
)

// Credentials is the part of the credential service the workflow needs.
type Credentials interface {
	HashPassword(plain string) (string, error)
	VerifyPassword(plain, hash string) (bool, error)
	IssueToken(userID, name string) (string, error)
}

// AssetStore writes and deletes uploaded files.
type AssetStore interface {
	Store(ctx context.Context, upload *assets.Upload, c assets.Constraints) (string, error)
}

// Cleaner removes assets that no record references any more, off the request path.
type Cleaner interface {
	Schedule(name string)
}

// UserService implements the user workflow on top of a UserRepository.
type UserService struct {
	users     store.UserRepository
	creds     Credentials
	files     AssetStore
	cleaner   Cleaner
	publisher events.Publisher
	avatar    assets.Constraints
	validate  *validator.Validate
	logger    logrus.FieldLogger
}

// NewUserService wires the workflow. avatarMaxBytes bounds avatar uploads.
func NewUserService(
	users store.UserRepository,
	creds Credentials,
	files AssetStore,
	cleaner Cleaner,
	publisher events.Publisher,
	avatarMaxBytes int64,
	logger logrus.FieldLogger,
) *UserService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &UserService{
		users:     users,
		creds:     creds,
		files:     files,
		cleaner:   cleaner,
		publisher: publisher,
		avatar:    assets.Constraints{MaxBytes: avatarMaxBytes, TooLargeMessage: msgAvatarTooBig},
		validate:  validator.New(),
		logger:    logger.WithField("component", "users"),
	}
}

// requireFields turns a failed `validate:"required"` check into the client-facing ValidationError.
func (s *UserService) requireFields(req interface{}) error {
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			missing := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				missing = append(missing, fe.Field())
			}
			return apperror.NewValidationError(msgFillAllFields, fmt.Errorf("missing fields: %s", strings.Join(missing, ", ")))
		}
		return apperror.NewValidationError(msgFillAllFields, err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user and returns the confirmation message.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (string, error) {
	if err := s.requireFields(req); err != nil {
		return "", err
	}

	email := normalizeEmail(req.Email)
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return "", apperror.NewConflictError(msgEmailExists, nil)
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", apperror.NewDatabaseError(msgRegistrationFailed, err)
	}

	if len(strings.TrimSpace(req.Password)) < minPasswordLength {
		return "", apperror.NewValidationError(msgPasswordTooShort, nil)
	}
	if req.Password != req.ConfirmPassword {
		return "", apperror.NewValidationError(msgPasswordsMismatch, nil)
	}

	hash, err := s.creds.HashPassword(req.Password)
	if err != nil {
		return "", err
	}

	user := &store.User{Name: req.Name, Email: email, Password: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		// A concurrent registration can win between the lookup and the insert.
		if errors.Is(err, store.ErrDuplicate) {
			return "", apperror.NewConflictError(msgEmailExists, err)
		}
		return "", apperror.NewCreationError(msgRegistrationFailed, err)
	}

	s.logger.WithField("user_id", user.ID).Info("User registered")
	s.publisher.Publish(events.SubjectUserRegistered, events.UserEvent{
		UserID:    user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Timestamp: events.Timestamp(user.CreatedAt),
	})
	return fmt.Sprintf("New user %s registered.", user.Email), nil
}

// Login verifies the credentials and issues a token.
// Unknown email and wrong password produce the same AuthError.
func (s *UserService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if err := s.requireFields(req); err != nil {
		return nil, err
	}

	email := normalizeEmail(req.Email)
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NewAuthError(msgInvalidCredentials, fmt.Errorf("no user with email %q", email))
		}
		return nil, apperror.NewDatabaseError("Login failed.", err)
	}

	ok, err := s.creds.VerifyPassword(req.Password, user.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NewAuthError(msgInvalidCredentials, fmt.Errorf("password mismatch for user %s", user.ID))
	}

	token, err := s.creds.IssueToken(user.ID, user.Name)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Token: token, ID: user.ID, Name: user.Name}, nil
}

// GetUser returns a public profile.
func (s *UserService) GetUser(ctx context.Context, id string) (*store.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NewNotFoundError(msgUserNotFound, nil)
		}
		return nil, apperror.NewDatabaseError("Could not load user.", err)
	}
	return user, nil
}

// GetAuthors lists every user. Password hashes never serialize.
func (s *UserService) GetAuthors(ctx context.Context) ([]*store.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, apperror.NewDatabaseError("Could not load authors.", err)
	}
	return users, nil
}

// ChangeAvatar stores the new avatar, points the user at it and schedules the old one for removal.
// The new file is written before the record changes, so a failed update never leaves the
// user without an avatar; the stored file is removed again instead.
func (s *UserService) ChangeAvatar(ctx context.Context, identity *auth.Identity, upload *assets.Upload) (*store.User, error) {
	if upload == nil {
		return nil, apperror.NewValidationError(msgSelectImage, nil)
	}
	if upload.Size > s.avatar.MaxBytes {
		return nil, apperror.NewPayloadTooLargeError(msgAvatarTooBig, nil)
	}

	current, err := s.users.GetUserByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NewNotFoundError(msgUserNotFound, nil)
		}
		return nil, apperror.NewDatabaseError(msgAvatarNotChanged, err)
	}

	name, err := s.files.Store(ctx, upload, s.avatar)
	if err != nil {
		return nil, err
	}

	updated, err := s.users.UpdateUser(ctx, identity.UserID, store.UserChanges{Avatar: &name})
	if err != nil {
		s.cleaner.Schedule(name)
		return nil, apperror.NewUpdateError(msgAvatarNotChanged, err)
	}

	if current.Avatar != "" && current.Avatar != name {
		s.cleaner.Schedule(current.Avatar)
	}

	s.logger.WithFields(logrus.Fields{"user_id": updated.ID, "avatar": name}).Info("Avatar changed")
	s.publisher.Publish(events.SubjectUserAvatarChanged, events.UserEvent{
		UserID:    updated.ID,
		Avatar:    updated.Avatar,
		Timestamp: events.Timestamp(updated.UpdatedAt),
	})
	return updated, nil
}

// EditUser changes name, email and password after re-verifying the current password.
func (s *UserService) EditUser(ctx context.Context, identity *auth.Identity, req EditUserRequest) (*store.User, error) {
	if err := s.requireFields(req); err != nil {
		return nil, err
	}
	if req.CurrentPassword == req.NewPassword {
		return nil, apperror.NewValidationError(msgSamePassword, nil)
	}

	user, err := s.users.GetUserByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NewNotFoundError(msgUserNotFound, nil)
		}
		return nil, apperror.NewDatabaseError(msgUserNotUpdated, err)
	}

	email := normalizeEmail(req.Email)
	owner, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil && owner.ID != user.ID:
		return nil, apperror.NewConflictError(msgEmailExists, nil)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, apperror.NewDatabaseError(msgUserNotUpdated, err)
	}

	ok, err := s.creds.VerifyPassword(req.CurrentPassword, user.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NewAuthError(msgInvalidCurrentPass, nil)
	}

	if req.NewPassword != req.ConfirmNewPassword {
		return nil, apperror.NewValidationError(msgNewPasswordsDiffer, nil)
	}
	if len(strings.TrimSpace(req.NewPassword)) < minPasswordLength {
		return nil, apperror.NewValidationError(msgPasswordTooShort, nil)
	}

	hash, err := s.creds.HashPassword(req.NewPassword)
	if err != nil {
		return nil, err
	}

	updated, err := s.users.UpdateUser(ctx, user.ID, store.UserChanges{
		Name:     &req.Name,
		Email:    &email,
		Password: &hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperror.NewConflictError(msgEmailExists, err)
		}
		return nil, apperror.NewUpdateError(msgUserNotUpdated, err)
	}

	s.publisher.Publish(events.SubjectUserProfileUpdated, events.UserEvent{
		UserID:    updated.ID,
		Name:      updated.Name,
		Email:     updated.Email,
		Timestamp: events.Timestamp(updated.UpdatedAt),
	})
	return updated, nil
}
