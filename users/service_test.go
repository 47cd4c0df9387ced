package users

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/quill-go/apperror"
	"github.com/user/quill-go/assets"
	"github.com/user/quill-go/auth"
	"github.com/user/quill-go/config"
	"github.com/user/quill-go/store/memory"
)

type recordingCleaner struct {
	mu        sync.Mutex
	scheduled []string
}

func (c *recordingCleaner) Schedule(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduled = append(c.scheduled, name)
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
}

type fixture struct {
	service   *UserService
	creds     *auth.CredentialService
	store     *memory.Store
	files     *assets.LocalStore
	cleaner   *recordingCleaner
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	files, err := assets.NewLocalStore(t.TempDir(), logger)
	require.NoError(t, err)

	f := &fixture{
		creds:     auth.NewCredentialService(&config.AuthConfig{JWTSecret: "test-secret", TokenDuration: time.Hour, BcryptCost: 4}),
		store:     memory.New(),
		files:     files,
		cleaner:   &recordingCleaner{},
		publisher: &recordingPublisher{},
	}
	f.service = NewUserService(f.store, f.creds, f.files, f.cleaner, f.publisher, 500_000, logger)
	return f
}

func (f *fixture) register(t *testing.T, name, email, password string) {
	t.Helper()
	_, err := f.service.Register(context.Background(), RegisterRequest{
		Name: name, Email: email, Password: password, ConfirmPassword: password,
	})
	require.NoError(t, err)
}

func (f *fixture) identity(t *testing.T, email string) *auth.Identity {
	t.Helper()
	u, err := f.store.GetUserByEmail(context.Background(), email)
	require.NoError(t, err)
	return &auth.Identity{UserID: u.ID, Name: u.Name}
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.service.Register(ctx, RegisterRequest{
		Name: "Ann", Email: "Ann@X.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, "New user ann@x.com registered.", msg)

	stored, err := f.store.GetUserByEmail(ctx, "ann@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", stored.Password)
	assert.Equal(t, 0, stored.Posts)
	assert.Equal(t, []string{"user.registered"}, f.publisher.subjects)
}

func TestRegisterRejections(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Ann", "ann@x.com", "secret1")

	tests := []struct {
		name    string
		req     RegisterRequest
		message string
		check   func(error) bool
	}{
		{
			name:    "missing field",
			req:     RegisterRequest{Name: "Bob", Email: "bob@x.com", Password: "secret1"},
			message: msgFillAllFields,
			check:   apperror.IsValidationError,
		},
		{
			name:    "email taken in another case",
			req:     RegisterRequest{Name: "Ann2", Email: "ANN@x.com", Password: "secret1", ConfirmPassword: "secret1"},
			message: msgEmailExists,
			check:   apperror.IsConflictError,
		},
		{
			name:    "short password after trimming",
			req:     RegisterRequest{Name: "Bob", Email: "bob@x.com", Password: "  abc  ", ConfirmPassword: "  abc  "},
			message: msgPasswordTooShort,
			check:   apperror.IsValidationError,
		},
		{
			name:    "confirmation mismatch",
			req:     RegisterRequest{Name: "Bob", Email: "bob@x.com", Password: "secret1", ConfirmPassword: "secret2"},
			message: msgPasswordsMismatch,
			check:   apperror.IsValidationError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Register(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error type: %v", err)
			appErr, ok := apperror.FromError(err)
			require.True(t, ok)
			assert.Equal(t, tt.message, appErr.Message)
		})
	}

	users, err := f.store.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Ann", "ann@x.com", "secret1")

	resp, err := f.service.Login(context.Background(), LoginRequest{Email: "ANN@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "Ann", resp.Name)

	identity, err := f.creds.VerifyToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.ID, identity.UserID)
	assert.Equal(t, "Ann", identity.Name)
}

func TestLoginFailuresLookAlike(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Ann", "ann@x.com", "secret1")

	_, wrongPassword := f.service.Login(context.Background(), LoginRequest{Email: "ann@x.com", Password: "secret2"})
	_, unknownEmail := f.service.Login(context.Background(), LoginRequest{Email: "nobody@x.com", Password: "secret1"})

	for _, err := range []error{wrongPassword, unknownEmail} {
		require.Error(t, err)
		assert.True(t, apperror.IsAuthError(err))
		assert.Equal(t, apperror.ErrorResponse{Message: msgInvalidCredentials}, mustAppError(t, err).ToResponse())
	}

	_, err := f.service.Login(context.Background(), LoginRequest{Email: "ann@x.com"})
	assert.True(t, apperror.IsValidationError(err))
}

func TestGetUserAndAuthors(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Ann", "ann@x.com", "secret1")
	f.register(t, "Bob", "bob@x.com", "secret2")
	ann := f.identity(t, "ann@x.com")

	u, err := f.service.GetUser(context.Background(), ann.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.Name)

	_, err = f.service.GetUser(context.Background(), "missing")
	assert.True(t, apperror.IsNotFound(err))

	authors, err := f.service.GetAuthors(context.Background())
	require.NoError(t, err)
	assert.Len(t, authors, 2)
}

func TestChangeAvatarReplacesOldFile(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Ann", "ann@x.com", "secret1")
	ann := f.identity(t, "ann@x.com")
	ctx := context.Background()

	first, err := f.service.ChangeAvatar(ctx, ann, &assets.Upload{Filename: "me.png", Size: 3, Content: bytes.NewReader([]byte("one"))})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(f.files.Dir(), first.Avatar))
	assert.Empty(t, f.cleaner.scheduled)

	second, err := f.service.ChangeAvatar(ctx, ann, &assets.Upload{Filename: "me.jpg", Size: 3, Content: bytes.NewReader([]byte("two"))})
	require.NoError(t, err)
	assert.NotEqual(t, first.Avatar, second.Avatar)
	assert.Equal(t, []string{first.Avatar}, f.cleaner.scheduled)

	data, err := os.ReadFile(filepath.Join(f.files.Dir(), second.Avatar))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestChangeAvatarRejections(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Ann", "ann@x.com", "secret1")
	ann := f.identity(t, "ann@x.com")
	ctx := context.Background()

	_, err := f.service.ChangeAvatar(ctx, ann, nil)
	assert.True(t, apperror.IsValidationError(err))

	big := bytes.Repeat([]byte("x"), 500_001)
	_, err = f.service.ChangeAvatar(ctx, ann, &assets.Upload{Filename: "big.png", Size: int64(len(big)), Content: bytes.NewReader(big)})
	assert.True(t, apperror.IsPayloadTooLarge(err))

	entries, err := os.ReadDir(f.files.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads leave nothing behind")

	u, err := f.store.GetUserByID(ctx, ann.UserID)
	require.NoError(t, err)
	assert.Empty(t, u.Avatar)
}

func TestEditUser(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Ann", "ann@x.com", "secret1")
	f.register(t, "Bob", "bob@x.com", "secret2")
	ann := f.identity(t, "ann@x.com")
	ctx := context.Background()

	valid := EditUserRequest{
		Name:               "Annie",
		Email:              "Annie@X.com",
		CurrentPassword:    "secret1",
		NewPassword:        "secret9",
		ConfirmNewPassword: "secret9",
	}

	t.Run("rejections", func(t *testing.T) {
		tests := []struct {
			name    string
			mutate  func(*EditUserRequest)
			message string
		}{
			{"missing field", func(r *EditUserRequest) { r.Name = "" }, msgFillAllFields},
			{"same password", func(r *EditUserRequest) { r.NewPassword, r.ConfirmNewPassword = "secret1", "secret1" }, msgSamePassword},
			{"email owned by another user", func(r *EditUserRequest) { r.Email = "BOB@x.com" }, msgEmailExists},
			{"wrong current password", func(r *EditUserRequest) { r.CurrentPassword = "nope12" }, msgInvalidCurrentPass},
			{"confirmation mismatch", func(r *EditUserRequest) { r.ConfirmNewPassword = "secret8" }, msgNewPasswordsDiffer},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := valid
				tt.mutate(&req)
				_, err := f.service.EditUser(ctx, ann, req)
				require.Error(t, err)
				assert.Equal(t, tt.message, mustAppError(t, err).Message)
			})
		}
	})

	t.Run("success", func(t *testing.T) {
		updated, err := f.service.EditUser(ctx, ann, valid)
		require.NoError(t, err)
		assert.Equal(t, "Annie", updated.Name)
		assert.Equal(t, "annie@x.com", updated.Email)

		_, err = f.service.Login(ctx, LoginRequest{Email: "annie@x.com", Password: "secret1"})
		assert.True(t, apperror.IsAuthError(err))
		_, err = f.service.Login(ctx, LoginRequest{Email: "annie@x.com", Password: "secret9"})
		assert.NoError(t, err)
	})

	t.Run("keeping own email is allowed", func(t *testing.T) {
		req := EditUserRequest{
			Name: "Annie", Email: "annie@x.com",
			CurrentPassword: "secret9", NewPassword: "secret1", ConfirmNewPassword: "secret1",
		}
		_, err := f.service.EditUser(ctx, ann, req)
		assert.NoError(t, err)
	})
}

func mustAppError(t *testing.T, err error) *apperror.AppError {
	t.Helper()
	appErr, ok := apperror.FromError(err)
	require.True(t, ok, "expected an AppError, got %v", err)
	return appErr
}
