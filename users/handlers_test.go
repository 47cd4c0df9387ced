package users

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/quill-go/auth"
	"github.com/user/quill-go/store"
)

func newTestRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/users", func(r chi.Router) {
		NewUserHandlers(f.service).RegisterRoutes(r, auth.Guard(f.creds), nil)
	})
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUserRoutes(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	rec := doJSON(t, h, http.MethodPost, "/api/users/register", "", RegisterRequest{
		Name: "Ann", Email: "ann@x.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"message":"New user ann@x.com registered."}`, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/api/users/register", "", RegisterRequest{
		Name: "Ann", Email: "ann@x.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/users/login", "", LoginRequest{Email: "ann@x.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	rec = doJSON(t, h, http.MethodGet, "/api/users/"+login.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "Ann", profile["name"])
	assert.NotContains(t, profile, "password")

	rec = doJSON(t, h, http.MethodGet, "/api/users", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var authors []store.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &authors))
	assert.Len(t, authors, 1)
	assert.NotContains(t, rec.Body.String(), "$2a$")

	rec = doJSON(t, h, http.MethodPost, "/api/users/login", "", LoginRequest{Email: "ann@x.com", Password: "wrong1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/users/login", "", strings.Repeat("x", 2))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/users/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangeAvatarRoute(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)
	f.register(t, "Ann", "ann@x.com", "secret1")
	ann := f.identity(t, "ann@x.com")
	token, err := f.creds.IssueToken(ann.UserID, ann.Name)
	require.NoError(t, err)

	upload := func(token string, content []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile(avatarField, "me.png")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/users/change-avatar", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, upload("", []byte("img")).Code)
	assert.Equal(t, http.StatusForbidden, upload("not-a-token", []byte("img")).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, upload(token, bytes.Repeat([]byte("x"), 500_001)).Code)

	rec := upload(token, []byte("img"))
	require.Equal(t, http.StatusOK, rec.Code)
	var updated store.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.True(t, strings.HasPrefix(updated.Avatar, "me"))
	assert.True(t, strings.HasSuffix(updated.Avatar, ".png"))
}

func TestEditUserRouteRequiresToken(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	rec := doJSON(t, h, http.MethodPatch, "/api/users/edit-user", "", EditUserRequest{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"Unauthorized. No token."}`, rec.Body.String())
}
