package posts

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/quill-go/auth"
	"github.com/user/quill-go/config"
	"github.com/user/quill-go/store"
)

type routeFixture struct {
	*fixture
	handler  http.Handler
	annToken string
	bobToken string
}

func newRouteFixture(t *testing.T) *routeFixture {
	t.Helper()
	f := newFixture(t)
	creds := auth.NewCredentialService(&config.AuthConfig{JWTSecret: "test-secret", TokenDuration: time.Hour, BcryptCost: 4})

	r := chi.NewRouter()
	r.Route("/api/posts", func(r chi.Router) {
		NewPostHandler(f.service).RegisterRoutes(r, auth.Guard(creds))
	})

	annToken, err := creds.IssueToken(f.ann.UserID, f.ann.Name)
	require.NoError(t, err)
	bobToken, err := creds.IssueToken(f.bob.UserID, f.bob.Name)
	require.NoError(t, err)
	return &routeFixture{fixture: f, handler: r, annToken: annToken, bobToken: bobToken}
}

func (rf *routeFixture) multipartRequest(t *testing.T, method, path, token string, fields map[string]string, file []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		part, err := mw.CreateFormFile(thumbnailField, "cover.png")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	rf.handler.ServeHTTP(rec, req)
	return rec
}

func (rf *routeFixture) jsonRequest(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
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
	rf.handler.ServeHTTP(rec, req)
	return rec
}

func TestPostRoutesLifecycle(t *testing.T) {
	rf := newRouteFixture(t)
	fields := map[string]string{"title": "Hello", "description": "A first post body.", "category": CategoryArt}

	rec := rf.multipartRequest(t, http.MethodPost, "/api/posts", "", fields, []byte("img"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = rf.multipartRequest(t, http.MethodPost, "/api/posts", rf.annToken, fields, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"message":"Fill in all the fields and choose a thumbnail."}`, rec.Body.String())

	rec = rf.multipartRequest(t, http.MethodPost, "/api/posts", rf.annToken, fields, []byte("img"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created store.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, rf.ann.UserID, created.Creator)

	rec = rf.jsonRequest(t, http.MethodGet, "/api/posts/"+created.ID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = rf.jsonRequest(t, http.MethodGet, "/api/posts/categories/"+CategoryArt, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inCategory []store.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inCategory))
	assert.Len(t, inCategory, 1)

	rec = rf.jsonRequest(t, http.MethodGet, "/api/posts/users/"+rf.bob.UserID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	edit := map[string]string{"title": "Hello again", "category": CategoryArt, "description": "Edited through JSON."}
	rec = rf.jsonRequest(t, http.MethodPatch, "/api/posts/"+created.ID, rf.bobToken, edit)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"message":"Post couldn't be edited."}`, rec.Body.String())

	rec = rf.jsonRequest(t, http.MethodPatch, "/api/posts/"+created.ID, rf.annToken, edit)
	require.Equal(t, http.StatusOK, rec.Code)
	var edited store.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &edited))
	assert.Equal(t, created.Thumbnail, edited.Thumbnail)

	rec = rf.multipartRequest(t, http.MethodPatch, "/api/posts/"+created.ID, rf.annToken,
		map[string]string{"title": "Hello", "category": CategoryArt, "description": "With a new cover."}, []byte("new"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &edited))
	assert.NotEqual(t, created.Thumbnail, edited.Thumbnail)

	rec = rf.jsonRequest(t, http.MethodDelete, "/api/posts/"+created.ID, rf.bobToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = rf.jsonRequest(t, http.MethodDelete, "/api/posts/"+created.ID, rf.annToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var message string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &message))
	assert.Equal(t, "Post "+created.ID+" deleted Successfully.", message)

	rec = rf.jsonRequest(t, http.MethodGet, "/api/posts/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Post not found."}`, rec.Body.String())
}

func TestCreatePostRouteRejectsLargeThumbnail(t *testing.T) {
	rf := newRouteFixture(t)
	fields := map[string]string{"title": "Big", "description": "Too big a cover.", "category": CategoryArt}

	rec := rf.multipartRequest(t, http.MethodPost, "/api/posts", rf.annToken, fields, bytes.Repeat([]byte("x"), 2_000_001))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"message":"Thumbnail too big. File should be less than 2MB."}`, rec.Body.String())
	assert.Equal(t, 0, rf.postCount(t, rf.ann))
}
