package handler

import (
	"Cryptalk/internal/model"
	"Cryptalk/internal/repo"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUserRepo struct {
	users map[string]*model.User
}

func (s *stubUserRepo) GetUser(_ context.Context, id string) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	return u, nil
}

func (s *stubUserRepo) SearchUsers(_ context.Context, excludeID, _ string) ([]model.User, error) {
	var out []model.User
	for id, u := range s.users {
		if id != excludeID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *stubUserRepo) GetPublicKey(ctx context.Context, id string) (string, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	return u.PublicKey, nil
}

func (s *stubUserRepo) SetPublicKey(ctx context.Context, id, publicKeyPEM string) error {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	u.PublicKey = publicKeyPEM
	return nil
}

func (s *stubUserRepo) UpdateLastSeen(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (s *stubUserRepo) EitherBlocked(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}

func (s *stubUserRepo) PinChat(ctx context.Context, userID, peerID string) error {
	if _, err := s.GetUser(ctx, peerID); err != nil {
		return err
	}
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.HasPinned(peerID) {
		return repo.ErrChatAlreadyPinned
	}
	u.PinnedChats = append(u.PinnedChats, peerID)
	return nil
}

func (s *stubUserRepo) UnpinChat(ctx context.Context, userID, peerID string) error {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	u.PinnedChats = removeID(u.PinnedChats, peerID)
	return nil
}

func (s *stubUserRepo) PinnedChats(ctx context.Context, userID string) ([]model.User, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.resolve(u.PinnedChats), nil
}

func (s *stubUserRepo) ArchiveChat(ctx context.Context, userID, peerID string) error {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.HasArchived(peerID) {
		return repo.ErrChatAlreadyArchived
	}
	u.ArchivedChats = append(u.ArchivedChats, peerID)
	return nil
}

func (s *stubUserRepo) UnarchiveChat(ctx context.Context, userID, peerID string) error {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	u.ArchivedChats = removeID(u.ArchivedChats, peerID)
	return nil
}

func (s *stubUserRepo) ArchivedChats(ctx context.Context, userID string) ([]model.User, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.resolve(u.ArchivedChats), nil
}

func (s *stubUserRepo) resolve(ids []string) []model.User {
	out := []model.User{}
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func newKeyRouter(users *stubUserRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewUserHandler(users)

	r := gin.New()
	r.GET("/users/:userId/public-key", h.GetPublicKey)
	r.PUT("/users/:userId/public-key", h.SetPublicKey)
	r.GET("/users", h.GetUsers)
	r.GET("/chats/pinned", h.GetPinnedChats)
	r.POST("/chats/pin/:peerId", h.PinChat)
	r.POST("/chats/unpin/:peerId", h.UnpinChat)
	r.GET("/chats/archived", h.GetArchivedChats)
	r.POST("/chats/archive/:peerId", h.ArchiveChat)
	r.POST("/chats/unarchive/:peerId", h.UnarchiveChat)
	return r
}

func TestGetPublicKey(t *testing.T) {
	users := &stubUserRepo{users: map[string]*model.User{
		"alice": {UserID: "alice", PublicKey: "-----BEGIN PUBLIC KEY-----\nAAA\n-----END PUBLIC KEY-----"},
		"bob":   {UserID: "bob"},
	}}
	router := newKeyRouter(users)

	t.Run("existing key", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/users/alice/public-key", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "BEGIN PUBLIC KEY")
	})

	t.Run("user without key", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/users/bob/public-key", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/users/nobody/public-key", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSetPublicKey(t *testing.T) {
	users := &stubUserRepo{users: map[string]*model.User{
		"alice": {UserID: "alice"},
	}}
	router := newKeyRouter(users)

	t.Run("owner publishes key", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/users/alice/public-key",
			strings.NewReader(`{"publicKey":"PEM"}`))
		req.Header.Set("X-User-Id", "alice")
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "PEM", users.users["alice"].PublicKey)
	})

	t.Run("publishing another user's key is forbidden", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/users/alice/public-key",
			strings.NewReader(`{"publicKey":"EVIL"}`))
		req.Header.Set("X-User-Id", "mallory")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "PEM", users.users["alice"].PublicKey)
	})

	t.Run("missing body rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/users/alice/public-key", strings.NewReader(`{}`))
		req.Header.Set("X-User-Id", "alice")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetUsersExcludesRequester(t *testing.T) {
	users := &stubUserRepo{users: map[string]*model.User{
		"alice": {UserID: "alice"},
		"bob":   {UserID: "bob"},
	}}
	router := newKeyRouter(users)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("X-User-Id", "alice")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bob")
	assert.NotContains(t, w.Body.String(), `"userId":"alice"`)

	// anonymous requests are rejected
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPinChat(t *testing.T) {
	users := &stubUserRepo{users: map[string]*model.User{
		"alice": {UserID: "alice"},
		"bob":   {UserID: "bob"},
	}}
	router := newKeyRouter(users)

	pin := func(requester, peer string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/chats/pin/"+peer, nil)
		if requester != "" {
			req.Header.Set("X-User-Id", requester)
		}
		router.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusOK, pin("alice", "bob").Code)
	assert.Equal(t, []string{"bob"}, users.users["alice"].PinnedChats)

	// pinning twice is reported, not silently absorbed
	assert.Equal(t, http.StatusBadRequest, pin("alice", "bob").Code)

	assert.Equal(t, http.StatusNotFound, pin("alice", "nobody").Code)
	assert.Equal(t, http.StatusUnauthorized, pin("", "bob").Code)

	// pin state is per user: bob's sidebar is untouched
	assert.Empty(t, users.users["bob"].PinnedChats)
}

func TestUnpinChatIdempotent(t *testing.T) {
	users := &stubUserRepo{users: map[string]*model.User{
		"alice": {UserID: "alice", PinnedChats: []string{"bob"}},
		"bob":   {UserID: "bob"},
	}}
	router := newKeyRouter(users)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/chats/unpin/bob", nil)
		req.Header.Set("X-User-Id", "alice")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Empty(t, users.users["alice"].PinnedChats)
}

func TestGetPinnedChats(t *testing.T) {
	users := &stubUserRepo{users: map[string]*model.User{
		"alice": {UserID: "alice", PinnedChats: []string{"bob"}},
		"bob":   {UserID: "bob", FullName: "Bob B"},
	}}
	router := newKeyRouter(users)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chats/pinned", nil)
	req.Header.Set("X-User-Id", "alice")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Bob B")
}

func TestArchiveChatLifecycle(t *testing.T) {
	users := &stubUserRepo{users: map[string]*model.User{
		"alice": {UserID: "alice"},
		"bob":   {UserID: "bob", FullName: "Bob B"},
	}}
	router := newKeyRouter(users)

	do := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("X-User-Id", "alice")
		router.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusOK, do(http.MethodPost, "/chats/archive/bob").Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/chats/archive/bob").Code)

	w := do(http.MethodGet, "/chats/archived")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Bob B")

	require.Equal(t, http.StatusOK, do(http.MethodPost, "/chats/unarchive/bob").Code)
	assert.Empty(t, users.users["alice"].ArchivedChats)

	w = do(http.MethodGet, "/chats/archived")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "Bob B")
}
