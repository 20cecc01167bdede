package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chatrelay/chatrelay/internal/api/middleware"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/llm"
	"github.com/chatrelay/chatrelay/internal/models"
)

// fakeDataStore is an in-memory DataStore for handler tests.
type fakeDataStore struct {
	users    map[uuid.UUID]*models.User
	byEmail  map[string]*models.User
	chats    map[uuid.UUID]*models.Chat
	messages map[uuid.UUID][]models.Message

	createMessageErr error
}

func newFakeDataStore() *fakeDataStore {
	return &fakeDataStore{
		users:    make(map[uuid.UUID]*models.User),
		byEmail:  make(map[string]*models.User),
		chats:    make(map[uuid.UUID]*models.Chat),
		messages: make(map[uuid.UUID][]models.Message),
	}
}

func (f *fakeDataStore) Close()                        {}
func (f *fakeDataStore) Ping(_ context.Context) error { return nil }

func (f *fakeDataStore) CreateUser(_ context.Context, email, passwordHash, name string) (*models.User, error) {
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		CreatedAt:    time.Now(),
	}
	f.users[user.ID] = user
	f.byEmail[email] = user
	return user, nil
}

func (f *fakeDataStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return f.users[id], nil
}

func (f *fakeDataStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return f.byEmail[email], nil
}

func (f *fakeDataStore) CreateChat(_ context.Context, userID uuid.UUID, name string) (*models.Chat, error) {
	chat := &models.Chat{
		ID:        uuid.New(),
		UserID:    userID,
		ChatName:  name,
		CreatedAt: time.Now(),
	}
	f.chats[chat.ID] = chat
	return chat, nil
}

func (f *fakeDataStore) GetChat(_ context.Context, id, userID uuid.UUID) (*models.Chat, error) {
	chat := f.chats[id]
	if chat == nil || chat.UserID != userID {
		return nil, nil
	}
	return chat, nil
}

func (f *fakeDataStore) ListChats(_ context.Context, userID uuid.UUID) ([]models.Chat, error) {
	var chats []models.Chat
	for _, chat := range f.chats {
		if chat.UserID == userID {
			chats = append(chats, *chat)
		}
	}
	return chats, nil
}

func (f *fakeDataStore) CreateMessage(_ context.Context, chatID uuid.UUID, role models.Role, content string) (*models.Message, error) {
	if f.createMessageErr != nil {
		return nil, f.createMessageErr
	}
	msg := models.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	f.messages[chatID] = append(f.messages[chatID], msg)
	return &msg, nil
}

func (f *fakeDataStore) ListMessages(_ context.Context, chatID uuid.UUID) ([]models.Message, error) {
	return append([]models.Message(nil), f.messages[chatID]...), nil
}

// fakeSessions is an in-memory SessionStore.
type fakeSessions struct {
	tokens map[string]uuid.UUID
}

func (f *fakeSessions) SaveSession(_ context.Context, token string, userID uuid.UUID, _ time.Duration) error {
	f.tokens[token] = userID
	return nil
}

func (f *fakeSessions) GetSession(_ context.Context, token string) (uuid.UUID, error) {
	return f.tokens[token], nil
}

func (f *fakeSessions) DeleteSession(_ context.Context, token string) error {
	delete(f.tokens, token)
	return nil
}

// fakeLocks is an in-memory LockStore.
type fakeLocks struct {
	conflict bool
	acquires int
	releases int
}

func (f *fakeLocks) AcquireStreamLock(_ context.Context, _ uuid.UUID, _ time.Duration) (bool, error) {
	if f.conflict {
		return false, nil
	}
	f.acquires++
	return true, nil
}

func (f *fakeLocks) ReleaseStreamLock(_ context.Context, _ uuid.UUID) error {
	f.releases++
	return nil
}

// fakeProvider returns a canned fragment stream, or fails to open.
type fakeProvider struct {
	fragments []string
	openErr   error

	calls   int
	history []llm.Turn
}

func (p *fakeProvider) StreamCompletion(_ context.Context, turns []llm.Turn) (llm.Stream, error) {
	p.calls++
	p.history = turns
	if p.openErr != nil {
		return nil, p.openErr
	}
	return &cannedStream{fragments: p.fragments}, nil
}

type cannedStream struct {
	fragments []string
}

func (s *cannedStream) Recv() (string, error) {
	if len(s.fragments) == 0 {
		return "", io.EOF
	}
	fragment := s.fragments[0]
	s.fragments = s.fragments[1:]
	return fragment, nil
}

func (s *cannedStream) Close() error { return nil }

func newTestHandler(data *fakeDataStore, locks *fakeLocks, provider llm.Provider) *Handler {
	return &Handler{
		store:    data,
		sessions: &fakeSessions{tokens: make(map[string]uuid.UUID)},
		locks:    locks,
		provider: provider,
		logger:   zerolog.Nop(),
		cfg: &config.Config{
			ProviderTimeout: time.Minute,
			StreamLockTTL:   time.Minute,
			SessionTTL:      time.Hour,
		},
	}
}

// testRequest builds a request with the chi route param and the context the
// auth middleware would have injected.
func testRequest(t *testing.T, method, target, body string, user *models.User, chatID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := req.Context()
	if chatID != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("chatID", chatID)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	if user != nil {
		ctx = context.WithValue(ctx, middleware.UserContextKey, user)
		ctx = context.WithValue(ctx, middleware.TokenContextKey, "test-token")
	}
	return req.WithContext(ctx)
}
