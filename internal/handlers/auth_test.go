package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterLoginLogout(t *testing.T) {
	data := newFakeDataStore()
	h := newTestHandler(data, &fakeLocks{}, &fakeProvider{})

	// Register
	rec := httptest.NewRecorder()
	req := testRequest(t, "POST", "/register", `{"email":"a@example.com","password":"longenough","name":"Alice"}`, nil, "")
	h.Register(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var reg AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.NotEmpty(t, reg.Token)
	require.NotNil(t, reg.User)
	assert.Equal(t, "a@example.com", reg.User.Email)

	// The stored hash is not the plaintext, and never leaves the server.
	stored := data.byEmail["a@example.com"]
	require.NotNil(t, stored)
	assert.NotEqual(t, "longenough", stored.PasswordHash)
	assert.NotContains(t, rec.Body.String(), stored.PasswordHash)

	// Duplicate email
	rec = httptest.NewRecorder()
	req = testRequest(t, "POST", "/register", `{"email":"a@example.com","password":"longenough"}`, nil, "")
	h.Register(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Login with the right password
	rec = httptest.NewRecorder()
	req = testRequest(t, "POST", "/login", `{"email":"a@example.com","password":"longenough"}`, nil, "")
	h.Login(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var login AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.NotEmpty(t, login.Token)

	// Logout deletes the session the middleware resolved.
	sessions := h.sessions.(*fakeSessions)
	require.Contains(t, sessions.tokens, login.Token)
	sessions.tokens["test-token"] = stored.ID

	rec = httptest.NewRecorder()
	req = testRequest(t, "POST", "/logout", "", stored, "")
	h.Logout(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, sessions.tokens, "test-token")
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	data := newFakeDataStore()
	h := newTestHandler(data, &fakeLocks{}, &fakeProvider{})

	rec := httptest.NewRecorder()
	req := testRequest(t, "POST", "/register", `{"email":"a@example.com","password":"longenough"}`, nil, "")
	h.Register(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Wrong password and unknown email are indistinguishable.
	for _, body := range []string{
		`{"email":"a@example.com","password":"wrongpassword"}`,
		`{"email":"nobody@example.com","password":"longenough"}`,
	} {
		rec = httptest.NewRecorder()
		req = testRequest(t, "POST", "/login", body, nil, "")
		h.Login(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		var errResp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
		assert.Equal(t, "invalid credentials", errResp["error"])
	}
}

func TestRegisterValidation(t *testing.T) {
	data := newFakeDataStore()
	h := newTestHandler(data, &fakeLocks{}, &fakeProvider{})

	tests := []struct {
		name string
		body string
	}{
		{"bad email", `{"email":"not-an-email","password":"longenough"}`},
		{"empty email", `{"email":"","password":"longenough"}`},
		{"short password", `{"email":"a@example.com","password":"short"}`},
		{"bad json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := testRequest(t, "POST", "/register", tt.body, nil, "")
			h.Register(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	assert.Empty(t, data.users)
}
