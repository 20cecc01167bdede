// Package chatrelay provides a client for the ChatRelay streamed chat API.
package chatrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Client is a ChatRelay API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Token      string
	HTTPClient *http.Client
}

// Config holds the persisted session.
type Config struct {
	Token string `json:"token"`
}

// NewClient creates a new ChatRelay client.
//
// The HTTP client carries no global timeout: message streams stay open for
// as long as the assistant is talking. Bound individual calls with contexts.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("CHATRELAY_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".chatrelay")
	}

	c := &Client{
		BaseURL:    baseURL,
		ConfigDir:  configDir,
		HTTPClient: &http.Client{},
	}

	_ = c.LoadConfig()
	return c
}

// LoadConfig loads the saved session from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "session.json"))
	if err != nil {
		return err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}

	c.Token = config.Token
	return nil
}

// SaveConfig saves the session to disk.
func (c *Client) SaveConfig() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	data, _ := json.MarshalIndent(Config{Token: c.Token}, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "session.json"), data, 0600)
}

// doRequest performs an HTTP request and decodes error bodies.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, apiError(resp.StatusCode, respBody)
	}

	return respBody, nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatrelay: %d: %s", e.StatusCode, e.Message)
}

func apiError(status int, body []byte) error {
	var errResp struct {
		Error string `json:"error"`
	}
	json.Unmarshal(body, &errResp)
	return &APIError{StatusCode: status, Message: errResp.Error}
}

// User is a registered account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Chat is a conversation thread.
type Chat struct {
	ID        string    `json:"id"`
	ChatName  string    `json:"chat_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a confirmed, server-persisted turn in a chat.
type Message struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chatId"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	AccessedAt time.Time `json:"accessedAt"`
}

// AuthResponse is returned by Register and Login.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Register creates an account and opens a session.
func (c *Client) Register(ctx context.Context, email, password, name string) (*AuthResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	})

	respBody, err := c.doRequest(ctx, "POST", "/register", body)
	if err != nil {
		return nil, err
	}

	var resp AuthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	c.Token = resp.Token
	if err := c.SaveConfig(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login opens a session for an existing account.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})

	respBody, err := c.doRequest(ctx, "POST", "/login", body)
	if err != nil {
		return nil, err
	}

	var resp AuthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	c.Token = resp.Token
	if err := c.SaveConfig(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout invalidates the current session.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.doRequest(ctx, "POST", "/logout", nil)
	if err != nil {
		return err
	}
	c.Token = ""
	return c.SaveConfig()
}

// CreateChat creates a new chat.
func (c *Client) CreateChat(ctx context.Context, name string) (*Chat, error) {
	body, _ := json.Marshal(map[string]string{"name": name})

	respBody, err := c.doRequest(ctx, "POST", "/chats", body)
	if err != nil {
		return nil, err
	}

	var chat Chat
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListChats lists the caller's chats, oldest first.
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	respBody, err := c.doRequest(ctx, "GET", "/chats", nil)
	if err != nil {
		return nil, err
	}

	var chats []Chat
	if err := json.Unmarshal(respBody, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// GetChat fetches one chat.
func (c *Client) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	respBody, err := c.doRequest(ctx, "GET", "/chats/"+chatID, nil)
	if err != nil {
		return nil, err
	}

	var chat Chat
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetMessages fetches the ordered message history of a chat.
func (c *Client) GetMessages(ctx context.Context, chatID string) ([]Message, error) {
	respBody, err := c.doRequest(ctx, "GET", "/chats/"+chatID+"/messages", nil)
	if err != nil {
		return nil, err
	}

	var msgs []Message
	if err := json.Unmarshal(respBody, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SaveAssistantMessage persists a finalized assistant message and returns the
// confirmed server record.
func (c *Client) SaveAssistantMessage(ctx context.Context, chatID, content string) (*Message, error) {
	body, _ := json.Marshal(map[string]string{"content": content})

	respBody, err := c.doRequest(ctx, "POST", "/chats/"+chatID+"/messages/ai", body)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
