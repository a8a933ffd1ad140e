package apiclient

import (
	"context"
	"fmt"

	"github.com/starford/ojportal/internal/session"
)

// Problem is a judge problem as served by GET /problems/{id}.
type Problem struct {
	ID           int64  `json:"problem_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	InputFormat  string `json:"input_format"`
	OutputFormat string `json:"output_format"`
	SampleInput  string `json:"sample_input"`
	SampleOutput string `json:"sample_output"`
	TimeLimitMS  int    `json:"time_limit"`
	MemoryKB     int    `json:"memory_limit"`
	Difficulty   string `json:"difficulty"`
	Tags         string `json:"tags"`
	Visible      bool   `json:"visible"`
}

// User is a judge account as served by GET /users/{id} and /users/me.
type User struct {
	ID       int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
	Rating   int    `json:"rating"`
	Avatar   string `json:"avatar"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
}

// CredentialSink stores the credentials issued at login.
type CredentialSink interface {
	Begin(session.Credentials) error
}

// Login exchanges a username (or email) and password for a token and
// stores the resulting credentials in sink.
func (c *Client) Login(ctx context.Context, sink CredentialSink, username, password string) (*session.Credentials, error) {
	var resp loginResponse
	if err := c.Post(ctx, "/users/login", loginRequest{Username: username, Password: password}, &resp); err != nil {
		return nil, err
	}
	creds := session.Credentials{Token: resp.AccessToken, Username: resp.Username, Role: resp.Role}
	if err := sink.Begin(creds); err != nil {
		return nil, fmt.Errorf("apiclient: login: %w", err)
	}
	return &creds, nil
}

// Me returns the account behind the current token.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.Get(ctx, "/users/me", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// User fetches a single account.
func (c *Client) User(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := c.Get(ctx, fmt.Sprintf("/users/%d", id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Problem fetches a single problem.
func (c *Client) Problem(ctx context.Context, id int64) (*Problem, error) {
	var p Problem
	if err := c.Get(ctx, fmt.Sprintf("/problems/%d", id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// AvatarUpload is the backend's answer to an avatar upload.
type AvatarUpload struct {
	AvatarURL string `json:"avatar_url"`
	Message   string `json:"message,omitempty"`
}

// UploadAvatar replaces the current user's avatar. The backend stores it
// as /uploads/avatars/user_<id>.<ext> and returns that path.
func (c *Client) UploadAvatar(ctx context.Context, filename, contentType string, data []byte) (*AvatarUpload, error) {
	var out AvatarUpload
	if err := c.Upload(ctx, "/users/avatar", "file", filename, contentType, data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserID lets a User be used wherever only the id matters.
func (u *User) UserID() int64 { return u.ID }
