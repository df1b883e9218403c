package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	apperrors "github.com/alexjbarnes/marginalio/internal/errors"
)

// Session identifies the signed-in user.
type Session struct {
	UserID      string
	Email       string
	AccessToken string
}

// User is the authenticated account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

// SignIn exchanges email and password for an access token. On success
// the client uses the new token for every later request.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var resp signInResponse

	err := c.do(ctx, apiRequest{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   signInRequest{Email: email, Password: password},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("signing in: %w", err)
	}

	if resp.AccessToken == "" || resp.User.ID == "" {
		return nil, fmt.Errorf("signing in: missing token or user: %w", apperrors.ErrRemoteResponse)
	}

	c.UseToken(resp.AccessToken)

	return &Session{
		UserID:      resp.User.ID,
		Email:       resp.User.Email,
		AccessToken: resp.AccessToken,
	}, nil
}

// User validates the current token and returns its account.
func (c *Client) User(ctx context.Context) (*User, error) {
	if c.Token() == "" {
		return nil, fmt.Errorf("fetching user: %w", apperrors.ErrNoSession)
	}

	var u User

	err := c.do(ctx, apiRequest{method: http.MethodGet, path: "/auth/v1/user"}, &u)
	if err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}

	if u.ID == "" {
		return nil, fmt.Errorf("fetching user: missing id: %w", apperrors.ErrRemoteResponse)
	}

	return &u, nil
}
