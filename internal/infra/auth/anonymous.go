// Package auth obtains an anonymous Firebase session for the remote store.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrAuth marks a failed sign-in. Callers treat it as a warning: the store
// may still accept unauthenticated access.
var ErrAuth = errors.New("anonymous sign-in failed")

// Session holds the anonymous user's tokens and refreshes them on demand.
// It is an oauth2.TokenSource so the Firestore client can use it directly.
type Session struct {
	APIKey   string
	AuthURL  string
	TokenURL string
	HTTP     *http.Client

	mu           sync.Mutex
	uid          string
	idToken      string
	refreshToken string
	expiry       time.Time
	now          func() time.Time
}

func NewSession(apiKey, authURL, tokenURL string, client *http.Client) *Session {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Session{APIKey: apiKey, AuthURL: authURL, TokenURL: tokenURL, HTTP: client, now: time.Now}
}

var _ oauth2.TokenSource = (*Session)(nil)

type signUpResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// SignIn creates a new anonymous user unless a session already exists.
func (s *Session) SignIn(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idToken != "" {
		return nil
	}
	return s.signUpLocked(ctx)
}

func (s *Session) UID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uid
}

// Token returns a valid ID token, refreshing it a minute before expiry.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch {
	case s.idToken == "":
		if err := s.signUpLocked(ctx); err != nil {
			return nil, err
		}
	case s.now().After(s.expiry.Add(-time.Minute)):
		if err := s.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	return &oauth2.Token{AccessToken: s.idToken, TokenType: "Bearer", Expiry: s.expiry}, nil
}

func (s *Session) signUpLocked(ctx context.Context) error {
	if s.APIKey == "" {
		return fmt.Errorf("%w: no api key configured", ErrAuth)
	}
	body, err := json.Marshal(map[string]any{"returnSecureToken": true})
	if err != nil {
		return err
	}
	urlStr := strings.TrimRight(s.AuthURL, "/") + "/v1/accounts:signUp?key=" + url.QueryEscape(s.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var out signUpResponse
	if err := s.do(req, &out); err != nil {
		return err
	}
	s.uid = out.LocalID
	s.set(out.IDToken, out.RefreshToken, out.ExpiresIn)
	return nil
}

func (s *Session) refreshLocked(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", s.refreshToken)

	urlStr := strings.TrimRight(s.TokenURL, "/") + "/v1/token?key=" + url.QueryEscape(s.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out refreshResponse
	if err := s.do(req, &out); err != nil {
		// a dead refresh token means starting over as a new anonymous user
		s.idToken = ""
		return err
	}
	if out.UserID != "" {
		s.uid = out.UserID
	}
	s.set(out.IDToken, out.RefreshToken, out.ExpiresIn)
	return nil
}

func (s *Session) do(req *http.Request, out any) error {
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: identity status %d: %s", ErrAuth, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrAuth, err)
	}
	return nil
}

func (s *Session) set(idToken, refreshToken, expiresIn string) {
	secs, err := strconv.Atoi(expiresIn)
	if err != nil || secs <= 0 {
		secs = 3600
	}
	s.idToken = idToken
	if refreshToken != "" {
		s.refreshToken = refreshToken
	}
	s.expiry = s.now().Add(time.Duration(secs) * time.Second)
}
