package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"meerchat/pkg/config"
	"meerchat/pkg/logger"
	"meerchat/pkg/models"
	"meerchat/pkg/store"
)

type provider struct {
	name        string
	conf        *oauth2.Config
	userInfoURL string
}

func buildProviders(cfgs map[string]config.OAuthProvider, siteURL string) map[string]*provider {
	out := make(map[string]*provider, len(cfgs))
	for name, c := range cfgs {
		name = strings.ToLower(name)
		out[name] = &provider{
			name: name,
			conf: &oauth2.Config{
				ClientID:     c.ClientID,
				ClientSecret: c.ClientSecret,
				Endpoint:     oauth2.Endpoint{AuthURL: c.AuthURL, TokenURL: c.TokenURL},
				RedirectURL:  siteURL + "/auth/callback/" + name,
				Scopes:       c.Scopes,
			},
			userInfoURL: c.UserInfoURL,
		}
	}
	return out
}

// Providers lists configured provider names.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for n := range s.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// OAuthRedirect returns the provider authorization URL. next is where the
// callback sends the browser afterwards.
func (s *Service) OAuthRedirect(name, next string) (string, error) {
	p, ok := s.providers[strings.ToLower(name)]
	if !ok {
		return "", ErrUnknownProvider
	}
	if next != "" && !s.allowedRedirect(next) {
		next = ""
	}
	state, err := s.issuer.signState(p.name, next)
	if err != nil {
		return "", err
	}
	return p.conf.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

type userInfo struct {
	Sub   string `json:"sub"`
	ID    any    `json:"id"`
	Email string `json:"email"`
}

// OAuthCallback exchanges the code, resolves the user by email (creating a
// verified account when needed) and issues a session. It returns the next
// path carried in state.
func (s *Service) OAuthCallback(ctx context.Context, name, code, state string) (Session, models.User, string, error) {
	p, ok := s.providers[strings.ToLower(name)]
	if !ok {
		return Session{}, models.User{}, "", ErrUnknownProvider
	}
	next, err := s.issuer.parseState(state, p.name)
	if err != nil {
		return Session{}, models.User{}, "", err
	}
	if code == "" {
		return Session{}, models.User{}, "", ErrOAuthState
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return Session{}, models.User{}, "", fmt.Errorf("oauth exchange: %w", err)
	}
	info, err := s.fetchUserInfo(ctx, p, tok)
	if err != nil {
		return Session{}, models.User{}, "", err
	}
	email, err := normalizeEmail(info.Email)
	if err != nil {
		return Session{}, models.User{}, "", fmt.Errorf("oauth userinfo: %w", err)
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !u.EmailVerified {
			u.EmailVerified = true
			if err := s.users.UpdateUser(ctx, u); err != nil {
				return Session{}, models.User{}, "", err
			}
		}
	case errors.Is(err, store.ErrNotFound):
		u, err = s.users.CreateUser(ctx, models.User{ID: uuid.NewString(), Email: email, EmailVerified: true})
		if err != nil {
			return Session{}, models.User{}, "", fmt.Errorf("create user: %w", err)
		}
		logger.AuditEvent("signup", "user_id", u.ID, "provider", p.name)
	default:
		return Session{}, models.User{}, "", err
	}

	sess, err := s.issuer.Issue(u)
	if err != nil {
		return Session{}, models.User{}, "", err
	}
	logger.AuditEvent("signin", "user_id", u.ID, "provider", p.name)
	return sess, u, next, nil
}

func (s *Service) fetchUserInfo(ctx context.Context, p *provider, tok *oauth2.Token) (userInfo, error) {
	client := p.conf.Client(ctx, tok)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return userInfo{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return userInfo{}, fmt.Errorf("oauth userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return userInfo{}, fmt.Errorf("oauth userinfo: status %d: %s", resp.StatusCode, body)
	}
	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return userInfo{}, fmt.Errorf("oauth userinfo: %w", err)
	}
	return info, nil
}
