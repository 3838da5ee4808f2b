package auth

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	xe "github.com/opst/karfab/pkg/errors"
	"github.com/opst/karfab/pkg/keychain"
)

// Credential is what a user presents to be authenticated.
type Credential struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

// CredentialSource gives a credential for the domain, for example, by asking the user.
type CredentialSource func(ctx context.Context, d Domain) (Credential, error)

// StaticCredential is a CredentialSource returning the credential always.
func StaticCredential(c Credential) CredentialSource {
	return func(context.Context, Domain) (Credential, error) {
		return c, nil
	}
}

// Service authenticates users in domains.
type Service interface {
	// Authenticate the user, and issue a proxy.
	//
	// # Errors
	//
	// - ErrUnauthorized: the credential is rejected.
	Authenticate(ctx context.Context, d Domain, c Credential) (Proxy, error)
}

const tokenIssuer = "karfab"

// Claims of tokens issued by LocalService.
type Claims struct {
	jwt.RegisteredClaims
}

// User who the token is issued for.
func (c *Claims) User() string {
	return c.Subject
}

// Domain where the token is issued in.
func (c *Claims) Domain() string {
	if len(c.Audience) == 0 {
		return ""
	}
	return c.Audience[0]
}

// LocalService authenticates users with passwords in memory, and issues JWT.
type LocalService struct {
	keychain *keychain.Keychain
	users    map[string]map[string]string // domain -> user -> password
	now      func() time.Time
}

type LocalOption func(*LocalService)

// WithUsers registers users of the domain.
func WithUsers(domain string, users map[string]string) LocalOption {
	return func(ls *LocalService) {
		us, ok := ls.users[domain]
		if !ok {
			us = map[string]string{}
			ls.users[domain] = us
		}
		for u, p := range users {
			us[u] = p
		}
	}
}

func WithLocalClock(now func() time.Time) LocalOption {
	return func(ls *LocalService) {
		ls.now = now
	}
}

func NewLocalService(kc *keychain.Keychain, options ...LocalOption) *LocalService {
	ls := &LocalService{
		keychain: kc,
		users:    map[string]map[string]string{},
		now:      time.Now,
	}
	for _, o := range options {
		o(ls)
	}
	return ls
}

func (ls *LocalService) Authenticate(ctx context.Context, d Domain, c Credential) (Proxy, error) {
	password, ok := ls.users[d.Name][c.User]
	if !ok || subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) != 1 {
		return Proxy{}, fmt.Errorf("%w: user %q in domain %s", xe.ErrUnauthorized, c.User, d.Name)
	}

	now := ls.now()
	exp := now.Add(d.TokenTTL).Truncate(time.Second)
	kid, k, err := ls.keychain.Provide(keychain.WithExpAfter(exp))
	if err != nil {
		return Proxy{}, err
	}
	token, err := keychain.NewJWS(kid, k, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   c.User,
			Audience:  jwt.ClaimStrings{d.Name},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	if err != nil {
		return Proxy{}, err
	}
	return Proxy{Domain: d.Name, User: c.User, Token: token, Expires: exp}, nil
}

// Verify checks the token was issued by this service, and returns its claims.
//
// # Errors
//
// - ErrUnauthorized: the token is invalid.
//
// - ErrExpired: the token is expired.
func (ls *LocalService) Verify(token string) (*Claims, error) {
	claims := new(Claims)
	if err := keychain.VerifyJWS(ls.keychain, token, claims); err != nil {
		if xe.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", xe.ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", xe.ErrUnauthorized, err)
	}
	if claims.Issuer != tokenIssuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", xe.ErrUnauthorized, claims.Issuer)
	}
	return claims, nil
}

// HTTPService asks a remote endpoint to authenticate users.
//
// It POSTs the Credential as JSON to the URL of the domain,
// and accepts {"token": ..., "expires": RFC3339} in the response.
type HTTPService struct {
	client *http.Client
}

func NewHTTPService(client *http.Client) *HTTPService {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPService{client: client}
}

type tokenResponse struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

func (hs *HTTPService) Authenticate(ctx context.Context, d Domain, c Credential) (Proxy, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return Proxy{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return Proxy{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := hs.client.Do(req)
	if err != nil {
		return Proxy{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Proxy{}, fmt.Errorf("%w: user %q in domain %s", xe.ErrUnauthorized, c.User, d.Name)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Proxy{}, fmt.Errorf("domain %s: unexpected status %d: %s", d.Name, resp.StatusCode, msg)
	}

	tr := tokenResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Proxy{}, fmt.Errorf("domain %s: broken response: %w", d.Name, err)
	}
	if tr.Token == "" {
		return Proxy{}, fmt.Errorf("domain %s: response without token", d.Name)
	}
	return Proxy{Domain: d.Name, User: c.User, Token: tr.Token, Expires: tr.Expires}, nil
}
