package auth

import (
	"context"
	"fmt"
	"log"

	xe "github.com/opst/karfab/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Manager gives proxies for domains, authenticating users when needed.
type Manager struct {
	domains  *DomainList
	repo     *ProxyRepository
	services map[string]Service
	logger   *log.Logger

	authenticating singleflight.Group
}

type ManagerOption func(*Manager)

// WithService sets Service for the kind of service (ServiceLocal, ServiceHTTP).
func WithService(kind string, s Service) ManagerOption {
	return func(m *Manager) {
		m.services[kind] = s
	}
}

func WithLogger(l *log.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

func NewManager(domains *DomainList, repo *ProxyRepository, options ...ManagerOption) *Manager {
	m := &Manager{
		domains:  domains,
		repo:     repo,
		services: map[string]Service{},
		logger:   log.Default(),
	}
	for _, o := range options {
		o(m)
	}
	return m
}

func (m *Manager) Domains() *DomainList {
	return m.domains
}

// GetProxy returns a valid proxy for the domain.
//
// If the repository has no valid proxy, the user is authenticated with a credential
// from cs, and the new proxy is stored.
//
// # Errors
//
// - ErrNotFound: unknown domain.
//
// - ErrUnauthorized: the credential is rejected.
func (m *Manager) GetProxy(ctx context.Context, domain string, cs CredentialSource) (Proxy, error) {
	d, err := m.domains.Get(domain)
	if err != nil {
		return Proxy{}, err
	}
	if p, ok := m.repo.Get(d.Name); ok {
		return p, nil
	}

	svc, ok := m.services[d.Service]
	if !ok {
		return Proxy{}, fmt.Errorf("%w: service %s for domain %s", xe.ErrNotFound, d.Service, d.Name)
	}

	v, err, _ := m.authenticating.Do(d.Name, func() (interface{}, error) {
		if p, ok := m.repo.Get(d.Name); ok {
			return p, nil
		}
		c, err := cs(ctx, d)
		if err != nil {
			return Proxy{}, err
		}
		p, err := svc.Authenticate(ctx, d, c)
		if err != nil {
			m.logger.Printf("authentication failed: domain %s, user %q: %s", d.Name, c.User, err)
			return Proxy{}, err
		}
		m.repo.Put(p)
		m.logger.Printf("authenticated: domain %s, user %q, expires %s", d.Name, p.User, p.Expires)
		return p, nil
	})
	if err != nil {
		return Proxy{}, err
	}
	return v.(Proxy), nil
}

// Revoke drops the proxy of the domain.
func (m *Manager) Revoke(domain string) error {
	if _, err := m.domains.Get(domain); err != nil {
		return err
	}
	m.repo.Remove(domain)
	return nil
}

// Login authenticates the user regardless of stored proxies,
// and replaces the proxy of the domain with the new one.
//
// # Errors
//
// - ErrNotFound: unknown domain.
//
// - ErrUnauthorized: the credential is rejected.
func (m *Manager) Login(ctx context.Context, domain string, c Credential) (Proxy, error) {
	d, err := m.domains.Get(domain)
	if err != nil {
		return Proxy{}, err
	}
	svc, ok := m.services[d.Service]
	if !ok {
		return Proxy{}, fmt.Errorf("%w: service %s for domain %s", xe.ErrNotFound, d.Service, d.Name)
	}
	p, err := svc.Authenticate(ctx, d, c)
	if err != nil {
		m.logger.Printf("authentication failed: domain %s, user %q: %s", d.Name, c.User, err)
		return Proxy{}, err
	}
	m.repo.Put(p)
	m.logger.Printf("logged in: domain %s, user %q, expires %s", d.Name, p.User, p.Expires)
	return p, nil
}
