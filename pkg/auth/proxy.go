package auth

import (
	"sort"
	"sync"
	"time"
)

// Proxy is a credential issued for a user in a domain.
type Proxy struct {
	Domain  string    `json:"domain"`
	User    string    `json:"user"`
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// Valid tells the proxy can be used at now.
func (p Proxy) Valid(now time.Time) bool {
	return p.Token != "" && now.Before(p.Expires)
}

// ProxyRepository keeps a proxy per domain.
type ProxyRepository struct {
	mu      sync.Mutex
	proxies map[string]Proxy
	now     func() time.Time
}

type RepositoryOption func(*ProxyRepository)

func WithRepositoryClock(now func() time.Time) RepositoryOption {
	return func(pr *ProxyRepository) {
		pr.now = now
	}
}

func NewProxyRepository(options ...RepositoryOption) *ProxyRepository {
	pr := &ProxyRepository{proxies: map[string]Proxy{}, now: time.Now}
	for _, o := range options {
		o(pr)
	}
	return pr
}

// Put stores the proxy, replacing one of the same domain.
func (pr *ProxyRepository) Put(p Proxy) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.proxies[p.Domain] = p
}

// Get returns a valid proxy of the domain.
//
// Expired proxies are dropped and not returned.
func (pr *ProxyRepository) Get(domain string) (Proxy, bool) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	p, ok := pr.proxies[domain]
	if !ok {
		return Proxy{}, false
	}
	if !p.Valid(pr.now()) {
		delete(pr.proxies, domain)
		return Proxy{}, false
	}
	return p, true
}

// Remove drops the proxy of the domain. It reports whether a proxy was there.
func (pr *ProxyRepository) Remove(domain string) bool {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	_, ok := pr.proxies[domain]
	delete(pr.proxies, domain)
	return ok
}

// Domains returns sorted names of domains having proxies, including expired ones.
func (pr *ProxyRepository) Domains() []string {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	names := make([]string, 0, len(pr.proxies))
	for d := range pr.proxies {
		names = append(names, d)
	}
	sort.Strings(names)
	return names
}
