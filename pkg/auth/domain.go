// Package auth authenticates users against domains, and keeps proxies
// (tokens with expiry) issued for them.
package auth

import (
	"fmt"
	"sort"
	"time"

	xe "github.com/opst/karfab/pkg/errors"
)

const (
	// ServiceLocal is a kind of service which issues tokens in this process.
	ServiceLocal = "local"

	// ServiceHTTP is a kind of service which asks a remote endpoint for tokens.
	ServiceHTTP = "http"
)

// DefaultTokenTTL is used for domains without TokenTTL.
const DefaultTokenTTL = 1 * time.Hour

// Domain is where users are authenticated.
type Domain struct {
	Name string

	// Service is a kind of service authenticating users. ServiceLocal or ServiceHTTP.
	Service string

	// URL of the remote endpoint. Used by ServiceHTTP.
	URL string

	// TokenTTL is lifetime of tokens issued by ServiceLocal.
	TokenTTL time.Duration
}

// DomainList is a set of domains, keyed by name.
type DomainList struct {
	domains map[string]Domain
}

// NewDomainList builds DomainList.
//
// Names of domains should be unique and not empty.
func NewDomainList(domains ...Domain) (*DomainList, error) {
	dl := &DomainList{domains: map[string]Domain{}}
	for _, d := range domains {
		if d.Name == "" {
			return nil, fmt.Errorf("domain without name")
		}
		if _, ok := dl.domains[d.Name]; ok {
			return nil, fmt.Errorf("domain %s is duplicated", d.Name)
		}
		switch d.Service {
		case ServiceLocal:
		case ServiceHTTP:
			if d.URL == "" {
				return nil, fmt.Errorf("domain %s: %s service requires url", d.Name, d.Service)
			}
		default:
			return nil, fmt.Errorf("domain %s: unknown service %q", d.Name, d.Service)
		}
		if d.TokenTTL <= 0 {
			d.TokenTTL = DefaultTokenTTL
		}
		dl.domains[d.Name] = d
	}
	return dl, nil
}

// Get returns the domain, or ErrNotFound.
func (dl *DomainList) Get(name string) (Domain, error) {
	d, ok := dl.domains[name]
	if !ok {
		return Domain{}, fmt.Errorf("%w: domain %s", xe.ErrNotFound, name)
	}
	return d, nil
}

// Names returns sorted names of domains.
func (dl *DomainList) Names() []string {
	names := make([]string, 0, len(dl.domains))
	for n := range dl.domains {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
