package configs

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver"
	"github.com/opst/karfab/pkg/auth"
	"github.com/opst/karfab/pkg/cache"
	"github.com/opst/karfab/pkg/kar"
	"github.com/opst/karfab/pkg/modules"
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `pkg/configs.XxxMarshall` are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

const (
	DefaultPort = 8080

	DefaultRescanInterval = 10 * time.Minute

	IndexMemory   = "memory"
	IndexBolt     = "bolt"
	IndexPostgres = "postgres"
)

// Configuration of karfab daemon.
//
// This type is marshalling value and mutable.
// Consider to use immutable version, `Config`, via `TrySeal`.
type ConfigMarshall struct {
	Port    int32                  `yaml:"port"`
	KAR     *KARConfigMarshall     `yaml:"kar"`
	Cache   *CacheConfigMarshall   `yaml:"cache"`
	Auth    *AuthConfigMarshall    `yaml:"auth"`
	Modules *ModulesConfigMarshall `yaml:"modules"`
}

var _ Marshalled[*Config] = &ConfigMarshall{}

func (c *ConfigMarshall) trySeal(path string) *Config {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return &Config{
		port:    port,
		kar:     nonnil(c.KAR, path+".kar").trySeal(path + ".kar"),
		cache:   orDefault(c.Cache).trySeal(path + ".cache"),
		auth:    orDefault(c.Auth).trySeal(path + ".auth"),
		modules: orDefault(c.Modules).trySeal(path + ".modules"),
	}
}

type KARConfigMarshall struct {
	Directories       []string `yaml:"directories"`
	ModuleDirectory   string   `yaml:"moduleDirectory"`
	SupportedVersions string   `yaml:"supportedVersions,omitempty"`

	// RescanInterval is the period of reconciling directories with the index.
	// Default is DefaultRescanInterval. Negative value disables rescanning.
	RescanInterval time.Duration `yaml:"rescanInterval,omitempty"`
}

func (k *KARConfigMarshall) trySeal(path string) *KARConfig {
	versions := k.SupportedVersions
	if versions == "" {
		versions = kar.DefaultSupportedVersions
	}
	if _, err := semver.NewConstraint(versions); err != nil {
		panic(fmt.Sprintf("%s.supportedVersions: %s", path, err))
	}
	dirs := nonempty(k.Directories, path+".directories")
	for i, d := range dirs {
		required(d, fmt.Sprintf("%s.directories[%d]", path, i))
	}
	rescan := k.RescanInterval
	if rescan == 0 {
		rescan = DefaultRescanInterval
	}
	return &KARConfig{
		directories:       append([]string{}, dirs...),
		moduleDirectory:   required(k.ModuleDirectory, path+".moduleDirectory"),
		supportedVersions: versions,
		rescanInterval:    rescan,
	}
}

type CacheConfigMarshall struct {
	MaxEntries int                  `yaml:"maxEntries,omitempty"`
	Index      *IndexConfigMarshall `yaml:"index"`
}

func (c *CacheConfigMarshall) trySeal(path string) *CacheConfig {
	max := c.MaxEntries
	if max == 0 {
		max = cache.DefaultMaxEntries
	}
	if max < 0 {
		panic(path + ".maxEntries should be positive")
	}
	return &CacheConfig{
		maxEntries: max,
		index:      orDefault(c.Index).trySeal(path + ".index"),
	}
}

type IndexConfigMarshall struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path,omitempty"`
	DSN  string `yaml:"dsn,omitempty"`
}

func (i *IndexConfigMarshall) trySeal(path string) *IndexConfig {
	kind := i.Kind
	if kind == "" {
		kind = IndexMemory
	}
	ic := &IndexConfig{kind: kind}
	switch kind {
	case IndexMemory:
	case IndexBolt:
		ic.path = required(i.Path, path+".path")
	case IndexPostgres:
		ic.dsn = required(i.DSN, path+".dsn")
	default:
		panic(fmt.Sprintf("%s.kind: unknown index %q", path, kind))
	}
	return ic
}

type AuthConfigMarshall struct {
	KeyTTL  time.Duration           `yaml:"keyTTL,omitempty"`
	Domains []*DomainConfigMarshall `yaml:"domains"`
}

func (a *AuthConfigMarshall) trySeal(path string) *AuthConfig {
	ttl := a.KeyTTL
	if ttl == 0 {
		ttl = 3 * time.Hour
	}
	domains := make([]*DomainConfig, 0, len(a.Domains))
	for i, d := range a.Domains {
		p := fmt.Sprintf("%s.domains[%d]", path, i)
		dc := nonnil(d, p).trySeal(p)
		if dc.domain.TokenTTL >= ttl {
			panic(fmt.Sprintf("%s.tokenTTL should be shorter than %s.keyTTL", p, path))
		}
		domains = append(domains, dc)
	}
	return &AuthConfig{keyTTL: ttl, domains: domains}
}

type DomainConfigMarshall struct {
	Name     string            `yaml:"name"`
	Service  string            `yaml:"service"`
	URL      string            `yaml:"url,omitempty"`
	TokenTTL time.Duration     `yaml:"tokenTTL,omitempty"`
	Users    map[string]string `yaml:"users,omitempty"`
}

func (d *DomainConfigMarshall) trySeal(path string) *DomainConfig {
	svc := required(d.Service, path+".service")
	dom := auth.Domain{
		Name:     required(d.Name, path+".name"),
		Service:  svc,
		TokenTTL: d.TokenTTL,
	}
	switch svc {
	case auth.ServiceLocal:
	case auth.ServiceHTTP:
		dom.URL = required(d.URL, path+".url")
	default:
		panic(fmt.Sprintf("%s.service: unknown service %q", path, svc))
	}
	if dom.TokenTTL == 0 {
		dom.TokenTTL = auth.DefaultTokenTTL
	}
	users := map[string]string{}
	for u, p := range d.Users {
		users[u] = p
	}
	return &DomainConfig{domain: dom, users: users}
}

type ModulesConfigMarshall struct {
	Installed []string `yaml:"installed"`
}

func (m *ModulesConfigMarshall) trySeal(path string) *ModulesConfig {
	installed := make([]modules.Module, 0, len(m.Installed))
	for i, s := range m.Installed {
		mod, err := modules.Parse(s)
		if err != nil {
			panic(fmt.Sprintf("%s.installed[%d]: %s", path, i, err))
		}
		installed = append(installed, mod)
	}
	return &ModulesConfig{installed: installed}
}

func orDefault[T any](v *T) *T {
	if v == nil {
		return new(T)
	}
	return v
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func nonempty[T any](v []T, path string) []T {
	if len(v) == 0 {
		panic(path + " is required")
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}
