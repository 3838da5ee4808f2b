// Package configs loads configuration of karfab daemon.
package configs

import (
	"time"

	"github.com/opst/karfab/pkg/auth"
	"github.com/opst/karfab/pkg/modules"
)

type Config struct {
	port    int32
	kar     *KARConfig
	cache   *CacheConfig
	auth    *AuthConfig
	modules *ModulesConfig
}

// Port to listen. default = 8080
func (c *Config) Port() int32 {
	return c.port
}

func (c *Config) KAR() *KARConfig {
	return c.kar
}

func (c *Config) Cache() *CacheConfig {
	return c.cache
}

func (c *Config) Auth() *AuthConfig {
	return c.auth
}

func (c *Config) Modules() *ModulesConfig {
	return c.modules
}

type KARConfig struct {
	directories       []string
	moduleDirectory   string
	supportedVersions string
	rescanInterval    time.Duration
}

// Directories where KAR files are placed. Uploaded KAR files are stored in the first one.
func (k *KARConfig) Directories() []string {
	return append([]string{}, k.directories...)
}

// Directory where jar entries are extracted.
func (k *KARConfig) ModuleDirectory() string {
	return k.moduleDirectory
}

// semver constraint of KAR-Version to be accepted.
func (k *KARConfig) SupportedVersions() string {
	return k.supportedVersions
}

// RescanInterval is the period of reconciling directories. It is disabled when not positive.
func (k *KARConfig) RescanInterval() time.Duration {
	return k.rescanInterval
}

type CacheConfig struct {
	maxEntries int
	index      *IndexConfig
}

func (c *CacheConfig) MaxEntries() int {
	return c.maxEntries
}

func (c *CacheConfig) Index() *IndexConfig {
	return c.index
}

type IndexConfig struct {
	kind string
	path string
	dsn  string
}

// Kind of index: IndexMemory, IndexBolt or IndexPostgres.
func (i *IndexConfig) Kind() string {
	return i.kind
}

// Path of bolt database file.
func (i *IndexConfig) Path() string {
	return i.path
}

// Connection string for postgres.
func (i *IndexConfig) DSN() string {
	return i.dsn
}

type AuthConfig struct {
	keyTTL  time.Duration
	domains []*DomainConfig
}

// Lifetime of keys signing tokens.
func (a *AuthConfig) KeyTTL() time.Duration {
	return a.keyTTL
}

func (a *AuthConfig) Domains() []*DomainConfig {
	return append([]*DomainConfig{}, a.domains...)
}

type DomainConfig struct {
	domain auth.Domain
	users  map[string]string
}

func (d *DomainConfig) Domain() auth.Domain {
	return d.domain
}

// Users of local service, user name -> password.
func (d *DomainConfig) Users() map[string]string {
	users := make(map[string]string, len(d.users))
	for u, p := range d.users {
		users[u] = p
	}
	return users
}

type ModulesConfig struct {
	installed []modules.Module
}

func (m *ModulesConfig) Installed() []modules.Module {
	return append([]modules.Module{}, m.installed...)
}
