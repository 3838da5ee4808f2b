// Package keychain holds signing keys of tokens, identified by key ids.
package keychain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/opst/karfab/pkg/keychain/key"
)

var ErrNoKeyFound error = errors.New("no key found")
var ErrInvalidToken error = errors.New("invalid token")
var ErrBadNewKey = errors.New("new key is bad. It does not satisfy the requirements")

// DefaultKeyPolicy issues keys for 3 hours.
var DefaultKeyPolicy = key.HS256(3*time.Hour, 2048/8)

type KeyRequirement func(kid string, k key.Key) bool

// WithAlg returns a KeyRequirement that filters the key by the algorithm.
func WithAlg(alg string) KeyRequirement {
	return func(_ string, k key.Key) bool {
		return k.Alg() == alg
	}
}

// WithExpAfter returns a KeyRequirement that filters the key by the expiration time.
//
// It returns true if the key's expiration time is after the given time.
func WithExpAfter(t time.Time) KeyRequirement {
	return func(_ string, k key.Key) bool {
		return k.Exp().After(t)
	}
}

// WithKeyId returns a KeyRequirement that filters the key by the Key ID.
func WithKeyId(kid string) KeyRequirement {
	return func(_kid string, _ key.Key) bool {
		return _kid == kid
	}
}

type Keychain struct {
	mu     sync.RWMutex
	keys   map[string]key.Key
	policy key.KeyPolicy
	now    func() time.Time
}

type Option func(*Keychain)

func WithPolicy(policy key.KeyPolicy) Option {
	return func(kc *Keychain) {
		kc.policy = policy
	}
}

// WithKey puts a key into the keychain on creation.
func WithKey(kid string, k key.Key) Option {
	return func(kc *Keychain) {
		kc.keys[kid] = k
	}
}

func WithClock(now func() time.Time) Option {
	return func(kc *Keychain) {
		kc.now = now
	}
}

func New(options ...Option) *Keychain {
	kc := &Keychain{
		keys:   map[string]key.Key{},
		policy: DefaultKeyPolicy,
		now:    time.Now,
	}
	for _, o := range options {
		o(kc)
	}
	return kc
}

// GetKey a key from the keychain
//
// # Args
//
// - req: Requirements of the key. If multiple keys satisfy requirements, random one is returned.
//
// # Returns
//
// - string: Key ID of the key found. If not found, it returns an empty string
//
// - Key: The key found. If not found, it returns nil
//
// - bool: True if the key is found
func (kc *Keychain) GetKey(req ...KeyRequirement) (string, key.Key, bool) {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.find(req...)
}

func (kc *Keychain) find(req ...KeyRequirement) (string, key.Key, bool) {
KEY:
	for kid, k := range kc.keys {
		for _, r := range req {
			if !r(kid, k) {
				continue KEY
			}
		}
		return kid, k, true
	}
	return "", nil, false
}

// Provide returns a key satisfying requirements.
// If no key satisfies them, it issues a new key and keeps it.
//
// Expired keys are dropped on issuing.
func (kc *Keychain) Provide(req ...KeyRequirement) (string, key.Key, error) {
	if kid, k, ok := kc.GetKey(req...); ok {
		return kid, k, nil
	}

	kc.mu.Lock()
	defer kc.mu.Unlock()

	// other goroutine may have issued one meanwhile.
	if kid, k, ok := kc.find(req...); ok {
		return kid, k, nil
	}

	kid := uuid.NewString()
	k, err := kc.policy.Issue()
	if err != nil {
		return "", nil, err
	}
	for _, r := range req {
		if !r(kid, k) {
			return "", nil, ErrBadNewKey
		}
	}

	now := kc.now()
	for id, old := range kc.keys {
		if !old.Exp().After(now) {
			delete(kc.keys, id)
		}
	}
	kc.keys[kid] = k
	return kid, k, nil
}

// Len returns the number of keys.
func (kc *Keychain) Len() int {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return len(kc.keys)
}

// NewJWS signs for claim and returns a JWS (JSON Web Signature) token string
//
// # Args
//
// - kid: Key ID
//
// - k: Key to sign
//
// - claims: Claims to be signed
func NewJWS[C jwt.Claims](kid string, k key.Key, claims C) (string, error) {
	tok := jwt.NewWithClaims(jwt.GetSigningMethod(k.Alg()), claims)
	tok.Header["kid"] = kid
	return tok.SignedString(k.ToSign())
}

// VerifyJWS verifies a JWS token and parses its claims into claims.
//
// # Returns
//
// - error: can be [ErrNoKeyFound] when available key is not found in the Keychain,
// [ErrInvalidToken] when the token is malformed, has bad signature or is expired,
// or any errors from [jwt.ParseWithClaims]
func VerifyJWS(kc *Keychain, token string, claims jwt.Claims) error {
	now := kc.now()
	_, err := jwt.ParseWithClaims(
		token, claims,
		func(t *jwt.Token) (interface{}, error) {
			q := []KeyRequirement{
				WithExpAfter(now),
				WithAlg(t.Method.Alg()),
			}
			if kid, ok := t.Header["kid"].(string); ok {
				q = append(q, WithKeyId(kid))
			}
			_, k, ok := kc.GetKey(q...)
			if !ok {
				return nil, ErrNoKeyFound
			}
			return k.ToVerify(), nil
		},
		jwt.WithTimeFunc(kc.now),
	)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNoKeyFound) {
		return fmt.Errorf("%w: %w", ErrInvalidToken, ErrNoKeyFound)
	}
	for _, e := range []error{jwt.ErrTokenMalformed, jwt.ErrSignatureInvalid, jwt.ErrTokenExpired, jwt.ErrTokenNotValidYet} {
		if errors.Is(err, e) {
			return errors.Join(ErrInvalidToken, err)
		}
	}
	return err
}
