package key

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type hs256policy struct {
	ttl    time.Duration
	keyLen uint
	now    func() time.Time
}

func (f hs256policy) Issue() (Key, error) {
	k := make([]byte, f.keyLen)
	if _, err := rand.Read(k); err != nil {
		return nil, err
	}

	return &hs256Key{
		exp:    f.now().Add(f.ttl).Truncate(time.Second),
		secret: k,
	}, nil
}

// HS256 returns a KeyPolicy for HMAC-SHA256 algorithm.
//
// # Args
//
// - ttl: Time to live of new keys
//
// - klen: Length of the key in *bytes*, not bits.
func HS256(ttl time.Duration, klen uint) KeyPolicy {
	return hs256policy{ttl: ttl, keyLen: klen, now: time.Now}
}

// NewHS256 returns a HMAC-SHA256 key with given secret.
//
// Use this to share a key between processes via configuration.
func NewHS256(secret []byte, exp time.Time) Key {
	return &hs256Key{exp: exp, secret: bytes.Clone(secret)}
}

type hs256Key struct {
	exp time.Time

	// HMAC uses the same secret both for signing and verifying.
	secret []byte
}

func (*hs256Key) Alg() string {
	return jwt.SigningMethodHS256.Name
}

func (hk *hs256Key) Exp() time.Time {
	return hk.exp
}

func (hk *hs256Key) ToSign() any {
	return hk.secret
}

func (hk *hs256Key) ToVerify() any {
	return hk.secret
}

func (hk *hs256Key) Equal(k Key) bool {
	other, ok := k.(*hs256Key)
	if !ok {
		return false
	}
	return hk.exp.Equal(other.exp) && bytes.Equal(hk.secret, other.secret)
}

func (hk *hs256Key) String() string {
	return fmt.Sprintf(
		"Key{Alg: %s, Exp: %s, Secret: (%d bytes)}",
		hk.Alg(), hk.exp.Format(time.RFC3339), len(hk.secret),
	)
}
