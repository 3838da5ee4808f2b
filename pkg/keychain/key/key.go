// Package key defines signing keys of tokens and policies to issue them.
package key

import (
	"time"
)

type Key interface {
	// Name of the algorithm
	Alg() string

	// Expiration time of the key
	Exp() time.Time

	// Key to sign messages.
	ToSign() any

	// Key to verify messages.
	ToVerify() any

	// Equal returns true if the key is equal to the other key
	Equal(k Key) bool

	// String describes the key without its secrets.
	String() string
}

type KeyPolicy interface {
	// Issue a new key
	Issue() (Key, error)
}
