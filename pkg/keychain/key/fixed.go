package key

// PolicyFunc is a KeyPolicy made of a function.
type PolicyFunc func() (Key, error)

func (f PolicyFunc) Issue() (Key, error) {
	return f()
}

// Fixed issues k always, even if it is expired.
func Fixed(k Key) KeyPolicy {
	return PolicyFunc(func() (Key, error) { return k, nil })
}

// Failing never issues keys, and returns err instead.
func Failing(err error) KeyPolicy {
	return PolicyFunc(func() (Key, error) { return nil, err })
}
