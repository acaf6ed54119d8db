package hash

// Hash produces a keyed digest of a value and checks values against it.
type Hash interface {
	Hash(str string) ([]byte, error)
	Verify(hashed, str string) bool
}
