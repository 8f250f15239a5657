package crypto

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"
)

func TestHashFactory_New(t *testing.T) {
	h := NewHashFactory(Sha256).New()
	require.Equal(t, sha256.New().Sum(nil), h.Sum(nil))

	h = NewHashFactory(Sha3_256).New()
	require.Equal(t, sha3.New256().Sum(nil), h.Sum(nil))

	require.Panics(t, func() {
		NewHashFactory(HashAlgorithm(99)).New()
	})
}

func TestDomainHash(t *testing.T) {
	factory := NewHashFactory(Sha256)

	h := sha256.New()
	h.Write([]byte("tag:"))
	h.Write([]byte("abc"))
	h.Write([]byte("def"))

	digest := DomainHash(factory, "tag:", []byte("abc"), []byte("def"))
	require.Equal(t, h.Sum(nil), digest)

	// The chunks are hashed as one concatenated stream.
	same := DomainHash(factory, "tag:", []byte("abcdef"))
	require.Equal(t, digest, same)

	other := DomainHash(factory, "other:", []byte("abcdef"))
	require.NotEqual(t, digest, other)

	empty := DomainHash(factory, "tag:")
	require.Len(t, empty, 32)
}
