// Package crypto defines the hash primitive used by the runtime.
//
// The runtime only needs a collision-resistant hash over a sequence of
// byte arrays with domain-tag framing. The factory abstraction follows
// the usual pattern so that the algorithm can be swapped without touching
// the callers.
package crypto

import (
	"hash"
)

// HashFactory is an interface to produce a hash digest.
type HashFactory interface {
	New() hash.Hash
}

// DomainHash returns the digest of the chunks concatenated in order after
// the domain tag. The tag separates the usages of the same input bytes
// across domains.
func DomainHash(factory HashFactory, tag string, chunks ...[]byte) []byte {
	h := factory.New()

	// hash.Hash.Write never returns an error.
	h.Write([]byte(tag))
	for _, chunk := range chunks {
		h.Write(chunk)
	}

	return h.Sum(nil)
}
