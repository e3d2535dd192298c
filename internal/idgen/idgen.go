// Package idgen provides the correlation-id generator used to tag
// invoke calls. The generator is an external collaborator with a
// collision rate below 10⁻⁹ per invoke family; this package is that
// seam — callers may supply their own Generator, and eventkit's
// default is backed by github.com/google/uuid.
package idgen

import "github.com/google/uuid"

// Generator produces short, effectively-unique correlation ids.
type Generator interface {
	NewID() string
}

// Default is backed by a UUIDv4, hex-encoded and truncated to 16
// characters (64 bits of entropy — well under the 10⁻⁹ collision target
// for any realistic number of concurrent in-flight invocations on one
// family).
type Default struct{}

func (Default) NewID() string {
	id := uuid.New()
	return encode(id[:])[:16]
}

const hextable = "0123456789abcdef"

func encode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}
