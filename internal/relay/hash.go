package relay

import (
	"crypto/rand"

	"github.com/cespare/xxhash/v2"
)

// addressSalt randomizes address hashes per process so hosts cannot build
// a reverse table of client addresses across restarts.
var addressSalt = func() []byte {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		panic(err)
	}
	return salt
}()

// hashAddress derives the opaque per-client identifier shared with hosts.
// The raw remote address never crosses the wire.
func hashAddress(addr string) uint64 {
	d := xxhash.New()
	_, _ = d.Write(addressSalt)
	_, _ = d.WriteString(addr)
	return d.Sum64()
}
