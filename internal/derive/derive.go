// Package derive computes program-derived addresses and the authority proofs
// that let a program act for those addresses without holding a private key.
//
// An address is blake3 over the length-prefixed seeds, the program identity
// and a fixed marker. The first seed is always a namespace tag, so two
// entities that share the remaining seeds still land on distinct addresses.
package derive

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"NftBridge/internal/errs"
)

const (
	// MaxSeeds is the maximum number of seeds accepted by Derive.
	MaxSeeds = 16

	// MaxSeedLen is the maximum length of a single seed in bytes.
	MaxSeedLen = 64

	// AddressSize is the size of every ledger address.
	AddressSize = 32

	// derivedMarker terminates the hash input of every derived address.
	derivedMarker = "ProgramDerivedAddress"

	// programMarker prefixes well-known program identities.
	programMarker = "program:"
)

// Address is a 32-byte ledger address: an Ed25519 public key, a program
// identity or a derived address.
type Address [AddressSize]byte

// String returns the lowercase hex encoding.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Short returns the first 8 bytes in hex, for logs.
func (a Address) Short() string {
	return hex.EncodeToString(a[:8])
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// ParseAddress decodes a 64-character hex address.
func ParseAddress(s string) (Address, error) {
	var a Address

	b, err := hex.DecodeString(s)
	if err != nil {
		return a, errs.Malformed("invalid address %q: %v", s, err)
	}

	if len(b) != AddressSize {
		return a, errs.Malformed("invalid address length: got %d, want %d", len(b), AddressSize)
	}

	copy(a[:], b)

	return a, nil
}

// AddressFromBytes copies a 32-byte slice into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, errs.Malformed("invalid address length: got %d, want %d", len(b), AddressSize)
	}

	copy(a[:], b)

	return a, nil
}

// ProgramID returns the well-known identity of a named program.
func ProgramID(name string) Address {
	return blake3.Sum256([]byte(programMarker + name))
}

// U64Seed encodes v as a fixed-width little-endian seed.
func U64Seed(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

// HashSeed compresses an arbitrary-length value into a 32-byte seed.
func HashSeed(v []byte) []byte {
	h := blake3.Sum256(v)
	return h[:]
}

// Derive computes the address of seeds under program and the authority
// proof for it. It fails with a malformed-input error when the seeds exceed
// MaxSeeds or MaxSeedLen.
func Derive(program Address, seeds ...[]byte) (Address, Authority, error) {
	addr, err := FindAddress(program, seeds...)
	if err != nil {
		return Address{}, Authority{}, err
	}

	auth := Authority{
		address: addr,
		program: program,
		seeds:   cloneSeeds(seeds),
		derived: true,
	}

	return addr, auth, nil
}

// FindAddress computes only the address of seeds under program.
func FindAddress(program Address, seeds ...[]byte) (Address, error) {
	if err := checkSeeds(seeds); err != nil {
		return Address{}, err
	}

	return hashSeeds(program, seeds), nil
}

// MustFind is FindAddress for seeds known to be within limits.
// It panics otherwise and is meant for package-level constants and tests.
func MustFind(program Address, seeds ...[]byte) Address {
	addr, err := FindAddress(program, seeds...)
	if err != nil {
		panic(err)
	}
	return addr
}

// checkSeeds enforces MaxSeeds and MaxSeedLen.
func checkSeeds(seeds [][]byte) error {
	if len(seeds) == 0 {
		return errs.Malformed("derive: at least one seed is required")
	}

	if len(seeds) > MaxSeeds {
		return errs.Malformed("derive: %d seeds exceeds limit of %d", len(seeds), MaxSeeds)
	}

	for i, s := range seeds {
		if len(s) > MaxSeedLen {
			return errs.Malformed("derive: seed %d is %d bytes, limit is %d", i, len(s), MaxSeedLen)
		}
	}

	return nil
}

// hashSeeds computes blake3(u32le(len) || seed ... || program || marker).
func hashSeeds(program Address, seeds [][]byte) Address {
	h := blake3.New()

	var lenBuf [4]byte
	for _, s := range seeds {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
		h.Write(lenBuf[:])
		h.Write(s)
	}

	h.Write(program[:])
	h.Write([]byte(derivedMarker))

	var out Address
	copy(out[:], h.Sum(nil))

	return out
}

func cloneSeeds(seeds [][]byte) [][]byte {
	out := make([][]byte, len(seeds))
	for i, s := range seeds {
		out[i] = append([]byte(nil), s...)
	}
	return out
}

// Authority proves the right to act for an address within one request.
//
// A derived authority is produced only by Derive; it carries the seeds so the
// ledger can re-derive the address and check that the executing program is
// the one it was derived under. A signer authority only names an address and
// is honored only if that address signed the request. The zero value
// authorizes nothing.
type Authority struct {
	address Address
	program Address
	seeds   [][]byte
	derived bool
}

// Signer returns an authority claiming that addr signed the current request.
func Signer(addr Address) Authority {
	return Authority{address: addr}
}

// Address returns the address this authority acts for.
func (a Authority) Address() Address {
	return a.address
}

// Program returns the program a derived authority belongs to, or the zero address.
func (a Authority) Program() Address {
	return a.program
}

// Derived reports whether the authority is a program-derived proof.
func (a Authority) Derived() bool {
	return a.derived
}

// IsZero reports whether the authority is the zero value.
func (a Authority) IsZero() bool {
	return a.address.IsZero() && !a.derived
}

// Verify reports whether a derived authority is valid for a request executed
// by program: its program must match and its seeds must reproduce its address.
func (a Authority) Verify(program Address) bool {
	if !a.derived || a.program != program {
		return false
	}

	return hashSeeds(a.program, a.seeds) == a.address
}

// String describes the authority for error messages.
func (a Authority) String() string {
	if a.derived {
		return fmt.Sprintf("derived(%s by %s)", a.address.Short(), a.program.Short())
	}
	return fmt.Sprintf("signer(%s)", a.address.Short())
}
