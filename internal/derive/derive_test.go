package derive

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/zeebo/blake3"

	"NftBridge/internal/errs"
)

var testProgram = ProgramID("test")

func TestDeriveDeterministic(t *testing.T) {
	a1, auth1, err := Derive(testProgram, []byte("custody"), U64Seed(7), []byte("ETH"), []byte("0xabc"))
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}

	a2, _, _ := Derive(testProgram, []byte("custody"), U64Seed(7), []byte("ETH"), []byte("0xabc"))

	if a1 != a2 {
		t.Error("same seeds must give the same address")
	}

	if auth1.Address() != a1 || !auth1.Derived() || auth1.Program() != testProgram {
		t.Errorf("authority does not describe the derived address: %s", auth1)
	}
}

// TestDeriveManual pins the hash layout.
func TestDeriveManual(t *testing.T) {
	seeds := [][]byte{[]byte("bridge")}

	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, 6)
	buf = append(buf, "bridge"...)
	buf = append(buf, testProgram[:]...)
	buf = append(buf, derivedMarker...)

	want := Address(blake3.Sum256(buf))

	got, err := FindAddress(testProgram, seeds...)
	if err != nil {
		t.Fatalf("FindAddress failed: %v", err)
	}

	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

// TestDeriveTagSeparation verifies distinct namespace tags never collide on the same remaining seeds.
func TestDeriveTagSeparation(t *testing.T) {
	rest := [][]byte{U64Seed(1), []byte("ETH"), []byte("0xabc")}

	slot := MustFind(testProgram, append([][]byte{[]byte("custody")}, rest...)...)
	info := MustFind(testProgram, append([][]byte{[]byte("nft_info")}, rest...)...)

	if slot == info {
		t.Error("custody slot and nft record must not share an address")
	}
}

// TestDeriveBoundaryAmbiguity verifies length prefixes keep ("ab","c") and ("a","bc") apart.
func TestDeriveBoundaryAmbiguity(t *testing.T) {
	a := MustFind(testProgram, []byte("ab"), []byte("c"))
	b := MustFind(testProgram, []byte("a"), []byte("bc"))

	if a == b {
		t.Error("seed boundaries must be part of the hash input")
	}
}

func TestDeriveProgramSeparation(t *testing.T) {
	a := MustFind(ProgramID("bridge"), []byte("bridge"))
	b := MustFind(ProgramID("collection"), []byte("bridge"))

	if a == b {
		t.Error("different programs must derive different addresses")
	}
}

func TestDeriveLimits(t *testing.T) {
	long := bytes.Repeat([]byte{'x'}, MaxSeedLen+1)
	if _, _, err := Derive(testProgram, []byte("tag"), long); !errs.Is(err, errs.KindMalformed) {
		t.Errorf("expected malformed error for long seed, got %v", err)
	}

	many := make([][]byte, MaxSeeds+1)
	for i := range many {
		many[i] = []byte{byte(i)}
	}
	if _, _, err := Derive(testProgram, many...); !errs.Is(err, errs.KindMalformed) {
		t.Errorf("expected malformed error for too many seeds, got %v", err)
	}

	if _, err := FindAddress(testProgram); !errs.Is(err, errs.KindMalformed) {
		t.Errorf("expected malformed error for no seeds, got %v", err)
	}

	exact := bytes.Repeat([]byte{'y'}, MaxSeedLen)
	if _, _, err := Derive(testProgram, exact); err != nil {
		t.Errorf("seed at limit should be accepted: %v", err)
	}
}

func TestAuthorityVerify(t *testing.T) {
	_, auth, _ := Derive(testProgram, []byte("bridge"))

	if !auth.Verify(testProgram) {
		t.Error("authority must verify under its own program")
	}

	if auth.Verify(ProgramID("other")) {
		t.Error("authority must not verify under another program")
	}

	if Signer(auth.Address()).Verify(testProgram) {
		t.Error("signer authority is never a derived proof")
	}

	var zero Authority
	if !zero.IsZero() || zero.Verify(testProgram) {
		t.Error("zero authority must authorize nothing")
	}
}

// TestAuthoritySeedsCopied verifies mutating caller seeds after Derive cannot alter the proof.
func TestAuthoritySeedsCopied(t *testing.T) {
	seed := []byte("bridge")
	_, auth, _ := Derive(testProgram, seed)

	seed[0] = 'X'

	if !auth.Verify(testProgram) {
		t.Error("proof must not alias caller seeds")
	}
}

func TestParseAddress(t *testing.T) {
	want := ProgramID("bridge")

	got, err := ParseAddress(want.String())
	if err != nil || got != want {
		t.Fatalf("ParseAddress round trip failed: %v", err)
	}

	if _, err := ParseAddress("abcd"); !errs.Is(err, errs.KindMalformed) {
		t.Errorf("expected malformed error, got %v", err)
	}

	if _, err := ParseAddress("zz"); err == nil {
		t.Error("expected error for non-hex input")
	}
}
