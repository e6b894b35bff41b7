// Package records stores typed program state in ledger record accounts.
//
// Each record is Borsh-encoded behind an 8-byte discriminator derived from
// its type name, so an account written as one type can never be read back as
// another.
package records

import (
	"bytes"
	"fmt"

	"github.com/zeebo/blake3"

	"NftBridge/internal/borsh"
	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
	"NftBridge/internal/ledger"
)

// DiscriminatorSize is the length of the type tag prefixing every record.
const DiscriminatorSize = 8

// ErrShapeMismatch is returned when an account does not hold the expected record type.
var ErrShapeMismatch = errs.Malformed("incompatible record shape")

// Record is a typed, Borsh-encodable program record.
type Record interface {
	// RecordName is the stable type name hashed into the discriminator.
	RecordName() string
	MarshalBorsh(w *borsh.Writer)
	UnmarshalBorsh(r *borsh.Reader)
}

// Discriminator returns the type tag of a record name.
func Discriminator(name string) [DiscriminatorSize]byte {
	var d [DiscriminatorSize]byte
	h := blake3.Sum256([]byte("account:" + name))
	copy(d[:], h[:DiscriminatorSize])
	return d
}

// Encode serializes rec with its discriminator.
func Encode(rec Record) []byte {
	d := Discriminator(rec.RecordName())

	w := borsh.NewWriter(64)
	w.Raw(d[:])
	rec.MarshalBorsh(w)

	return w.Finish()
}

// Decode parses data written by Encode into rec.
func Decode(data []byte, rec Record) error {
	d := Discriminator(rec.RecordName())

	if len(data) < DiscriminatorSize || !bytes.Equal(data[:DiscriminatorSize], d[:]) {
		return fmt.Errorf("want %s:\n%w", rec.RecordName(), ErrShapeMismatch)
	}

	r := borsh.NewReader(data[DiscriminatorSize:])
	rec.UnmarshalBorsh(r)

	if err := r.Finish(); err != nil {
		return errs.Malformed("decode %s: %v", rec.RecordName(), err)
	}

	return nil
}

// Init creates rec at the derived address if nothing is there yet.
// An existing record of the same type is left untouched.
func Init(txn *ledger.Txn, at derive.Authority, rec Record) (created bool, err error) {
	created, err = txn.InitRecord(at, Encode(rec))
	if err != nil {
		return false, fmt.Errorf("init %s:\n%w", rec.RecordName(), err)
	}

	if !created {
		if err := check(txn, at.Address(), rec.RecordName()); err != nil {
			return false, err
		}
	}

	return created, nil
}

// Save creates or overwrites rec at the derived address.
// An existing record must hold the same record type; a bare funded account
// is adopted.
func Save(txn *ledger.Txn, at derive.Authority, rec Record) error {
	acc, err := txn.Load(at.Address())
	if err != nil {
		return err
	}

	if acc != nil && acc.Kind == ledger.KindRecord {
		if err := check(txn, at.Address(), rec.RecordName()); err != nil {
			return err
		}
	}

	if err := txn.WriteRecord(at, Encode(rec)); err != nil {
		return fmt.Errorf("save %s:\n%w", rec.RecordName(), err)
	}

	return nil
}

// Load reads the record at addr, which must be owned by program.
func Load(txn *ledger.Txn, program, addr derive.Address, rec Record) error {
	owner, data, err := txn.Record(addr)
	if err != nil {
		return fmt.Errorf("load %s:\n%w", rec.RecordName(), err)
	}

	if owner != program {
		return fmt.Errorf("%s %s is owned by %s:\n%w", rec.RecordName(), addr.Short(), owner.Short(), ErrShapeMismatch)
	}

	if err := Decode(data, rec); err != nil {
		return fmt.Errorf("%s:\n%w", addr.Short(), err)
	}

	return nil
}

// check verifies the discriminator of an existing record.
func check(txn *ledger.Txn, addr derive.Address, name string) error {
	_, data, err := txn.Record(addr)
	if err != nil {
		return err
	}

	d := Discriminator(name)
	if len(data) < DiscriminatorSize || !bytes.Equal(data[:DiscriminatorSize], d[:]) {
		return fmt.Errorf("%s at %s:\n%w", name, addr.Short(), ErrShapeMismatch)
	}

	return nil
}
