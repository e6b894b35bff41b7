// Package ledger is the deterministic host ledger the bridge programs run on.
//
// Every request runs inside a Txn: reads see committed state plus the
// request's own writes, and Commit lands every write in one atomic batch.
// A Txn that is not committed leaves no trace. The package also implements
// the sub-ledger services programs consume: unit transfers and mints, native
// balance transfers, descriptive metadata, and program-owned records.
package ledger

import (
	"errors"
	"fmt"

	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
	"NftBridge/internal/storage"
)

// Well-known identities of the built-in sub-ledger programs.
var (
	// TokenProgram owns asset and holding accounts.
	TokenProgram = derive.ProgramID("token")

	// MetadataProgram owns metadata and edition accounts.
	MetadataProgram = derive.ProgramID("metadata")
)

var (
	ErrAccountNotFound   = errs.NotFound("account not found")
	ErrWrongKind         = errs.Malformed("account has an incompatible shape")
	ErrUnauthorized      = errs.Authority("authority does not match the required signer")
	ErrMissingSignature  = errs.Authority("required signature missing")
	ErrInsufficientUnits = errs.Invariant("insufficient units in holding")
	ErrInsufficientFunds = errs.Invariant("insufficient native balance")
	ErrSupplyExceeded    = errs.Invariant("mint would exceed the asset's max supply")
	ErrAssetMismatch     = errs.Malformed("holding is bound to a different asset")
	ErrZeroAmount        = errs.Malformed("amount must be positive")
	ErrOverflow          = errs.Invariant("arithmetic overflow")

	// ErrFinished is returned when a committed or discarded Txn is used again.
	ErrFinished = errors.New("transaction already finished")

	// ErrReadOnly is returned when a view is committed.
	ErrReadOnly = errors.New("read-only transaction")
)

// Ledger is the committed account state.
type Ledger struct {
	db *storage.Storage
}

// New creates a ledger over db.
func New(db *storage.Storage) *Ledger {
	return &Ledger{db: db}
}

// Storage returns the underlying store.
func (l *Ledger) Storage() *storage.Storage {
	return l.db
}

// Begin opens a transaction executed by program. signers are the addresses
// whose signatures were verified for the request; the first is the sender.
func (l *Ledger) Begin(program derive.Address, signers ...derive.Address) *Txn {
	return &Txn{
		db:      l.db,
		program: program,
		signers: append([]derive.Address(nil), signers...),
		writes:  make(map[derive.Address]*Account),
	}
}

// View opens a read-only transaction with no program and no signers.
func (l *Ledger) View() *Txn {
	t := l.Begin(derive.Address{})
	t.readOnly = true
	return t
}

// Account returns a committed account, or ErrAccountNotFound.
func (l *Ledger) Account(addr derive.Address) (*Account, error) {
	acc, err := loadCommitted(l.db, addr)
	if err != nil {
		return nil, err
	}

	if acc == nil {
		return nil, fmt.Errorf("account %s:\n%w", addr.Short(), ErrAccountNotFound)
	}

	return acc, nil
}

// loadCommitted reads and decodes an account from storage; nil if absent.
func loadCommitted(db *storage.Storage, addr derive.Address) (*Account, error) {
	data, err := db.Get(addr[:])
	if err != nil {
		return nil, fmt.Errorf("read account %s:\n%w", addr.Short(), err)
	}

	if data == nil {
		return nil, nil
	}

	acc, err := DecodeAccount(data)
	if err != nil {
		return nil, fmt.Errorf("decode account %s:\n%w", addr.Short(), err)
	}

	return acc, nil
}

// IsAccountKey reports whether a storage key holds an account.
// Accounts are stored under their raw 32-byte address; other data uses short prefixes.
func IsAccountKey(key []byte) bool {
	return len(key) == derive.AddressSize
}
