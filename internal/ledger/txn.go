package ledger

import (
	"fmt"
	"sort"

	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
	"NftBridge/internal/storage"
)

// Txn is one request's view of the ledger.
// Writes are staged in an overlay and reach storage only on Commit.
// A Txn is not safe for concurrent use.
type Txn struct {
	db       *storage.Storage
	program  derive.Address
	signers  []derive.Address
	writes   map[derive.Address]*Account
	logs     []string
	readOnly bool
	done     bool
}

// Program returns the identity of the executing program.
func (t *Txn) Program() derive.Address {
	return t.program
}

// Sender returns the first signer, or the zero address.
func (t *Txn) Sender() derive.Address {
	if len(t.signers) == 0 {
		return derive.Address{}
	}
	return t.signers[0]
}

// Signers returns the verified signers of the request.
func (t *Txn) Signers() []derive.Address {
	return append([]derive.Address(nil), t.signers...)
}

// IsSigner reports whether addr signed the request.
func (t *Txn) IsSigner(addr derive.Address) bool {
	for _, s := range t.signers {
		if s == addr {
			return true
		}
	}
	return false
}

// Logf appends a line to the request log.
func (t *Txn) Logf(format string, args ...any) {
	t.logs = append(t.logs, fmt.Sprintf(format, args...))
}

// Logs returns the request log.
func (t *Txn) Logs() []string {
	return append([]string(nil), t.logs...)
}

// Pending returns the number of staged account writes.
func (t *Txn) Pending() int {
	return len(t.writes)
}

// Load returns a copy of an account as seen by this request, or nil if it
// does not exist. Mutating the copy has no effect until it is stored.
func (t *Txn) Load(addr derive.Address) (*Account, error) {
	if acc, ok := t.writes[addr]; ok {
		return acc.clone(), nil
	}

	return loadCommitted(t.db, addr)
}

// hasKind reports whether an account of kind exists at addr.
func (t *Txn) hasKind(addr derive.Address, kind Kind) (bool, error) {
	acc, err := t.Load(addr)
	return acc != nil && acc.Kind == kind, err
}

// loadKind loads an account that must exist with the given kind.
func (t *Txn) loadKind(addr derive.Address, kind Kind, what string) (*Account, error) {
	acc, err := t.Load(addr)
	if err != nil {
		return nil, err
	}

	if acc == nil {
		return nil, fmt.Errorf("%s %s:\n%w", what, addr.Short(), ErrAccountNotFound)
	}

	// a bare funded account is adopted by allocate, so it reads as absent
	if kind != KindSystem && acc.Kind == KindSystem && len(acc.Data) == 0 {
		return nil, fmt.Errorf("%s %s holds only a native balance:\n%w", what, addr.Short(), ErrAccountNotFound)
	}

	if acc.Kind != kind {
		return nil, fmt.Errorf("%s %s is a %s account:\n%w", what, addr.Short(), acc.Kind, ErrWrongKind)
	}

	return acc, nil
}

// allocate prepares an account of kind owned by owner at addr.
// A bare system account (native balance only) is adopted and keeps its
// balance. existing is true when a compatible account is already there.
func (t *Txn) allocate(addr derive.Address, kind Kind, owner derive.Address) (acc *Account, existing bool, err error) {
	acc, err = t.Load(addr)
	if err != nil {
		return nil, false, err
	}

	switch {
	case acc == nil:
		return &Account{Address: addr, Owner: owner, Kind: kind}, false, nil

	case acc.Kind == KindSystem && len(acc.Data) == 0:
		acc.Kind = kind
		acc.Owner = owner
		return acc, false, nil

	case acc.Kind == kind && acc.Owner == owner:
		return acc, true, nil

	default:
		return nil, false, fmt.Errorf("allocate %s %s over %s account:\n%w", kind, addr.Short(), acc.Kind, ErrWrongKind)
	}
}

// store stages acc. The version is bumped once per request.
func (t *Txn) store(acc *Account) {
	if _, staged := t.writes[acc.Address]; !staged {
		acc.Version++
	}

	t.writes[acc.Address] = acc.clone()
}

// authorize checks that auth may act for owner in this request.
func (t *Txn) authorize(owner derive.Address, auth derive.Authority) error {
	if auth.Address() != owner {
		return fmt.Errorf("%s cannot act for %s:\n%w", auth, owner.Short(), ErrUnauthorized)
	}

	return t.authorizeAddress(auth)
}

// authorizeAddress checks that auth is a valid proof for its own address:
// a derived authority must belong to the executing program, a signer
// authority must have signed the request.
func (t *Txn) authorizeAddress(auth derive.Authority) error {
	if auth.Derived() {
		if !auth.Verify(t.program) {
			return errs.Authority("derived authority %s is not valid for program %s", auth, t.program.Short())
		}
		return nil
	}

	if auth.IsZero() {
		return errs.Authority("missing authority")
	}

	if !t.IsSigner(auth.Address()) {
		return fmt.Errorf("%s:\n%w", auth, ErrMissingSignature)
	}

	return nil
}

// Commit atomically writes every staged account plus extra writes.
// The Txn cannot be used afterwards.
func (t *Txn) Commit(extra ...storage.Write) error {
	if t.readOnly {
		return ErrReadOnly
	}

	if t.done {
		return ErrFinished
	}

	t.done = true

	addrs := make([]derive.Address, 0, len(t.writes))
	for addr := range t.writes {
		addrs = append(addrs, addr)
	}

	// deterministic batch order
	sort.Slice(addrs, func(i, j int) bool {
		return string(addrs[i][:]) < string(addrs[j][:])
	})

	batch := make([]storage.Write, 0, len(addrs)+len(extra))
	for _, addr := range addrs {
		key := addr
		batch = append(batch, storage.Write{Key: key[:], Value: encodeAccount(t.writes[addr])})
	}

	batch = append(batch, extra...)

	if err := t.db.Apply(batch); err != nil {
		return fmt.Errorf("commit %d writes:\n%w", len(batch), err)
	}

	return nil
}

// Discard drops every staged write.
func (t *Txn) Discard() {
	t.done = true
	t.writes = make(map[derive.Address]*Account)
}
