package ledger

import (
	"fmt"

	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
)

// InitRecord creates a record owned by the executing program at the derived
// address proven by at. An existing record is left untouched and created is false.
func (t *Txn) InitRecord(at derive.Authority, data []byte) (created bool, err error) {
	acc, existing, err := t.prepareRecord(at)
	if err != nil {
		return false, err
	}

	if existing {
		return false, nil
	}

	acc.Data = append([]byte(nil), data...)
	t.store(acc)

	return true, nil
}

// WriteRecord creates or overwrites a record owned by the executing program.
func (t *Txn) WriteRecord(at derive.Authority, data []byte) error {
	acc, _, err := t.prepareRecord(at)
	if err != nil {
		return err
	}

	acc.Data = append([]byte(nil), data...)
	t.store(acc)

	return nil
}

func (t *Txn) prepareRecord(at derive.Authority) (*Account, bool, error) {
	if !at.Derived() {
		return nil, false, errs.Malformed("record %s must live at a program-derived address", at.Address().Short())
	}

	if err := t.authorizeAddress(at); err != nil {
		return nil, false, fmt.Errorf("record %s:\n%w", at.Address().Short(), err)
	}

	return t.allocate(at.Address(), KindRecord, t.program)
}

// Record returns the owner and data of a record account.
func (t *Txn) Record(addr derive.Address) (owner derive.Address, data []byte, err error) {
	acc, err := t.loadKind(addr, KindRecord, "record")
	if err != nil {
		return derive.Address{}, nil, err
	}

	return acc.Owner, acc.Data, nil
}
