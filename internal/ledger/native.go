package ledger

import (
	"fmt"
	"math"

	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
)

// Balance returns the native balance at addr; zero if the account is absent.
func (t *Txn) Balance(addr derive.Address) (uint64, error) {
	acc, err := t.Load(addr)
	if err != nil || acc == nil {
		return 0, err
	}
	return acc.Balance, nil
}

// TransferNative moves native balance from a system account to any address.
// The destination is created as a system account if absent.
func (t *Txn) TransferNative(from, to derive.Address, auth derive.Authority, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	src, err := t.loadKind(from, KindSystem, "payer")
	if err != nil {
		return err
	}

	if err := t.authorize(from, auth); err != nil {
		return fmt.Errorf("native transfer from %s:\n%w", from.Short(), err)
	}

	if src.Balance < amount {
		return fmt.Errorf("account %s has %d, needs %d:\n%w", from.Short(), src.Balance, amount, ErrInsufficientFunds)
	}

	if from == to {
		return nil
	}

	src.Balance -= amount
	t.store(src)

	return t.Credit(to, amount)
}

// Credit adds amount to the native balance at addr, creating a system account if absent.
// Callers are responsible for gating who may credit.
func (t *Txn) Credit(addr derive.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	acc, err := t.Load(addr)
	if err != nil {
		return err
	}

	if acc == nil {
		acc = &Account{Address: addr, Kind: KindSystem}
	}

	if acc.Balance > math.MaxUint64-amount {
		return errs.Invariant("balance of %s would overflow", addr.Short())
	}

	acc.Balance += amount
	t.store(acc)

	return nil
}
