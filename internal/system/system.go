// Package system is the built-in program for native balances and locally
// issued assets: the faucet, plain transfers, and creating and minting the
// NFTs and fee coins that the bridge programs operate on.
package system

import (
	"fmt"

	"NftBridge/internal/borsh"
	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
	"NftBridge/internal/ledger"
	"NftBridge/internal/runtime"
)

// Function names of the system program.
const (
	FnMintNative     = "mint_native"
	FnTransferNative = "transfer_native"
	FnCreateAsset    = "create_asset"
	FnMintTo         = "mint_to"
	FnTransfer       = "transfer"
)

const assetTag = "asset"

// ErrNotAdmin is returned when a non-administrator calls the faucet.
var ErrNotAdmin = errs.Authority("sender is not the system administrator")

// Config holds the system program parameters.
type Config struct {
	Admin derive.Address // Admin may mint native balance
}

// NativeArgs are the arguments of mint_native and transfer_native.
type NativeArgs struct {
	To     derive.Address
	Amount uint64
}

func (a *NativeArgs) MarshalBorsh(w *borsh.Writer)   { w.Fixed32(a.To).U64(a.Amount) }
func (a *NativeArgs) UnmarshalBorsh(r *borsh.Reader) { a.To = r.Fixed32(); a.Amount = r.U64() }

// CreateAssetArgs are the arguments of create_asset. The asset lives at an
// address derived from the sender and Seed, and the sender is its mint authority.
type CreateAssetArgs struct {
	Seed      string
	Decimals  uint8
	MaxSupply uint64
}

func (a *CreateAssetArgs) MarshalBorsh(w *borsh.Writer) {
	w.String(a.Seed).U8(a.Decimals).U64(a.MaxSupply)
}

func (a *CreateAssetArgs) UnmarshalBorsh(r *borsh.Reader) {
	a.Seed = r.String()
	a.Decimals = r.U8()
	a.MaxSupply = r.U64()
}

// MintToArgs are the arguments of mint_to. Units go to Owner's associated holding.
type MintToArgs struct {
	Asset derive.Address
	Owner derive.Address
	Units uint64
}

func (a *MintToArgs) MarshalBorsh(w *borsh.Writer) {
	w.Fixed32(a.Asset).Fixed32(a.Owner).U64(a.Units)
}

func (a *MintToArgs) UnmarshalBorsh(r *borsh.Reader) {
	a.Asset = r.Fixed32()
	a.Owner = r.Fixed32()
	a.Units = r.U64()
}

// TransferArgs are the arguments of transfer: units of Asset move from the
// sender's associated holding to To's associated holding.
type TransferArgs struct {
	Asset derive.Address
	To    derive.Address
	Units uint64
}

func (a *TransferArgs) MarshalBorsh(w *borsh.Writer) {
	w.Fixed32(a.Asset).Fixed32(a.To).U64(a.Units)
}

func (a *TransferArgs) UnmarshalBorsh(r *borsh.Reader) {
	a.Asset = r.Fixed32()
	a.To = r.Fixed32()
	a.Units = r.U64()
}

// AssetAddress returns the address of an asset created by creator with seed.
func AssetAddress(program, creator derive.Address, seed string) (derive.Address, error) {
	return derive.FindAddress(program, []byte(assetTag), creator[:], []byte(seed))
}

// Program is the system program.
type Program struct {
	id   derive.Address
	name string
	cfg  Config
}

// NewProgram creates the system program registered under name.
func NewProgram(name string, cfg Config) *Program {
	return &Program{id: derive.ProgramID(name), name: name, cfg: cfg}
}

func (p *Program) ID() derive.Address { return p.id }

func (p *Program) Name() string { return p.name }

// Handlers returns the request handlers by function name.
func (p *Program) Handlers() map[string]runtime.Handler {
	return map[string]runtime.Handler{
		FnMintNative:     p.mintNative,
		FnTransferNative: p.transferNative,
		FnCreateAsset:    p.createAsset,
		FnMintTo:         p.mintTo,
		FnTransfer:       p.transfer,
	}
}

func decode(fn string, args []byte, v borsh.Unmarshaler) error {
	if err := borsh.Unmarshal(args, v); err != nil {
		return errs.Malformed("decode %s args: %v", fn, err)
	}
	return nil
}

func (p *Program) mintNative(txn *ledger.Txn, args []byte) error {
	if txn.Sender() != p.cfg.Admin {
		return fmt.Errorf("sender %s:\n%w", txn.Sender().Short(), ErrNotAdmin)
	}

	var a NativeArgs
	if err := decode(FnMintNative, args, &a); err != nil {
		return err
	}

	if err := txn.Credit(a.To, a.Amount); err != nil {
		return err
	}

	txn.Logf("minted %d native to %s", a.Amount, a.To)

	return nil
}

func (p *Program) transferNative(txn *ledger.Txn, args []byte) error {
	var a NativeArgs
	if err := decode(FnTransferNative, args, &a); err != nil {
		return err
	}

	sender := txn.Sender()

	return txn.TransferNative(sender, a.To, derive.Signer(sender), a.Amount)
}

func (p *Program) createAsset(txn *ledger.Txn, args []byte) error {
	var a CreateAssetArgs
	if err := decode(FnCreateAsset, args, &a); err != nil {
		return err
	}

	sender := txn.Sender()

	_, at, err := derive.Derive(p.id, []byte(assetTag), sender[:], []byte(a.Seed))
	if err != nil {
		return err
	}

	created, err := txn.CreateAsset(at, ledger.AssetSpec{
		Decimals:      a.Decimals,
		MaxSupply:     a.MaxSupply,
		MintAuthority: sender,
	})
	if err != nil {
		return err
	}

	if !created {
		return errs.Invariant("asset %s already exists", at.Address().Short())
	}

	txn.Logf("asset created: %s", at.Address())

	return nil
}

func (p *Program) mintTo(txn *ledger.Txn, args []byte) error {
	var a MintToArgs
	if err := decode(FnMintTo, args, &a); err != nil {
		return err
	}

	holding, err := txn.EnsureAssociatedHolding(a.Owner, a.Asset)
	if err != nil {
		return err
	}

	return txn.MintUnits(a.Asset, holding, derive.Signer(txn.Sender()), a.Units)
}

func (p *Program) transfer(txn *ledger.Txn, args []byte) error {
	var a TransferArgs
	if err := decode(FnTransfer, args, &a); err != nil {
		return err
	}

	sender := txn.Sender()
	from := ledger.AssociatedHolding(sender, a.Asset)

	to, err := txn.EnsureAssociatedHolding(a.To, a.Asset)
	if err != nil {
		return err
	}

	return txn.Transfer(from, to, derive.Signer(sender), a.Units)
}
