// Package bridge implements the escrow side of the NFT bridge: locking a local
// NFT into a program-controlled custody slot when it leaves for a foreign
// chain, and releasing it when an authorized return instruction arrives.
//
// Custody slots are holdings owned by the program's EscrowRoot address. Only
// the root's derived authority can move units out of them.
package bridge

import (
	"fmt"

	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
	"NftBridge/internal/ledger"
	"NftBridge/internal/records"
)

// Namespace tags, always the first seed.
const (
	rootTag    = "bridge"
	custodyTag = "custody"
	infoTag    = "nft_info"
	receiptTag = "bridge_tx"
)

var (
	ErrNotAdmin      = errs.Authority("sender is not the bridge administrator")
	ErrRootMissing   = errs.NotFound("escrow root is not initialized")
	ErrSlotOccupied  = errs.Invariant("custody slot already holds a unit")
	ErrSlotEmpty     = errs.Invariant("custody slot is empty")
	ErrNotUnitSupply = errs.Malformed("asset is not a unit-supply asset")
	ErrReplay        = errs.Invariant("bridge transaction already executed")
	ErrFeePayee      = errs.Authority("fee payee is not the configured fee collector")
)

// Config holds the deployment parameters of an escrow.
type Config struct {
	Admin        derive.Address // Admin signs root-level requests
	FeeCollector derive.Address // FeeCollector, when set, is the only accepted fee payee
}

// Key identifies one foreign NFT.
type Key struct {
	OriginChain    string
	OriginContract string
	AssetID        uint64
}

func (k Key) validate() error {
	if k.OriginChain == "" || k.OriginContract == "" {
		return errs.Malformed("origin chain and contract are required")
	}
	return nil
}

func (k Key) seeds(tag string) [][]byte {
	return [][]byte{[]byte(tag), derive.U64Seed(k.AssetID), []byte(k.OriginChain), []byte(k.OriginContract)}
}

// String formats the key for logs.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s#%d", k.OriginChain, k.OriginContract, k.AssetID)
}

// Escrow is the bridge escrow of one program deployment.
// It keeps no state between requests; every call re-derives and re-reads.
type Escrow struct {
	program derive.Address
	cfg     Config
}

// New creates the escrow of program.
func New(program derive.Address, cfg Config) *Escrow {
	return &Escrow{program: program, cfg: cfg}
}

// Program returns the program identity.
func (e *Escrow) Program() derive.Address {
	return e.program
}

// Config returns the deployment parameters.
func (e *Escrow) Config() Config {
	return e.cfg
}

// RootAddress returns the EscrowRoot address.
func (e *Escrow) RootAddress() derive.Address {
	return derive.MustFind(e.program, []byte(rootTag))
}

// SlotAddress returns the custody slot of k.
func (e *Escrow) SlotAddress(k Key) (derive.Address, error) {
	return derive.FindAddress(e.program, k.seeds(custodyTag)...)
}

// RecordAddress returns the NftRecord of k.
func (e *Escrow) RecordAddress(k Key) (derive.Address, error) {
	return derive.FindAddress(e.program, k.seeds(infoTag)...)
}

// ReceiptAddress returns the unlock receipt of a bridge transaction id.
func (e *Escrow) ReceiptAddress(bridgeTxID string) derive.Address {
	return derive.MustFind(e.program, []byte(receiptTag), derive.HashSeed([]byte(bridgeTxID)))
}

func (e *Escrow) rootAuthority() derive.Authority {
	_, auth, _ := derive.Derive(e.program, []byte(rootTag))
	return auth
}

func (e *Escrow) requireAdmin(txn *ledger.Txn) error {
	if txn.Sender() != e.cfg.Admin {
		return fmt.Errorf("sender %s:\n%w", txn.Sender().Short(), ErrNotAdmin)
	}
	return nil
}

func (e *Escrow) requireRoot(txn *ledger.Txn) error {
	var root records.EscrowRoot

	err := records.Load(txn, e.program, e.RootAddress(), &root)
	if errs.Is(err, errs.KindNotFound) {
		return ErrRootMissing
	}

	return err
}

// InitializeEscrowRoot creates the EscrowRoot if absent. Only the
// administrator may call it; a repeat call changes nothing.
func (e *Escrow) InitializeEscrowRoot(txn *ledger.Txn) (created bool, err error) {
	if err := e.requireAdmin(txn); err != nil {
		return false, err
	}

	created, err = records.Init(txn, e.rootAuthority(), &records.EscrowRoot{})
	if err != nil {
		return false, err
	}

	if created {
		txn.Logf("escrow root initialized: %s", e.RootAddress())
	}

	return created, nil
}

// LockArgs are the arguments of a lock request.
type LockArgs struct {
	OriginChain    string
	OriginContract string
	AssetID        uint64
	FeeAmount      uint64
	CollectionID   string
	SrcAddress     string
	DstChain       string
	DstAddress     string
	SourceHolding  derive.Address // SourceHolding is the sender's holding of the NFT
	FeePayer       derive.Address // FeePayer is a system account or a holding of the fee asset
	FeePayee       derive.Address
}

// Key returns the NFT key of the request.
func (a *LockArgs) Key() Key {
	return Key{OriginChain: a.OriginChain, OriginContract: a.OriginContract, AssetID: a.AssetID}
}

// Lock moves the sender's unit of an NFT into its custody slot, charges the
// optional fee, and records the local asset reference.
func (e *Escrow) Lock(txn *ledger.Txn, args LockArgs) (*records.NftRecord, error) {
	key := args.Key()
	if err := key.validate(); err != nil {
		return nil, err
	}

	if err := e.requireRoot(txn); err != nil {
		return nil, err
	}

	src, err := txn.Holding(args.SourceHolding)
	if err != nil {
		return nil, fmt.Errorf("source holding:\n%w", err)
	}

	asset, err := txn.Asset(src.Asset)
	if err != nil {
		return nil, err
	}

	if asset.Decimals != 0 || asset.MaxSupply != 1 {
		return nil, fmt.Errorf("asset %s:\n%w", asset.Address.Short(), ErrNotUnitSupply)
	}

	slot, slotAuth, err := derive.Derive(e.program, key.seeds(custodyTag)...)
	if err != nil {
		return nil, err
	}

	if _, err := txn.InitHolding(slotAuth, asset.Address, e.RootAddress()); err != nil {
		return nil, fmt.Errorf("custody slot %s:\n%w", key, err)
	}

	held, err := txn.Holding(slot)
	if err != nil {
		return nil, err
	}

	if held.Units > 0 {
		return nil, fmt.Errorf("lock %s:\n%w", key, ErrSlotOccupied)
	}

	if err := txn.Transfer(args.SourceHolding, slot, derive.Signer(txn.Sender()), 1); err != nil {
		return nil, fmt.Errorf("move %s into custody:\n%w", key, err)
	}

	if err := e.chargeFee(txn, args); err != nil {
		return nil, fmt.Errorf("lock fee:\n%w", err)
	}

	_, infoAuth, err := derive.Derive(e.program, key.seeds(infoTag)...)
	if err != nil {
		return nil, err
	}

	rec := &records.NftRecord{AssetRef: asset.Address}
	if err := records.Save(txn, infoAuth, rec); err != nil {
		return nil, err
	}

	txn.Logf("locked %s asset=%s", key, asset.Address)
	txn.Logf("collection=%s src=%s dst_chain=%s dst=%s fee=%d",
		args.CollectionID, args.SrcAddress, args.DstChain, args.DstAddress, args.FeeAmount)

	return rec, nil
}

// chargeFee transfers the lock fee. A holding payer pays in its asset under
// its owner's signature; any other payer pays native balance under its own.
func (e *Escrow) chargeFee(txn *ledger.Txn, args LockArgs) error {
	if args.FeeAmount == 0 {
		return nil
	}

	payer, err := txn.Load(args.FeePayer)
	if err != nil {
		return err
	}

	if payer == nil {
		return fmt.Errorf("fee payer %s:\n%w", args.FeePayer.Short(), ledger.ErrAccountNotFound)
	}

	if payer.Kind == ledger.KindHolding {
		from, err := txn.Holding(args.FeePayer)
		if err != nil {
			return err
		}

		to, err := txn.Holding(args.FeePayee)
		if err != nil {
			return fmt.Errorf("fee payee:\n%w", err)
		}

		if err := e.checkPayee(args.FeePayee, to.Owner); err != nil {
			return err
		}

		return txn.Transfer(args.FeePayer, args.FeePayee, derive.Signer(from.Owner), args.FeeAmount)
	}

	if err := e.checkPayee(args.FeePayee, args.FeePayee); err != nil {
		return err
	}

	return txn.TransferNative(args.FeePayer, args.FeePayee, derive.Signer(args.FeePayer), args.FeeAmount)
}

func (e *Escrow) checkPayee(payee, owner derive.Address) error {
	c := e.cfg.FeeCollector
	if c.IsZero() || payee == c || owner == c {
		return nil
	}
	return fmt.Errorf("payee %s:\n%w", payee.Short(), ErrFeePayee)
}

// UnlockArgs are the arguments of an unlock request.
type UnlockArgs struct {
	OriginChain    string
	OriginContract string
	AssetID        uint64
	CollectionID   string
	SrcChain       string
	SrcAddress     string
	DstAddress     string
	BridgeTxID     string
	Receiver       derive.Address // Receiver owns the destination holding
}

// Key returns the NFT key of the request.
func (a *UnlockArgs) Key() Key {
	return Key{OriginChain: a.OriginChain, OriginContract: a.OriginContract, AssetID: a.AssetID}
}

// Unlock releases a custodied unit to the receiver's associated holding,
// authorized only by the EscrowRoot. A non-empty bridge transaction id can be
// executed once.
func (e *Escrow) Unlock(txn *ledger.Txn, args UnlockArgs) (derive.Address, error) {
	if err := e.requireAdmin(txn); err != nil {
		return derive.Address{}, err
	}

	key := args.Key()
	if err := key.validate(); err != nil {
		return derive.Address{}, err
	}

	if args.Receiver.IsZero() {
		return derive.Address{}, errs.Malformed("unlock %s: receiver is required", key)
	}

	if err := e.requireRoot(txn); err != nil {
		return derive.Address{}, err
	}

	slot, err := e.SlotAddress(key)
	if err != nil {
		return derive.Address{}, err
	}

	held, err := txn.Holding(slot)
	if errs.Is(err, errs.KindNotFound) {
		return derive.Address{}, fmt.Errorf("unlock %s:\n%w", key, ErrSlotEmpty)
	}
	if err != nil {
		return derive.Address{}, err
	}

	if held.Units == 0 {
		return derive.Address{}, fmt.Errorf("unlock %s:\n%w", key, ErrSlotEmpty)
	}

	if args.BridgeTxID != "" {
		_, receiptAuth, err := derive.Derive(e.program, []byte(receiptTag), derive.HashSeed([]byte(args.BridgeTxID)))
		if err != nil {
			return derive.Address{}, err
		}

		created, err := records.Init(txn, receiptAuth, &records.UnlockReceipt{
			BridgeTxID: args.BridgeTxID,
			AssetRef:   held.Asset,
			Receiver:   args.Receiver,
		})
		if err != nil {
			return derive.Address{}, err
		}

		if !created {
			return derive.Address{}, fmt.Errorf("bridge tx %q:\n%w", args.BridgeTxID, ErrReplay)
		}
	}

	dst, err := txn.EnsureAssociatedHolding(args.Receiver, held.Asset)
	if err != nil {
		return derive.Address{}, fmt.Errorf("destination holding:\n%w", err)
	}

	if err := txn.Transfer(slot, dst, e.rootAuthority(), 1); err != nil {
		return derive.Address{}, fmt.Errorf("release %s:\n%w", key, err)
	}

	txn.Logf("unlocked %s asset=%s receiver=%s", key, held.Asset, args.Receiver)
	txn.Logf("collection=%s src_chain=%s src=%s dst=%s bridge_tx=%s",
		args.CollectionID, args.SrcChain, args.SrcAddress, args.DstAddress, args.BridgeTxID)

	return dst, nil
}

// RecordAssetInfo binds key to a local asset, overwriting any previous binding.
func (e *Escrow) RecordAssetInfo(txn *ledger.Txn, key Key, assetRef derive.Address) error {
	if err := e.requireAdmin(txn); err != nil {
		return err
	}

	if err := key.validate(); err != nil {
		return err
	}

	_, infoAuth, err := derive.Derive(e.program, key.seeds(infoTag)...)
	if err != nil {
		return err
	}

	if err := records.Save(txn, infoAuth, &records.NftRecord{AssetRef: assetRef}); err != nil {
		return err
	}

	txn.Logf("recorded %s asset=%s", key, assetRef)

	return nil
}

// State is the custody state of one NFT key.
type State string

const (
	StateUnlocked State = "unlocked"
	StateLocked   State = "locked"
)

// Custody describes the custody slot and record of one key.
type Custody struct {
	Key    Key
	Slot   derive.Address
	Asset  derive.Address // Asset is zero until the slot exists
	Units  uint64
	Record *records.NftRecord // Record is nil until a lock or RecordAssetInfo
	State  State
}

// Custody reads the custody state of key.
func (e *Escrow) Custody(txn *ledger.Txn, key Key) (*Custody, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}

	slot, err := e.SlotAddress(key)
	if err != nil {
		return nil, err
	}

	c := &Custody{Key: key, Slot: slot, State: StateUnlocked}

	held, err := txn.Holding(slot)
	switch {
	case err == nil:
		c.Asset = held.Asset
		c.Units = held.Units
		if held.Units > 0 {
			c.State = StateLocked
		}
	case !errs.Is(err, errs.KindNotFound):
		return nil, err
	}

	info, err := e.RecordAddress(key)
	if err != nil {
		return nil, err
	}

	var rec records.NftRecord
	err = records.Load(txn, e.program, info, &rec)
	switch {
	case err == nil:
		c.Record = &rec
	case !errs.Is(err, errs.KindNotFound):
		return nil, err
	}

	return c, nil
}
