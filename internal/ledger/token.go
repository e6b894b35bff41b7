package ledger

import (
	"fmt"
	"math"

	"NftBridge/internal/borsh"
	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
)

// Asset is the definition of a fungible or unit-supply asset.
type Asset struct {
	Address         derive.Address
	Supply          uint64
	MaxSupply       uint64 // MaxSupply bounds Supply; zero means unbounded
	Decimals        uint8
	MintAuthority   *derive.Address // MintAuthority is nil once minting is disabled
	FreezeAuthority *derive.Address
}

// AssetSpec describes an asset to create.
type AssetSpec struct {
	Decimals        uint8
	MaxSupply       uint64
	MintAuthority   derive.Address
	FreezeAuthority *derive.Address
}

// Holding records how many units of one asset an owner holds.
type Holding struct {
	Address derive.Address
	Asset   derive.Address
	Owner   derive.Address
	Units   uint64
}

func writeOptAddr(w *borsh.Writer, a *derive.Address) {
	w.Option(a != nil)
	if a != nil {
		w.Fixed32(*a)
	}
}

func readOptAddr(r *borsh.Reader) *derive.Address {
	if !r.Option() {
		return nil
	}
	a := derive.Address(r.Fixed32())
	return &a
}

func (a *Asset) marshal() []byte {
	w := borsh.NewWriter(90)
	w.U64(a.Supply).U64(a.MaxSupply).U8(a.Decimals)
	writeOptAddr(w, a.MintAuthority)
	writeOptAddr(w, a.FreezeAuthority)
	return w.Finish()
}

func decodeAsset(acc *Account) (*Asset, error) {
	r := borsh.NewReader(acc.Data)
	a := &Asset{Address: acc.Address}
	a.Supply = r.U64()
	a.MaxSupply = r.U64()
	a.Decimals = r.U8()
	a.MintAuthority = readOptAddr(r)
	a.FreezeAuthority = readOptAddr(r)

	if err := r.Finish(); err != nil {
		return nil, fmt.Errorf("decode asset %s:\n%w", acc.Address.Short(), err)
	}

	return a, nil
}

func (h *Holding) marshal() []byte {
	return borsh.NewWriter(72).Fixed32(h.Asset).Fixed32(h.Owner).U64(h.Units).Finish()
}

func decodeHolding(acc *Account) (*Holding, error) {
	r := borsh.NewReader(acc.Data)
	h := &Holding{Address: acc.Address}
	h.Asset = r.Fixed32()
	h.Owner = r.Fixed32()
	h.Units = r.U64()

	if err := r.Finish(); err != nil {
		return nil, fmt.Errorf("decode holding %s:\n%w", acc.Address.Short(), err)
	}

	return h, nil
}

// AssociatedHolding returns the canonical holding address of owner for asset.
func AssociatedHolding(owner, asset derive.Address) derive.Address {
	return derive.MustFind(TokenProgram, []byte("holding"), owner[:], asset[:])
}

// Asset loads an asset definition.
func (t *Txn) Asset(addr derive.Address) (*Asset, error) {
	acc, err := t.loadKind(addr, KindAsset, "asset")
	if err != nil {
		return nil, err
	}
	return decodeAsset(acc)
}

// Holding loads a holding.
func (t *Txn) Holding(addr derive.Address) (*Holding, error) {
	acc, err := t.loadKind(addr, KindHolding, "holding")
	if err != nil {
		return nil, err
	}
	return decodeHolding(acc)
}

// CreateAsset creates an asset at the address proven by at. If a compatible
// asset already exists it is left untouched and created is false.
func (t *Txn) CreateAsset(at derive.Authority, spec AssetSpec) (created bool, err error) {
	if err := t.authorizeAddress(at); err != nil {
		return false, fmt.Errorf("create asset:\n%w", err)
	}

	acc, existing, err := t.allocate(at.Address(), KindAsset, TokenProgram)
	if err != nil {
		return false, err
	}

	if existing {
		cur, err := decodeAsset(acc)
		if err != nil {
			return false, err
		}

		if cur.Decimals != spec.Decimals || cur.MaxSupply != spec.MaxSupply {
			return false, fmt.Errorf("asset %s exists with different parameters:\n%w", acc.Address.Short(), ErrWrongKind)
		}

		return false, nil
	}

	mint := spec.MintAuthority
	asset := &Asset{
		Address:         acc.Address,
		MaxSupply:       spec.MaxSupply,
		Decimals:        spec.Decimals,
		MintAuthority:   &mint,
		FreezeAuthority: spec.FreezeAuthority,
	}

	acc.Data = asset.marshal()
	t.store(acc)

	return true, nil
}

// InitHolding creates a holding of asset for owner at the address proven by at.
// An existing holding must already be bound to the same asset and owner.
func (t *Txn) InitHolding(at derive.Authority, asset, owner derive.Address) (created bool, err error) {
	if err := t.authorizeAddress(at); err != nil {
		return false, fmt.Errorf("init holding:\n%w", err)
	}

	return t.initHolding(at.Address(), asset, owner)
}

// EnsureAssociatedHolding creates owner's associated holding for asset if
// needed and returns its address. Anyone may create it.
func (t *Txn) EnsureAssociatedHolding(owner, asset derive.Address) (derive.Address, error) {
	addr := AssociatedHolding(owner, asset)

	if _, err := t.initHolding(addr, asset, owner); err != nil {
		return derive.Address{}, err
	}

	return addr, nil
}

func (t *Txn) initHolding(addr, asset, owner derive.Address) (bool, error) {
	if _, err := t.Asset(asset); err != nil {
		return false, err
	}

	acc, existing, err := t.allocate(addr, KindHolding, TokenProgram)
	if err != nil {
		return false, err
	}

	if existing {
		h, err := decodeHolding(acc)
		if err != nil {
			return false, err
		}

		if h.Asset != asset {
			return false, fmt.Errorf("holding %s:\n%w", addr.Short(), ErrAssetMismatch)
		}

		if h.Owner != owner {
			return false, errs.Malformed("holding %s is owned by %s, not %s", addr.Short(), h.Owner.Short(), owner.Short())
		}

		return false, nil
	}

	h := &Holding{Address: addr, Asset: asset, Owner: owner}
	acc.Data = h.marshal()
	t.store(acc)

	return true, nil
}

// Transfer moves units between two holdings of the same asset.
// auth must act for the owner of the source holding.
func (t *Txn) Transfer(from, to derive.Address, auth derive.Authority, units uint64) error {
	if units == 0 {
		return ErrZeroAmount
	}

	src, err := t.Holding(from)
	if err != nil {
		return fmt.Errorf("transfer source:\n%w", err)
	}

	dst, err := t.Holding(to)
	if err != nil {
		return fmt.Errorf("transfer destination:\n%w", err)
	}

	if src.Asset != dst.Asset {
		return fmt.Errorf("transfer %s -> %s:\n%w", from.Short(), to.Short(), ErrAssetMismatch)
	}

	if err := t.authorize(src.Owner, auth); err != nil {
		return fmt.Errorf("transfer from %s:\n%w", from.Short(), err)
	}

	if src.Units < units {
		return fmt.Errorf("holding %s has %d, needs %d:\n%w", from.Short(), src.Units, units, ErrInsufficientUnits)
	}

	if from == to {
		return nil
	}

	if dst.Units > math.MaxUint64-units {
		return fmt.Errorf("holding %s:\n%w", to.Short(), ErrOverflow)
	}

	src.Units -= units
	dst.Units += units

	if err := t.storeHolding(src); err != nil {
		return err
	}

	return t.storeHolding(dst)
}

// MintUnits creates units of asset into holding to.
// The supply ceiling is checked before the mint authority.
func (t *Txn) MintUnits(asset, to derive.Address, auth derive.Authority, units uint64) error {
	if units == 0 {
		return ErrZeroAmount
	}

	a, err := t.Asset(asset)
	if err != nil {
		return err
	}

	if a.Supply > math.MaxUint64-units {
		return fmt.Errorf("asset %s supply:\n%w", asset.Short(), ErrOverflow)
	}

	if a.MaxSupply > 0 && a.Supply+units > a.MaxSupply {
		return fmt.Errorf("asset %s supply %d + %d > %d:\n%w", asset.Short(), a.Supply, units, a.MaxSupply, ErrSupplyExceeded)
	}

	if a.MintAuthority == nil {
		return errs.Authority("asset %s has minting disabled", asset.Short())
	}

	if err := t.authorize(*a.MintAuthority, auth); err != nil {
		return fmt.Errorf("mint %s:\n%w", asset.Short(), err)
	}

	h, err := t.Holding(to)
	if err != nil {
		return err
	}

	if h.Asset != asset {
		return fmt.Errorf("mint into %s:\n%w", to.Short(), ErrAssetMismatch)
	}

	a.Supply += units
	h.Units += units

	if err := t.storeAsset(a); err != nil {
		return err
	}

	return t.storeHolding(h)
}

func (t *Txn) storeAsset(a *Asset) error {
	acc, err := t.loadKind(a.Address, KindAsset, "asset")
	if err != nil {
		return err
	}

	acc.Data = a.marshal()
	t.store(acc)

	return nil
}

func (t *Txn) storeHolding(h *Holding) error {
	acc, err := t.loadKind(h.Address, KindHolding, "holding")
	if err != nil {
		return err
	}

	acc.Data = h.marshal()
	t.store(acc)

	return nil
}
