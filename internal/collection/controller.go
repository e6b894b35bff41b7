// Package collection mints local mirror assets for NFT collections and items
// whose origin is a foreign chain.
//
// Every mirror asset of a collection is controlled by one derived controller
// address keyed on the origin chain and contract. The controller address is
// also the address of the mirror collection asset itself, so the asset is its
// own mint, freeze and update authority.
package collection

import (
	"fmt"

	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
	"NftBridge/internal/ledger"
	"NftBridge/internal/records"
)

// NativeChain is the origin chain of collections that need no mirror.
const NativeChain = "SOL"

const (
	rootTag       = "Bridge"
	controllerTag = "Collection"
	infoTag       = "Collection_Info"
	itemTag       = "Item"
)

var (
	ErrNotAdmin        = errs.Authority("sender is not the collection administrator")
	ErrOriginMissing   = errs.NotFound("collection origin is not recorded")
	ErrMirrorNotMinted = errs.NotFound("mirror collection is not minted")
)

// Config holds the deployment parameters of a controller.
type Config struct {
	Admin derive.Address
}

// Origin identifies a foreign collection.
type Origin struct {
	Chain    string
	Contract string
}

func (o Origin) validate() error {
	if o.Chain == "" || o.Contract == "" {
		return errs.Malformed("origin chain and contract are required")
	}
	return nil
}

// Native reports whether the collection already lives on the local chain.
func (o Origin) Native() bool {
	return o.Chain == NativeChain
}

func (o Origin) String() string {
	return o.Chain + "/" + o.Contract
}

// Controller is the mirror-mint controller of one program deployment.
type Controller struct {
	program derive.Address
	cfg     Config
}

// New creates the controller of program.
func New(program derive.Address, cfg Config) *Controller {
	return &Controller{program: program, cfg: cfg}
}

// Program returns the program identity.
func (c *Controller) Program() derive.Address {
	return c.program
}

// RootAddress returns the address owning mirror collection units.
func (c *Controller) RootAddress() derive.Address {
	return derive.MustFind(c.program, []byte(rootTag))
}

// ControllerAddress returns the controller (and mirror collection asset) of o.
func (c *Controller) ControllerAddress(o Origin) (derive.Address, error) {
	return derive.FindAddress(c.program, []byte(controllerTag), []byte(o.Chain), []byte(o.Contract))
}

// RecordAddress returns the CollectionRecord of o.
func (c *Controller) RecordAddress(o Origin) (derive.Address, error) {
	return derive.FindAddress(c.program, []byte(infoTag), []byte(o.Chain), []byte(o.Contract))
}

// ItemAddress returns the mirror item asset of a foreign item id.
func (c *Controller) ItemAddress(o Origin, assetID uint64) (derive.Address, error) {
	return derive.FindAddress(c.program, []byte(itemTag), derive.U64Seed(assetID), []byte(o.Chain), []byte(o.Contract))
}

func (c *Controller) controllerAuthority(o Origin) (derive.Authority, error) {
	_, auth, err := derive.Derive(c.program, []byte(controllerTag), []byte(o.Chain), []byte(o.Contract))
	return auth, err
}

func (c *Controller) requireAdmin(txn *ledger.Txn) error {
	if txn.Sender() != c.cfg.Admin {
		return fmt.Errorf("sender %s:\n%w", txn.Sender().Short(), ErrNotAdmin)
	}
	return nil
}

// record loads the CollectionRecord of o.
func (c *Controller) record(txn *ledger.Txn, o Origin) (*records.CollectionRecord, error) {
	addr, err := c.RecordAddress(o)
	if err != nil {
		return nil, err
	}

	var rec records.CollectionRecord
	err = records.Load(txn, c.program, addr, &rec)
	if errs.Is(err, errs.KindNotFound) {
		return nil, fmt.Errorf("%s:\n%w", o, ErrOriginMissing)
	}
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// nativeOrigin loads the record of o and reports whether it is native.
func (c *Controller) nativeOrigin(txn *ledger.Txn, o Origin) (bool, error) {
	rec, err := c.record(txn, o)
	if err != nil {
		return false, err
	}

	if rec.OriginChain == NativeChain {
		txn.Logf("collection %s already present on %s", o, NativeChain)
		return true, nil
	}

	return false, nil
}

// minted reports whether the mirror collection of o has an outstanding unit.
func (c *Controller) minted(txn *ledger.Txn, controller derive.Address) (bool, error) {
	asset, err := txn.Asset(controller)
	if errs.Is(err, errs.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return asset.Supply > 0, nil
}

// RecordCollectionOrigin creates the CollectionRecord of o. The record lives
// at an address derived from its own fields, so recording the same origin
// again is a no-op.
func (c *Controller) RecordCollectionOrigin(txn *ledger.Txn, o Origin) error {
	if err := c.requireAdmin(txn); err != nil {
		return err
	}

	if err := o.validate(); err != nil {
		return err
	}

	_, auth, err := derive.Derive(c.program, []byte(infoTag), []byte(o.Chain), []byte(o.Contract))
	if err != nil {
		return err
	}

	_, err = c.record(txn, o)
	switch {
	case err == nil:
		return nil
	case !errs.Is(err, errs.KindNotFound):
		return err
	}

	want := &records.CollectionRecord{OriginChain: o.Chain, OriginContract: o.Contract}

	if err := records.Save(txn, auth, want); err != nil {
		return err
	}

	txn.Logf("collection origin recorded: %s", o)

	return nil
}

// MintArgs describe a mirror asset to create.
type MintArgs struct {
	URI    string
	Name   string
	Symbol string
	Origin Origin
}

// CreateMirrorCollection mints the single unit of the mirror collection of a
// foreign collection, attaches sized-collection metadata with the sender as
// creator, freezes the supply with a master edition, and signs the creator
// attestation. Each step runs only if not already done, so a repeat call is a
// no-op and the supply never exceeds one.
func (c *Controller) CreateMirrorCollection(txn *ledger.Txn, args MintArgs) (changed bool, err error) {
	if err := c.requireAdmin(txn); err != nil {
		return false, err
	}

	o := args.Origin
	if err := o.validate(); err != nil {
		return false, err
	}

	native, err := c.nativeOrigin(txn, o)
	if err != nil || native {
		return false, err
	}

	ctrl, err := c.controllerAuthority(o)
	if err != nil {
		return false, err
	}
	controller := ctrl.Address()
	sender := derive.Signer(txn.Sender())

	_, rootAuth, _ := derive.Derive(c.program, []byte(rootTag))
	if created, err := records.Init(txn, rootAuth, &records.EscrowRoot{}); err != nil {
		return false, err
	} else if created {
		changed = true
	}

	created, err := txn.CreateAsset(ctrl, ledger.AssetSpec{
		MaxSupply:       1,
		MintAuthority:   controller,
		FreezeAuthority: &controller,
	})
	if err != nil {
		return false, fmt.Errorf("mirror collection asset:\n%w", err)
	}
	changed = changed || created

	holding, err := txn.EnsureAssociatedHolding(c.RootAddress(), controller)
	if err != nil {
		return false, err
	}

	asset, err := txn.Asset(controller)
	if err != nil {
		return false, err
	}

	if asset.Supply == 0 {
		if err := txn.MintUnits(controller, holding, ctrl, 1); err != nil {
			return false, fmt.Errorf("mint mirror collection:\n%w", err)
		}
		txn.Logf("mirror collection minted: %s asset=%s", o, controller)
		changed = true
	}

	hasMetadata, err := txn.HasMetadata(controller)
	if err != nil {
		return false, err
	}

	if !hasMetadata {
		size := uint64(0)
		md := ledger.Metadata{
			Asset:           controller,
			UpdateAuthority: controller,
			Name:            args.Name,
			Symbol:          args.Symbol,
			URI:             args.URI,
			Creators:        []ledger.Creator{{Address: txn.Sender(), Share: 100}},
			CollectionSize:  &size,
			IsMutable:       true,
		}

		if err := txn.CreateMetadata(sender, ctrl, md); err != nil {
			return false, fmt.Errorf("mirror collection metadata:\n%w", err)
		}
		changed = true
	}

	hasEdition, err := txn.HasEdition(controller)
	if err != nil {
		return false, err
	}

	if !hasEdition {
		if err := txn.CreateMasterEdition(sender, ctrl, ctrl, controller, 0); err != nil {
			return false, fmt.Errorf("mirror collection edition:\n%w", err)
		}
		changed = true
	}

	md, err := txn.Metadata(controller)
	if err != nil {
		return false, err
	}

	for _, cr := range md.Creators {
		if cr.Address == txn.Sender() && !cr.Verified {
			if err := txn.SignCreator(controller, sender); err != nil {
				return false, err
			}
			changed = true
		}
	}

	if !changed {
		txn.Logf("mirror collection %s already complete", o)
	}

	return changed, nil
}

// ItemArgs describe a mirror item to create.
type ItemArgs struct {
	MintArgs
	AssetID  uint64
	Receiver derive.Address
}

// CreateMirrorItem mints the single unit of a mirror item into the
// receiver's associated holding under the collection controller, and attaches
// metadata with an unverified reference to the mirror collection. A second
// mint of the same item fails on the unit-supply ceiling.
func (c *Controller) CreateMirrorItem(txn *ledger.Txn, args ItemArgs) (derive.Address, error) {
	if err := c.requireAdmin(txn); err != nil {
		return derive.Address{}, err
	}

	o := args.Origin
	if err := o.validate(); err != nil {
		return derive.Address{}, err
	}

	if args.Receiver.IsZero() {
		return derive.Address{}, errs.Malformed("mirror item %s#%d: receiver is required", o, args.AssetID)
	}

	native, err := c.nativeOrigin(txn, o)
	if err != nil || native {
		return derive.Address{}, err
	}

	ctrl, err := c.controllerAuthority(o)
	if err != nil {
		return derive.Address{}, err
	}
	controller := ctrl.Address()

	minted, err := c.minted(txn, controller)
	if err != nil {
		return derive.Address{}, err
	}

	if !minted {
		return derive.Address{}, fmt.Errorf("%s:\n%w", o, ErrMirrorNotMinted)
	}

	_, itemAuth, err := derive.Derive(c.program, []byte(itemTag), derive.U64Seed(args.AssetID), []byte(o.Chain), []byte(o.Contract))
	if err != nil {
		return derive.Address{}, err
	}
	item := itemAuth.Address()

	if _, err := txn.CreateAsset(itemAuth, ledger.AssetSpec{
		MaxSupply:       1,
		MintAuthority:   controller,
		FreezeAuthority: &controller,
	}); err != nil {
		return derive.Address{}, fmt.Errorf("mirror item asset:\n%w", err)
	}

	holding, err := txn.EnsureAssociatedHolding(args.Receiver, item)
	if err != nil {
		return derive.Address{}, err
	}

	if err := txn.MintUnits(item, holding, ctrl, 1); err != nil {
		return derive.Address{}, fmt.Errorf("mint mirror item %s#%d:\n%w", o, args.AssetID, err)
	}

	sender := derive.Signer(txn.Sender())

	md := ledger.Metadata{
		Asset:           item,
		UpdateAuthority: controller,
		Name:            args.Name,
		Symbol:          args.Symbol,
		URI:             args.URI,
		Collection:      &ledger.CollectionRef{Key: controller},
		IsMutable:       true,
	}

	if err := txn.CreateMetadata(sender, ctrl, md); err != nil {
		return derive.Address{}, fmt.Errorf("mirror item metadata:\n%w", err)
	}

	if err := txn.CreateMasterEdition(sender, ctrl, ctrl, item, 0); err != nil {
		return derive.Address{}, fmt.Errorf("mirror item edition:\n%w", err)
	}

	txn.Logf("mirror item minted: %s#%d asset=%s receiver=%s", o, args.AssetID, item, args.Receiver)

	return item, nil
}

// VerifyMirrorItemMembership marks a mirror item as a verified member of its
// mirror collection under the controller's authority. Verifying an already
// verified item is a no-op.
func (c *Controller) VerifyMirrorItemMembership(txn *ledger.Txn, o Origin, assetID uint64) error {
	if err := c.requireAdmin(txn); err != nil {
		return err
	}

	if err := o.validate(); err != nil {
		return err
	}

	native, err := c.nativeOrigin(txn, o)
	if err != nil || native {
		return err
	}

	ctrl, err := c.controllerAuthority(o)
	if err != nil {
		return err
	}

	item, err := c.ItemAddress(o, assetID)
	if err != nil {
		return err
	}

	changed, err := txn.VerifySizedCollectionItem(item, ctrl.Address(), ctrl)
	if err != nil {
		return fmt.Errorf("verify %s#%d:\n%w", o, assetID, err)
	}

	if changed {
		txn.Logf("mirror item verified: %s#%d", o, assetID)
	}

	return nil
}

// Mirror describes the mirror collection of one origin.
type Mirror struct {
	Origin         Origin
	Record         *records.CollectionRecord // Record is nil until the origin is recorded
	Controller     derive.Address
	Supply         uint64
	HasMetadata    bool
	HasEdition     bool
	CollectionSize uint64
	CreatorSigned  bool
}

// Mirror reads the mirror collection state of o.
func (c *Controller) Mirror(txn *ledger.Txn, o Origin) (*Mirror, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	controller, err := c.ControllerAddress(o)
	if err != nil {
		return nil, err
	}

	m := &Mirror{Origin: o, Controller: controller}

	rec, err := c.record(txn, o)
	switch {
	case err == nil:
		m.Record = rec
	case !errs.Is(err, errs.KindNotFound):
		return nil, err
	}

	asset, err := txn.Asset(controller)
	switch {
	case err == nil:
		m.Supply = asset.Supply
	case !errs.Is(err, errs.KindNotFound):
		return nil, err
	}

	md, err := txn.Metadata(controller)
	switch {
	case err == nil:
		m.HasMetadata = true
		if md.CollectionSize != nil {
			m.CollectionSize = *md.CollectionSize
		}
		for _, cr := range md.Creators {
			m.CreatorSigned = m.CreatorSigned || cr.Verified
		}
	case !errs.Is(err, errs.KindNotFound):
		return nil, err
	}

	if m.HasEdition, err = txn.HasEdition(controller); err != nil {
		return nil, err
	}

	return m, nil
}

// Item describes one mirror item.
type Item struct {
	Asset    derive.Address
	Supply   uint64
	Verified bool
}

// Item reads the mirror item of a foreign item id.
func (c *Controller) Item(txn *ledger.Txn, o Origin, assetID uint64) (*Item, error) {
	addr, err := c.ItemAddress(o, assetID)
	if err != nil {
		return nil, err
	}

	asset, err := txn.Asset(addr)
	if err != nil {
		return nil, err
	}

	it := &Item{Asset: addr, Supply: asset.Supply}

	md, err := txn.Metadata(addr)
	switch {
	case err == nil:
		it.Verified = md.Collection != nil && md.Collection.Verified
	case !errs.Is(err, errs.KindNotFound):
		return nil, err
	}

	return it, nil
}
