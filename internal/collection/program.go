package collection

import (
	"NftBridge/internal/borsh"
	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
	"NftBridge/internal/ledger"
	"NftBridge/internal/runtime"
)

// Function names of the collection program.
const (
	FnRecordCollectionOrigin = "record_collection_origin"
	FnCreateMirrorCollection = "create_mirror_collection"
	FnCreateMirrorItem       = "create_mirror_item"
	FnVerifyMirrorItem       = "verify_mirror_item"
)

// OriginArgs are the arguments of record_collection_origin.
type OriginArgs struct {
	OriginChain    string
	OriginContract string
}

func (a *OriginArgs) MarshalBorsh(w *borsh.Writer) {
	w.String(a.OriginChain).String(a.OriginContract)
}

func (a *OriginArgs) UnmarshalBorsh(r *borsh.Reader) {
	a.OriginChain = r.String()
	a.OriginContract = r.String()
}

func (a *OriginArgs) origin() Origin {
	return Origin{Chain: a.OriginChain, Contract: a.OriginContract}
}

// CollectionArgs are the arguments of create_mirror_collection.
type CollectionArgs struct {
	URI            string
	Name           string
	Symbol         string
	OriginChain    string
	OriginContract string
}

func (a *CollectionArgs) MarshalBorsh(w *borsh.Writer) {
	w.String(a.URI).String(a.Name).String(a.Symbol).String(a.OriginChain).String(a.OriginContract)
}

func (a *CollectionArgs) UnmarshalBorsh(r *borsh.Reader) {
	a.URI = r.String()
	a.Name = r.String()
	a.Symbol = r.String()
	a.OriginChain = r.String()
	a.OriginContract = r.String()
}

func (a *CollectionArgs) mintArgs() MintArgs {
	return MintArgs{
		URI:    a.URI,
		Name:   a.Name,
		Symbol: a.Symbol,
		Origin: Origin{Chain: a.OriginChain, Contract: a.OriginContract},
	}
}

// ItemMintArgs are the arguments of create_mirror_item.
type ItemMintArgs struct {
	CollectionArgs
	AssetID  uint64
	Receiver derive.Address
}

func (a *ItemMintArgs) MarshalBorsh(w *borsh.Writer) {
	a.CollectionArgs.MarshalBorsh(w)
	w.U64(a.AssetID).Fixed32(a.Receiver)
}

func (a *ItemMintArgs) UnmarshalBorsh(r *borsh.Reader) {
	a.CollectionArgs.UnmarshalBorsh(r)
	a.AssetID = r.U64()
	a.Receiver = r.Fixed32()
}

// VerifyArgs are the arguments of verify_mirror_item.
type VerifyArgs struct {
	OriginChain    string
	OriginContract string
	AssetID        uint64
}

func (a *VerifyArgs) MarshalBorsh(w *borsh.Writer) {
	w.String(a.OriginChain).String(a.OriginContract).U64(a.AssetID)
}

func (a *VerifyArgs) UnmarshalBorsh(r *borsh.Reader) {
	a.OriginChain = r.String()
	a.OriginContract = r.String()
	a.AssetID = r.U64()
}

// Program exposes a Controller as runtime request handlers.
type Program struct {
	name       string
	controller *Controller
}

// NewProgram registers the controller under name.
func NewProgram(name string, controller *Controller) *Program {
	return &Program{name: name, controller: controller}
}

func (p *Program) ID() derive.Address { return p.controller.Program() }

func (p *Program) Name() string { return p.name }

// Controller returns the underlying controller.
func (p *Program) Controller() *Controller { return p.controller }

// Handlers returns the request handlers by function name.
func (p *Program) Handlers() map[string]runtime.Handler {
	return map[string]runtime.Handler{
		FnRecordCollectionOrigin: p.recordCollectionOrigin,
		FnCreateMirrorCollection: p.createMirrorCollection,
		FnCreateMirrorItem:       p.createMirrorItem,
		FnVerifyMirrorItem:       p.verifyMirrorItem,
	}
}

func (p *Program) recordCollectionOrigin(txn *ledger.Txn, args []byte) error {
	var a OriginArgs
	if err := borsh.Unmarshal(args, &a); err != nil {
		return errs.Malformed("decode %s args: %v", FnRecordCollectionOrigin, err)
	}

	return p.controller.RecordCollectionOrigin(txn, a.origin())
}

func (p *Program) createMirrorCollection(txn *ledger.Txn, args []byte) error {
	var a CollectionArgs
	if err := borsh.Unmarshal(args, &a); err != nil {
		return errs.Malformed("decode %s args: %v", FnCreateMirrorCollection, err)
	}

	_, err := p.controller.CreateMirrorCollection(txn, a.mintArgs())
	return err
}

func (p *Program) createMirrorItem(txn *ledger.Txn, args []byte) error {
	var a ItemMintArgs
	if err := borsh.Unmarshal(args, &a); err != nil {
		return errs.Malformed("decode %s args: %v", FnCreateMirrorItem, err)
	}

	_, err := p.controller.CreateMirrorItem(txn, ItemArgs{
		MintArgs: a.mintArgs(),
		AssetID:  a.AssetID,
		Receiver: a.Receiver,
	})
	return err
}

func (p *Program) verifyMirrorItem(txn *ledger.Txn, args []byte) error {
	var a VerifyArgs
	if err := borsh.Unmarshal(args, &a); err != nil {
		return errs.Malformed("decode %s args: %v", FnVerifyMirrorItem, err)
	}

	origin := Origin{Chain: a.OriginChain, Contract: a.OriginContract}

	return p.controller.VerifyMirrorItemMembership(txn, origin, a.AssetID)
}
