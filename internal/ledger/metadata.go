package ledger

import (
	"fmt"

	"NftBridge/internal/borsh"
	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
)

// Metadata field limits.
const (
	MaxNameLen    = 32
	MaxSymbolLen  = 10
	MaxURILen     = 200
	MaxCreators   = 5
	creatorShares = 100
)

var (
	ErrMetadataExists     = errs.Invariant("metadata already exists")
	ErrEditionExists      = errs.Invariant("master edition already exists")
	ErrNotCreator         = errs.Authority("signer is not a listed creator")
	ErrNotSizedCollection = errs.Malformed("collection is not a sized collection")
	ErrCollectionMismatch = errs.Malformed("item does not reference this collection")
)

// Creator is one attributed creator of an asset.
type Creator struct {
	Address  derive.Address
	Verified bool
	Share    uint8
}

// CollectionRef points an item at its collection asset.
type CollectionRef struct {
	Key      derive.Address
	Verified bool
}

// Metadata is the descriptive metadata attached to an asset.
type Metadata struct {
	Asset           derive.Address
	UpdateAuthority derive.Address
	Name            string
	Symbol          string
	URI             string
	Creators        []Creator
	Collection      *CollectionRef
	CollectionSize  *uint64 // CollectionSize is set only on sized collections
	IsMutable       bool
}

// Edition is the master edition of a unit-supply asset.
type Edition struct {
	Asset     derive.Address
	Supply    uint64
	MaxSupply uint64
}

// MetadataAddress returns the metadata account of asset.
func MetadataAddress(asset derive.Address) derive.Address {
	return derive.MustFind(MetadataProgram, []byte("metadata"), asset[:])
}

// EditionAddress returns the master edition account of asset.
func EditionAddress(asset derive.Address) derive.Address {
	return derive.MustFind(MetadataProgram, []byte("metadata"), asset[:], []byte("edition"))
}

func (m *Metadata) marshal() []byte {
	w := borsh.NewWriter(256)
	w.Fixed32(m.Asset).Fixed32(m.UpdateAuthority)
	w.String(m.Name).String(m.Symbol).String(m.URI)

	w.U32(uint32(len(m.Creators)))
	for _, c := range m.Creators {
		w.Fixed32(c.Address).Bool(c.Verified).U8(c.Share)
	}

	w.Option(m.Collection != nil)
	if m.Collection != nil {
		w.Fixed32(m.Collection.Key).Bool(m.Collection.Verified)
	}

	w.Option(m.CollectionSize != nil)
	if m.CollectionSize != nil {
		w.U64(*m.CollectionSize)
	}

	w.Bool(m.IsMutable)

	return w.Finish()
}

func decodeMetadata(acc *Account) (*Metadata, error) {
	r := borsh.NewReader(acc.Data)
	m := &Metadata{}
	m.Asset = r.Fixed32()
	m.UpdateAuthority = r.Fixed32()
	m.Name = r.String()
	m.Symbol = r.String()
	m.URI = r.String()

	n := r.U32()
	if n > MaxCreators {
		return nil, errs.Malformed("metadata %s lists %d creators", acc.Address.Short(), n)
	}
	for i := uint32(0); i < n && r.Err() == nil; i++ {
		m.Creators = append(m.Creators, Creator{Address: r.Fixed32(), Verified: r.Bool(), Share: r.U8()})
	}

	if r.Option() {
		m.Collection = &CollectionRef{Key: r.Fixed32(), Verified: r.Bool()}
	}

	if r.Option() {
		size := r.U64()
		m.CollectionSize = &size
	}

	m.IsMutable = r.Bool()

	if err := r.Finish(); err != nil {
		return nil, fmt.Errorf("decode metadata %s:\n%w", acc.Address.Short(), err)
	}

	return m, nil
}

func (e *Edition) marshal() []byte {
	return borsh.NewWriter(48).Fixed32(e.Asset).U64(e.Supply).U64(e.MaxSupply).Finish()
}

func decodeEdition(acc *Account) (*Edition, error) {
	r := borsh.NewReader(acc.Data)
	e := &Edition{Asset: r.Fixed32(), Supply: r.U64(), MaxSupply: r.U64()}

	if err := r.Finish(); err != nil {
		return nil, fmt.Errorf("decode edition %s:\n%w", acc.Address.Short(), err)
	}

	return e, nil
}

// Metadata loads the metadata of asset.
func (t *Txn) Metadata(asset derive.Address) (*Metadata, error) {
	acc, err := t.loadKind(MetadataAddress(asset), KindMetadata, "metadata")
	if err != nil {
		return nil, err
	}
	return decodeMetadata(acc)
}

// Edition loads the master edition of asset.
func (t *Txn) Edition(asset derive.Address) (*Edition, error) {
	acc, err := t.loadKind(EditionAddress(asset), KindEdition, "edition")
	if err != nil {
		return nil, err
	}
	return decodeEdition(acc)
}

// HasMetadata reports whether asset has metadata.
func (t *Txn) HasMetadata(asset derive.Address) (bool, error) {
	return t.hasKind(MetadataAddress(asset), KindMetadata)
}

// HasEdition reports whether asset has a master edition.
func (t *Txn) HasEdition(asset derive.Address) (bool, error) {
	return t.hasKind(EditionAddress(asset), KindEdition)
}

func validateMetadata(m *Metadata) error {
	if len(m.Name) > MaxNameLen {
		return errs.Malformed("name is %d bytes, limit is %d", len(m.Name), MaxNameLen)
	}

	if len(m.Symbol) > MaxSymbolLen {
		return errs.Malformed("symbol is %d bytes, limit is %d", len(m.Symbol), MaxSymbolLen)
	}

	if len(m.URI) > MaxURILen {
		return errs.Malformed("uri is %d bytes, limit is %d", len(m.URI), MaxURILen)
	}

	if len(m.Creators) > MaxCreators {
		return errs.Malformed("%d creators, limit is %d", len(m.Creators), MaxCreators)
	}

	if len(m.Creators) == 0 {
		return nil
	}

	total := 0
	seen := make(map[derive.Address]bool, len(m.Creators))
	for _, c := range m.Creators {
		if seen[c.Address] {
			return errs.Malformed("duplicate creator %s", c.Address.Short())
		}
		seen[c.Address] = true
		total += int(c.Share)
	}

	if total != creatorShares {
		return errs.Malformed("creator shares sum to %d, want %d", total, creatorShares)
	}

	return nil
}

// CreateMetadata attaches metadata to an asset. mintAuth must hold the
// asset's mint authority. Creators always start unverified and the
// collection reference, if any, starts unverified.
func (t *Txn) CreateMetadata(payer, mintAuth derive.Authority, md Metadata) error {
	if err := t.authorizeAddress(payer); err != nil {
		return fmt.Errorf("metadata payer:\n%w", err)
	}

	asset, err := t.Asset(md.Asset)
	if err != nil {
		return err
	}

	if asset.MintAuthority == nil {
		return errs.Authority("asset %s has minting disabled", md.Asset.Short())
	}

	if err := t.authorize(*asset.MintAuthority, mintAuth); err != nil {
		return fmt.Errorf("create metadata for %s:\n%w", md.Asset.Short(), err)
	}

	if err := validateMetadata(&md); err != nil {
		return err
	}

	addr := MetadataAddress(md.Asset)

	acc, existing, err := t.allocate(addr, KindMetadata, MetadataProgram)
	if err != nil {
		return err
	}

	if existing {
		return fmt.Errorf("metadata %s:\n%w", addr.Short(), ErrMetadataExists)
	}

	md.Creators = append([]Creator(nil), md.Creators...)
	for i := range md.Creators {
		md.Creators[i].Verified = false
	}

	if md.Collection != nil {
		md.Collection = &CollectionRef{Key: md.Collection.Key}
	}

	acc.Data = md.marshal()
	t.store(acc)

	return nil
}

// CreateMasterEdition freezes the supply of a unit-supply asset that has
// metadata. The mint and freeze authority move to the edition account, so no
// further units can ever be minted.
func (t *Txn) CreateMasterEdition(payer, mintAuth, updateAuth derive.Authority, asset derive.Address, maxSupply uint64) error {
	if err := t.authorizeAddress(payer); err != nil {
		return fmt.Errorf("edition payer:\n%w", err)
	}

	md, err := t.Metadata(asset)
	if err != nil {
		return err
	}

	if err := t.authorize(md.UpdateAuthority, updateAuth); err != nil {
		return fmt.Errorf("master edition of %s:\n%w", asset.Short(), err)
	}

	a, err := t.Asset(asset)
	if err != nil {
		return err
	}

	if a.Decimals != 0 || a.Supply != 1 {
		return errs.Invariant("master edition of %s requires exactly one minted unit, supply is %d", asset.Short(), a.Supply)
	}

	if a.MintAuthority == nil {
		return errs.Authority("asset %s has minting disabled", asset.Short())
	}

	if err := t.authorize(*a.MintAuthority, mintAuth); err != nil {
		return fmt.Errorf("master edition of %s:\n%w", asset.Short(), err)
	}

	addr := EditionAddress(asset)

	acc, existing, err := t.allocate(addr, KindEdition, MetadataProgram)
	if err != nil {
		return err
	}

	if existing {
		return fmt.Errorf("edition %s:\n%w", addr.Short(), ErrEditionExists)
	}

	ed := &Edition{Asset: asset, MaxSupply: maxSupply}
	acc.Data = ed.marshal()
	t.store(acc)

	a.MintAuthority = &addr
	a.FreezeAuthority = &addr

	return t.storeAsset(a)
}

// SignCreator marks creator as verified on the asset's metadata.
// Signing twice is a no-op.
func (t *Txn) SignCreator(asset derive.Address, creator derive.Authority) error {
	if err := t.authorizeAddress(creator); err != nil {
		return fmt.Errorf("sign creator:\n%w", err)
	}

	md, err := t.Metadata(asset)
	if err != nil {
		return err
	}

	idx := -1
	for i, c := range md.Creators {
		if c.Address == creator.Address() {
			idx = i
			break
		}
	}

	if idx < 0 {
		return fmt.Errorf("%s on %s:\n%w", creator.Address().Short(), asset.Short(), ErrNotCreator)
	}

	if md.Creators[idx].Verified {
		return nil
	}

	md.Creators[idx].Verified = true

	return t.storeMetadata(md)
}

// VerifySizedCollectionItem marks item as a verified member of collection and
// increments the collection size. It returns false when the item was already
// verified.
func (t *Txn) VerifySizedCollectionItem(item, collection derive.Address, collAuth derive.Authority) (bool, error) {
	collMd, err := t.Metadata(collection)
	if err != nil {
		return false, fmt.Errorf("collection metadata:\n%w", err)
	}

	if _, err := t.Edition(collection); err != nil {
		return false, fmt.Errorf("collection edition:\n%w", err)
	}

	if collMd.CollectionSize == nil {
		return false, fmt.Errorf("collection %s:\n%w", collection.Short(), ErrNotSizedCollection)
	}

	if err := t.authorize(collMd.UpdateAuthority, collAuth); err != nil {
		return false, fmt.Errorf("verify item of %s:\n%w", collection.Short(), err)
	}

	itemMd, err := t.Metadata(item)
	if err != nil {
		return false, fmt.Errorf("item metadata:\n%w", err)
	}

	if itemMd.Collection == nil || itemMd.Collection.Key != collection {
		return false, fmt.Errorf("item %s:\n%w", item.Short(), ErrCollectionMismatch)
	}

	if itemMd.Collection.Verified {
		return false, nil
	}

	itemMd.Collection.Verified = true
	size := *collMd.CollectionSize + 1
	collMd.CollectionSize = &size

	if err := t.storeMetadata(itemMd); err != nil {
		return false, err
	}

	if err := t.storeMetadata(collMd); err != nil {
		return false, err
	}

	return true, nil
}

func (t *Txn) storeMetadata(md *Metadata) error {
	acc, err := t.loadKind(MetadataAddress(md.Asset), KindMetadata, "metadata")
	if err != nil {
		return err
	}

	acc.Data = md.marshal()
	t.store(acc)

	return nil
}
