package client

import (
	"crypto/ed25519"
	"fmt"

	"NftBridge/internal/api"
	"NftBridge/internal/borsh"
	"NftBridge/internal/bridge"
	"NftBridge/internal/collection"
	"NftBridge/internal/derive"
	"NftBridge/internal/runtime"
	"NftBridge/internal/system"
)

// RequestError is returned when a request executed but failed. The receipt
// is stored on the node either way.
type RequestError struct {
	Receipt *api.ReceiptView
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s failed (%s): %s", e.Receipt.Function, e.Receipt.Kind, e.Receipt.Error)
}

// call signs and submits one request. A receipt with Success false is
// returned together with a *RequestError.
func (w *Wallet) call(c *Client, program derive.Address, fn string, args borsh.Marshaler, cosigners ...*Wallet) (*api.ReceiptView, error) {
	var raw []byte
	if args != nil {
		raw = borsh.Marshal(args)
	}

	keys := make([]ed25519.PrivateKey, len(cosigners))
	for i, cw := range cosigners {
		keys[i] = cw.privKey
	}

	data, _ := runtime.BuildRequest(program, fn, raw, w.nextNonce(), w.privKey, keys...)

	rv, err := c.submitRequest(data)
	if err != nil {
		return nil, fmt.Errorf("submit %s:\n%w", fn, err)
	}

	if !rv.Success {
		return rv, &RequestError{Receipt: rv}
	}

	return rv, nil
}

// MintNative credits native balance. Only the system administrator may call it.
func (w *Wallet) MintNative(c *Client, to derive.Address, amount uint64) (*api.ReceiptView, error) {
	return w.call(c, c.system, system.FnMintNative, &system.NativeArgs{To: to, Amount: amount})
}

// TransferNative moves native balance from the wallet to another address.
func (w *Wallet) TransferNative(c *Client, to derive.Address, amount uint64) (*api.ReceiptView, error) {
	return w.call(c, c.system, system.FnTransferNative, &system.NativeArgs{To: to, Amount: amount})
}

// CreateAsset creates an asset with the wallet as mint authority and
// returns its address.
func (w *Wallet) CreateAsset(c *Client, seed string, decimals uint8, maxSupply uint64) (derive.Address, error) {
	asset, err := system.AssetAddress(c.system, w.Address(), seed)
	if err != nil {
		return derive.Address{}, err
	}

	args := &system.CreateAssetArgs{Seed: seed, Decimals: decimals, MaxSupply: maxSupply}
	if _, err := w.call(c, c.system, system.FnCreateAsset, args); err != nil {
		return derive.Address{}, err
	}

	return asset, nil
}

// CreateNFT creates a unit-supply asset and mints its unit to the wallet.
func (w *Wallet) CreateNFT(c *Client, seed string) (derive.Address, error) {
	asset, err := w.CreateAsset(c, seed, 0, 1)
	if err != nil {
		return derive.Address{}, err
	}

	if _, err := w.MintTo(c, asset, w.Address(), 1); err != nil {
		return derive.Address{}, err
	}

	return asset, nil
}

// MintTo mints units of an asset into owner's associated holding.
func (w *Wallet) MintTo(c *Client, asset, owner derive.Address, units uint64) (*api.ReceiptView, error) {
	return w.call(c, c.system, system.FnMintTo, &system.MintToArgs{Asset: asset, Owner: owner, Units: units})
}

// Transfer moves units between associated holdings.
func (w *Wallet) Transfer(c *Client, asset, to derive.Address, units uint64) (*api.ReceiptView, error) {
	return w.call(c, c.system, system.FnTransfer, &system.TransferArgs{Asset: asset, To: to, Units: units})
}

// InitializeEscrowRoot creates the bridge escrow root. Administrator only.
func (w *Wallet) InitializeEscrowRoot(c *Client) (*api.ReceiptView, error) {
	return w.call(c, c.bridge, bridge.FnInitializeEscrowRoot, nil)
}

// Lock moves an NFT held by the wallet into custody. Cosigners sign for a
// fee payer other than the wallet.
func (w *Wallet) Lock(c *Client, args bridge.LockArgs, cosigners ...*Wallet) (*api.ReceiptView, error) {
	return w.call(c, c.bridge, bridge.FnLock, &args, cosigners...)
}

// Unlock releases a custodied NFT to args.Receiver. Administrator only.
func (w *Wallet) Unlock(c *Client, args bridge.UnlockArgs) (*api.ReceiptView, error) {
	return w.call(c, c.bridge, bridge.FnUnlock, &args)
}

// RecordAssetInfo stores the local asset reference of a foreign NFT. Administrator only.
func (w *Wallet) RecordAssetInfo(c *Client, args bridge.RecordAssetInfoArgs) (*api.ReceiptView, error) {
	return w.call(c, c.bridge, bridge.FnRecordAssetInfo, &args)
}

// RecordCollectionOrigin records the origin of a foreign collection. Administrator only.
func (w *Wallet) RecordCollectionOrigin(c *Client, chain, contract string) (*api.ReceiptView, error) {
	args := &collection.OriginArgs{OriginChain: chain, OriginContract: contract}
	return w.call(c, c.collection, collection.FnRecordCollectionOrigin, args)
}

// CreateMirrorCollection mints the mirror collection of a foreign collection. Administrator only.
func (w *Wallet) CreateMirrorCollection(c *Client, args collection.CollectionArgs) (*api.ReceiptView, error) {
	return w.call(c, c.collection, collection.FnCreateMirrorCollection, &args)
}

// CreateMirrorItem mints one mirror item. Administrator only.
func (w *Wallet) CreateMirrorItem(c *Client, args collection.ItemMintArgs) (*api.ReceiptView, error) {
	return w.call(c, c.collection, collection.FnCreateMirrorItem, &args)
}

// VerifyMirrorItem verifies a mirror item's membership in its collection. Administrator only.
func (w *Wallet) VerifyMirrorItem(c *Client, args collection.VerifyArgs) (*api.ReceiptView, error) {
	return w.call(c, c.collection, collection.FnVerifyMirrorItem, &args)
}
