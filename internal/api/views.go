package api

import (
	"encoding/hex"

	"NftBridge/internal/bridge"
	"NftBridge/internal/collection"
	"NftBridge/internal/derive"
	"NftBridge/internal/ledger"
	"NftBridge/internal/runtime"
)

// ReceiptView is the JSON form of a receipt.
type ReceiptView struct {
	Hash     string   `json:"hash"`
	Height   uint64   `json:"height"`
	Program  string   `json:"program"`
	Function string   `json:"function"`
	Sender   string   `json:"sender"`
	Success  bool     `json:"success"`
	Kind     string   `json:"kind,omitempty"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
}

func receiptView(r *runtime.Receipt) ReceiptView {
	logs := r.Logs
	if logs == nil {
		logs = []string{}
	}

	return ReceiptView{
		Hash:     hex.EncodeToString(r.Hash[:]),
		Height:   r.Height,
		Program:  r.Program.String(),
		Function: r.Function,
		Sender:   r.Sender.String(),
		Success:  r.Success,
		Kind:     r.Kind,
		Error:    r.Error,
		Logs:     logs,
	}
}

type programView struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Functions []string `json:"functions"`
}

// AccountView is the JSON form of an account, with the decoded payload of
// asset and holding accounts.
type AccountView struct {
	Address string       `json:"address"`
	Owner   string       `json:"owner"`
	Kind    string       `json:"kind"`
	Balance uint64       `json:"balance"`
	Version uint64       `json:"version"`
	Data    string       `json:"data"`
	Asset   *AssetView   `json:"asset,omitempty"`
	Holding *HoldingView `json:"holding,omitempty"`
}

// AssetView is the decoded payload of an asset account.
type AssetView struct {
	Supply        uint64 `json:"supply"`
	MaxSupply     uint64 `json:"maxSupply"`
	Decimals      uint8  `json:"decimals"`
	MintAuthority string `json:"mintAuthority,omitempty"`
}

// HoldingView is the decoded payload of a holding account.
type HoldingView struct {
	Asset string `json:"asset"`
	Owner string `json:"owner"`
	Units uint64 `json:"units"`
}

func accountView(txn *ledger.Txn, addr derive.Address) (*AccountView, error) {
	acc, err := txn.Load(addr)
	if err != nil {
		return nil, err
	}

	if acc == nil {
		return nil, ledger.ErrAccountNotFound
	}

	v := &AccountView{
		Address: acc.Address.String(),
		Owner:   acc.Owner.String(),
		Kind:    acc.Kind.String(),
		Balance: acc.Balance,
		Version: acc.Version,
		Data:    hex.EncodeToString(acc.Data),
	}

	switch acc.Kind {
	case ledger.KindAsset:
		a, err := txn.Asset(addr)
		if err != nil {
			return nil, err
		}

		v.Asset = &AssetView{Supply: a.Supply, MaxSupply: a.MaxSupply, Decimals: a.Decimals}
		if a.MintAuthority != nil {
			v.Asset.MintAuthority = a.MintAuthority.String()
		}

	case ledger.KindHolding:
		h, err := txn.Holding(addr)
		if err != nil {
			return nil, err
		}

		v.Holding = &HoldingView{Asset: h.Asset.String(), Owner: h.Owner.String(), Units: h.Units}
	}

	return v, nil
}

// CustodyView is the JSON form of a custody slot.
type CustodyView struct {
	Chain    string `json:"chain"`
	Contract string `json:"contract"`
	ID       uint64 `json:"id"`
	Slot     string `json:"slot"`
	Asset    string `json:"asset,omitempty"`
	Units    uint64 `json:"units"`
	State    string `json:"state"`
	AssetRef string `json:"assetRef,omitempty"`
}

func custodyView(c *bridge.Custody) CustodyView {
	v := CustodyView{
		Chain:    c.Key.OriginChain,
		Contract: c.Key.OriginContract,
		ID:       c.Key.AssetID,
		Slot:     c.Slot.String(),
		Units:    c.Units,
		State:    string(c.State),
	}

	if !c.Asset.IsZero() {
		v.Asset = c.Asset.String()
	}

	if c.Record != nil {
		v.AssetRef = c.Record.AssetRef.String()
	}

	return v
}

// MirrorView is the JSON form of a mirror collection.
type MirrorView struct {
	Chain          string `json:"chain"`
	Contract       string `json:"contract"`
	Recorded       bool   `json:"recorded"`
	Controller     string `json:"controller"`
	Supply         uint64 `json:"supply"`
	HasMetadata    bool   `json:"hasMetadata"`
	HasEdition     bool   `json:"hasEdition"`
	CollectionSize uint64 `json:"collectionSize"`
	CreatorSigned  bool   `json:"creatorSigned"`
}

func mirrorView(m *collection.Mirror) MirrorView {
	return MirrorView{
		Chain:          m.Origin.Chain,
		Contract:       m.Origin.Contract,
		Recorded:       m.Record != nil,
		Controller:     m.Controller.String(),
		Supply:         m.Supply,
		HasMetadata:    m.HasMetadata,
		HasEdition:     m.HasEdition,
		CollectionSize: m.CollectionSize,
		CreatorSigned:  m.CreatorSigned,
	}
}

// ItemView is the JSON form of a mirror item.
type ItemView struct {
	Asset    string `json:"asset"`
	Supply   uint64 `json:"supply"`
	Verified bool   `json:"verified"`
}
