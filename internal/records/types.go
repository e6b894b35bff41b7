package records

import (
	"NftBridge/internal/borsh"
	"NftBridge/internal/derive"
)

// EscrowRoot is the singleton custodial authority of a program.
type EscrowRoot struct {
	Reserved uint64
}

func (*EscrowRoot) RecordName() string { return "EscrowRoot" }

func (e *EscrowRoot) MarshalBorsh(w *borsh.Writer) { w.U64(e.Reserved) }

func (e *EscrowRoot) UnmarshalBorsh(r *borsh.Reader) { e.Reserved = r.U64() }

// NftRecord maps a foreign NFT identity to its local asset.
type NftRecord struct {
	AssetRef derive.Address
}

func (*NftRecord) RecordName() string { return "NftRecord" }

func (n *NftRecord) MarshalBorsh(w *borsh.Writer) { w.Fixed32(n.AssetRef) }

func (n *NftRecord) UnmarshalBorsh(r *borsh.Reader) { n.AssetRef = r.Fixed32() }

// CollectionRecord stores the foreign origin of a mirror collection.
type CollectionRecord struct {
	OriginChain    string
	OriginContract string
}

func (*CollectionRecord) RecordName() string { return "CollectionRecord" }

func (c *CollectionRecord) MarshalBorsh(w *borsh.Writer) {
	w.String(c.OriginChain).String(c.OriginContract)
}

func (c *CollectionRecord) UnmarshalBorsh(r *borsh.Reader) {
	c.OriginChain = r.String()
	c.OriginContract = r.String()
}

// UnlockReceipt marks a return instruction as executed.
type UnlockReceipt struct {
	BridgeTxID string
	AssetRef   derive.Address
	Receiver   derive.Address
}

func (*UnlockReceipt) RecordName() string { return "UnlockReceipt" }

func (u *UnlockReceipt) MarshalBorsh(w *borsh.Writer) {
	w.String(u.BridgeTxID).Fixed32(u.AssetRef).Fixed32(u.Receiver)
}

func (u *UnlockReceipt) UnmarshalBorsh(r *borsh.Reader) {
	u.BridgeTxID = r.String()
	u.AssetRef = r.Fixed32()
	u.Receiver = r.Fixed32()
}
