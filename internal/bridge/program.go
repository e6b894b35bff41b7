package bridge

import (
	"NftBridge/internal/borsh"
	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
	"NftBridge/internal/ledger"
	"NftBridge/internal/runtime"
)

// Function names of the bridge program.
const (
	FnInitializeEscrowRoot = "initialize_escrow_root"
	FnLock                 = "lock"
	FnUnlock               = "unlock"
	FnRecordAssetInfo      = "record_asset_info"
)

// RecordAssetInfoArgs are the arguments of a record_asset_info request.
type RecordAssetInfoArgs struct {
	OriginChain    string
	OriginContract string
	AssetRef       derive.Address
	AssetID        uint64
}

func (a *LockArgs) MarshalBorsh(w *borsh.Writer) {
	w.String(a.OriginChain).String(a.OriginContract).U64(a.AssetID).U64(a.FeeAmount)
	w.String(a.CollectionID).String(a.SrcAddress).String(a.DstChain).String(a.DstAddress)
	w.Fixed32(a.SourceHolding).Fixed32(a.FeePayer).Fixed32(a.FeePayee)
}

func (a *LockArgs) UnmarshalBorsh(r *borsh.Reader) {
	a.OriginChain = r.String()
	a.OriginContract = r.String()
	a.AssetID = r.U64()
	a.FeeAmount = r.U64()
	a.CollectionID = r.String()
	a.SrcAddress = r.String()
	a.DstChain = r.String()
	a.DstAddress = r.String()
	a.SourceHolding = r.Fixed32()
	a.FeePayer = r.Fixed32()
	a.FeePayee = r.Fixed32()
}

func (a *UnlockArgs) MarshalBorsh(w *borsh.Writer) {
	w.String(a.OriginChain).String(a.OriginContract).U64(a.AssetID)
	w.String(a.CollectionID).String(a.SrcChain).String(a.SrcAddress).String(a.DstAddress).String(a.BridgeTxID)
	w.Fixed32(a.Receiver)
}

func (a *UnlockArgs) UnmarshalBorsh(r *borsh.Reader) {
	a.OriginChain = r.String()
	a.OriginContract = r.String()
	a.AssetID = r.U64()
	a.CollectionID = r.String()
	a.SrcChain = r.String()
	a.SrcAddress = r.String()
	a.DstAddress = r.String()
	a.BridgeTxID = r.String()
	a.Receiver = r.Fixed32()
}

func (a *RecordAssetInfoArgs) MarshalBorsh(w *borsh.Writer) {
	w.String(a.OriginChain).String(a.OriginContract).Fixed32(a.AssetRef).U64(a.AssetID)
}

func (a *RecordAssetInfoArgs) UnmarshalBorsh(r *borsh.Reader) {
	a.OriginChain = r.String()
	a.OriginContract = r.String()
	a.AssetRef = r.Fixed32()
	a.AssetID = r.U64()
}

// Program exposes an Escrow as runtime request handlers.
type Program struct {
	name   string
	escrow *Escrow
}

// NewProgram registers the escrow under name.
func NewProgram(name string, escrow *Escrow) *Program {
	return &Program{name: name, escrow: escrow}
}

// ID returns the program identity.
func (p *Program) ID() derive.Address { return p.escrow.Program() }

// Name returns the program name.
func (p *Program) Name() string { return p.name }

// Escrow returns the underlying escrow.
func (p *Program) Escrow() *Escrow { return p.escrow }

// Handlers returns the request handlers by function name.
func (p *Program) Handlers() map[string]runtime.Handler {
	return map[string]runtime.Handler{
		FnInitializeEscrowRoot: p.initializeEscrowRoot,
		FnLock:                 p.lock,
		FnUnlock:               p.unlock,
		FnRecordAssetInfo:      p.recordAssetInfo,
	}
}

func (p *Program) initializeEscrowRoot(txn *ledger.Txn, args []byte) error {
	if len(args) != 0 {
		return errs.Malformed("%s takes no arguments", FnInitializeEscrowRoot)
	}

	_, err := p.escrow.InitializeEscrowRoot(txn)
	return err
}

func (p *Program) lock(txn *ledger.Txn, args []byte) error {
	var a LockArgs
	if err := borsh.Unmarshal(args, &a); err != nil {
		return errs.Malformed("decode %s args: %v", FnLock, err)
	}

	_, err := p.escrow.Lock(txn, a)
	return err
}

func (p *Program) unlock(txn *ledger.Txn, args []byte) error {
	var a UnlockArgs
	if err := borsh.Unmarshal(args, &a); err != nil {
		return errs.Malformed("decode %s args: %v", FnUnlock, err)
	}

	_, err := p.escrow.Unlock(txn, a)
	return err
}

func (p *Program) recordAssetInfo(txn *ledger.Txn, args []byte) error {
	var a RecordAssetInfoArgs
	if err := borsh.Unmarshal(args, &a); err != nil {
		return errs.Malformed("decode %s args: %v", FnRecordAssetInfo, err)
	}

	key := Key{OriginChain: a.OriginChain, OriginContract: a.OriginContract, AssetID: a.AssetID}

	return p.escrow.RecordAssetInfo(txn, key, a.AssetRef)
}
