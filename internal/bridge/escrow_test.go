package bridge

import (
	"bytes"
	"testing"

	"NftBridge/internal/borsh"
	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
	"NftBridge/internal/ledger"
	"NftBridge/internal/storage"
)

var (
	bridgeID  = derive.ProgramID("bridge")
	mintingID = derive.ProgramID("bridge-test-mint")
	admin     = derive.ProgramID("admin")
	user      = derive.ProgramID("user")
	receiver  = derive.ProgramID("receiver")
	collector = derive.ProgramID("collector")

	ethKey = Key{OriginChain: "ETH", OriginContract: "0xabc", AssetID: 1}
)

// --- Test helpers ---

type fixture struct {
	l      *ledger.Ledger
	escrow *Escrow
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	db, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg.Admin = admin

	return &fixture{l: ledger.New(db), escrow: New(bridgeID, cfg)}
}

// run executes fn as one bridge request, committing only on success.
func (f *fixture) run(signers []derive.Address, fn func(txn *ledger.Txn) error) error {
	txn := f.l.Begin(bridgeID, signers...)

	if err := fn(txn); err != nil {
		txn.Discard()
		return err
	}

	return txn.Commit()
}

func (f *fixture) initRoot(t *testing.T) {
	t.Helper()

	err := f.run([]derive.Address{admin}, func(txn *ledger.Txn) error {
		_, err := f.escrow.InitializeEscrowRoot(txn)
		return err
	})
	if err != nil {
		t.Fatalf("InitializeEscrowRoot: %v", err)
	}
}

// mintNFT creates a unit-supply asset held by owner and returns its asset and holding.
func (f *fixture) mintNFT(t *testing.T, owner derive.Address, name string, maxSupply uint64) (derive.Address, derive.Address) {
	t.Helper()

	txn := f.l.Begin(mintingID, owner)
	_, at, _ := derive.Derive(mintingID, []byte("asset"), []byte(name))

	if _, err := txn.CreateAsset(at, ledger.AssetSpec{MaxSupply: maxSupply, MintAuthority: owner}); err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}

	h, err := txn.EnsureAssociatedHolding(owner, at.Address())
	if err != nil {
		t.Fatalf("EnsureAssociatedHolding: %v", err)
	}

	if err := txn.MintUnits(at.Address(), h, derive.Signer(owner), 1); err != nil {
		t.Fatalf("MintUnits: %v", err)
	}

	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	return at.Address(), h
}

func (f *fixture) fund(t *testing.T, addr derive.Address, amount uint64) {
	t.Helper()

	txn := f.l.Begin(mintingID)
	if err := txn.Credit(addr, amount); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func (f *fixture) lock(src derive.Address, fee uint64, payer, payee derive.Address, signers ...derive.Address) error {
	return f.run(signers, func(txn *ledger.Txn) error {
		_, err := f.escrow.Lock(txn, LockArgs{
			OriginChain:    ethKey.OriginChain,
			OriginContract: ethKey.OriginContract,
			AssetID:        ethKey.AssetID,
			FeeAmount:      fee,
			CollectionID:   "7",
			SrcAddress:     "0xsender",
			DstChain:       "ETH",
			DstAddress:     "0xdst",
			SourceHolding:  src,
			FeePayer:       payer,
			FeePayee:       payee,
		})
		return err
	})
}

func (f *fixture) unlock(txID string, to derive.Address, signers ...derive.Address) error {
	return f.run(signers, func(txn *ledger.Txn) error {
		_, err := f.escrow.Unlock(txn, UnlockArgs{
			OriginChain:    ethKey.OriginChain,
			OriginContract: ethKey.OriginContract,
			AssetID:        ethKey.AssetID,
			BridgeTxID:     txID,
			Receiver:       to,
		})
		return err
	})
}

func (f *fixture) custody(t *testing.T) *Custody {
	t.Helper()

	c, err := f.escrow.Custody(f.l.View(), ethKey)
	if err != nil {
		t.Fatalf("Custody: %v", err)
	}
	return c
}

// --- InitializeEscrowRoot ---

func TestInitializeEscrowRootIdempotent(t *testing.T) {
	f := newFixture(t, Config{})

	err := f.run([]derive.Address{user}, func(txn *ledger.Txn) error {
		_, err := f.escrow.InitializeEscrowRoot(txn)
		return err
	})
	if !errs.Is(err, errs.KindAuthority) {
		t.Fatalf("non-admin: got %v, want authority error", err)
	}

	f.initRoot(t)
	first, err := f.l.Storage().Get(rootKey(f.escrow))
	if err != nil || first == nil {
		t.Fatalf("root missing: %v", err)
	}

	f.initRoot(t)
	second, _ := f.l.Storage().Get(rootKey(f.escrow))

	if !bytes.Equal(first, second) {
		t.Error("second initialization changed persisted state")
	}
}

func rootKey(e *Escrow) []byte {
	addr := e.RootAddress()
	return addr[:]
}

// --- Lock and Unlock ---

func TestLockRequiresRoot(t *testing.T) {
	f := newFixture(t, Config{})
	_, src := f.mintNFT(t, user, "a", 1)

	if err := f.lock(src, 0, derive.Address{}, derive.Address{}, user); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("got %v, want not found", err)
	}
}

// TestLockUnlockCycle is the lock then unlock scenario for ETH/0xabc.
func TestLockUnlockCycle(t *testing.T) {
	f := newFixture(t, Config{})
	f.initRoot(t)
	asset, src := f.mintNFT(t, user, "a", 1)

	if c := f.custody(t); c.State != StateUnlocked || c.Record != nil {
		t.Fatalf("initial custody: %+v", c)
	}

	if err := f.unlock("", receiver, admin); !errs.Is(err, errs.KindInvariant) {
		t.Fatalf("unlock before lock: got %v, want invariant", err)
	}

	if err := f.lock(src, 0, derive.Address{}, derive.Address{}, user); err != nil {
		t.Fatalf("lock: %v", err)
	}

	c := f.custody(t)
	if c.State != StateLocked || c.Units != 1 || c.Asset != asset {
		t.Errorf("after lock: %+v", c)
	}
	if c.Record == nil || c.Record.AssetRef != asset {
		t.Errorf("record after lock: %+v", c.Record)
	}

	if err := f.lock(src, 0, derive.Address{}, derive.Address{}, user); !errs.Is(err, errs.KindInvariant) {
		t.Errorf("double lock: got %v, want invariant", err)
	}

	if err := f.unlock("tx-1", receiver, user); !errs.Is(err, errs.KindAuthority) {
		t.Errorf("non-admin unlock: got %v, want authority", err)
	}

	if err := f.unlock("tx-1", receiver, admin); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	c = f.custody(t)
	if c.State != StateUnlocked || c.Units != 0 {
		t.Errorf("after unlock: %+v", c)
	}

	h, err := f.l.View().Holding(ledger.AssociatedHolding(receiver, asset))
	if err != nil || h.Units != 1 {
		t.Errorf("receiver holding: %+v %v", h, err)
	}

	// relock by the receiver, then replay the same return instruction
	if err := f.lock(ledger.AssociatedHolding(receiver, asset), 0, derive.Address{}, derive.Address{}, receiver); err != nil {
		t.Fatalf("relock: %v", err)
	}

	if err := f.unlock("tx-1", receiver, admin); !errs.Is(err, errs.KindInvariant) {
		t.Errorf("replayed bridge tx: got %v, want invariant", err)
	}

	if err := f.unlock("tx-2", receiver, admin); err != nil {
		t.Errorf("fresh bridge tx: %v", err)
	}
}

func TestLockRequiresOwnerSignature(t *testing.T) {
	f := newFixture(t, Config{})
	f.initRoot(t)
	_, src := f.mintNFT(t, user, "a", 1)

	if err := f.lock(src, 0, derive.Address{}, derive.Address{}, receiver); !errs.Is(err, errs.KindAuthority) {
		t.Errorf("got %v, want authority", err)
	}

	if c := f.custody(t); c.Units != 0 {
		t.Errorf("failed lock left %d units in custody", c.Units)
	}
}

func TestLockRejectsFungibleAsset(t *testing.T) {
	f := newFixture(t, Config{})
	f.initRoot(t)
	_, src := f.mintNFT(t, user, "coin", 0)

	if err := f.lock(src, 0, derive.Address{}, derive.Address{}, user); !errs.Is(err, errs.KindMalformed) {
		t.Errorf("got %v, want malformed", err)
	}
}

// TestLockFeeFailureRollsBack verifies the NFT transfer is undone when the fee cannot be paid.
// --- Lock fees ---

func TestLockFeeFailureRollsBack(t *testing.T) {
	f := newFixture(t, Config{})
	f.initRoot(t)
	_, src := f.mintNFT(t, user, "a", 1)
	f.fund(t, user, 5)

	if err := f.lock(src, 10, user, collector, user); !errs.Is(err, errs.KindInvariant) {
		t.Fatalf("got %v, want invariant", err)
	}

	if c := f.custody(t); c.Units != 0 || c.Record != nil {
		t.Errorf("partial state after failed lock: %+v", c)
	}

	h, _ := f.l.View().Holding(src)
	if h.Units != 1 {
		t.Errorf("source holding has %d, want 1", h.Units)
	}
}

func TestLockNativeFee(t *testing.T) {
	f := newFixture(t, Config{FeeCollector: collector})
	f.initRoot(t)
	_, src := f.mintNFT(t, user, "a", 1)
	f.fund(t, user, 100)

	if err := f.lock(src, 10, user, receiver, user); !errs.Is(err, errs.KindAuthority) {
		t.Errorf("wrong payee: got %v, want authority", err)
	}

	if err := f.lock(src, 10, user, collector, user); err != nil {
		t.Fatalf("lock: %v", err)
	}

	view := f.l.View()
	paid, _ := view.Balance(user)
	got, _ := view.Balance(collector)

	if paid != 90 || got != 10 {
		t.Errorf("balances %d/%d, want 90/10", paid, got)
	}
}

// TestLockHoldingFee pays the fee in a fungible asset held by a third party who cosigns.
func TestLockHoldingFee(t *testing.T) {
	f := newFixture(t, Config{})
	f.initRoot(t)
	_, src := f.mintNFT(t, user, "a", 1)

	txn := f.l.Begin(mintingID, receiver)
	_, at, _ := derive.Derive(mintingID, []byte("fee-coin"))
	txn.CreateAsset(at, ledger.AssetSpec{Decimals: 6, MintAuthority: receiver})
	payer, _ := txn.EnsureAssociatedHolding(receiver, at.Address())
	payee, _ := txn.EnsureAssociatedHolding(collector, at.Address())
	if err := txn.MintUnits(at.Address(), payer, derive.Signer(receiver), 50); err != nil {
		t.Fatalf("MintUnits: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := f.lock(src, 20, payer, payee, user); !errs.Is(err, errs.KindAuthority) {
		t.Errorf("payer did not sign: got %v, want authority", err)
	}

	if err := f.lock(src, 20, payer, payee, user, receiver); err != nil {
		t.Fatalf("lock: %v", err)
	}

	h, _ := f.l.View().Holding(payee)
	if h.Units != 20 {
		t.Errorf("payee has %d, want 20", h.Units)
	}
}

// --- RecordAssetInfo ---

func TestRecordAssetInfo(t *testing.T) {
	f := newFixture(t, Config{})
	first := derive.ProgramID("asset-1")
	second := derive.ProgramID("asset-2")

	record := func(ref derive.Address, signer derive.Address) error {
		return f.run([]derive.Address{signer}, func(txn *ledger.Txn) error {
			return f.escrow.RecordAssetInfo(txn, ethKey, ref)
		})
	}

	if err := record(first, user); !errs.Is(err, errs.KindAuthority) {
		t.Errorf("non-admin: got %v, want authority", err)
	}

	if err := record(first, admin); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := record(second, admin); err != nil {
		t.Fatalf("record: %v", err)
	}

	if c := f.custody(t); c.Record == nil || c.Record.AssetRef != second {
		t.Errorf("record: %+v", c.Record)
	}
}

// TestPrefundedAddressesDoNotBlock funds every address a lock cycle derives
// before it is created; the bridge adopts them and keeps their balance.
func TestPrefundedAddressesDoNotBlock(t *testing.T) {
	f := newFixture(t, Config{})
	f.initRoot(t)
	asset, src := f.mintNFT(t, user, "a", 1)

	record, err := f.escrow.RecordAddress(ethKey)
	if err != nil {
		t.Fatalf("RecordAddress: %v", err)
	}
	slot, err := f.escrow.SlotAddress(ethKey)
	if err != nil {
		t.Fatalf("SlotAddress: %v", err)
	}
	receipt := f.escrow.ReceiptAddress("tx-1")

	for _, addr := range []derive.Address{record, slot, receipt} {
		f.fund(t, addr, 1)
	}

	if c := f.custody(t); c.State != StateUnlocked || c.Record != nil {
		t.Fatalf("custody over funded addresses: %+v", c)
	}

	if err := f.lock(src, 0, derive.Address{}, derive.Address{}, user); err != nil {
		t.Fatalf("lock after prefund: %v", err)
	}

	if c := f.custody(t); c.State != StateLocked || c.Record == nil || c.Record.AssetRef != asset {
		t.Errorf("custody after lock: %+v", c)
	}

	err = f.run([]derive.Address{admin}, func(txn *ledger.Txn) error {
		return f.escrow.RecordAssetInfo(txn, ethKey, asset)
	})
	if err != nil {
		t.Errorf("RecordAssetInfo after prefund: %v", err)
	}

	if err := f.unlock("tx-1", receiver, admin); err != nil {
		t.Fatalf("unlock after prefund: %v", err)
	}

	view := f.l.View()
	for _, addr := range []derive.Address{record, slot, receipt} {
		if bal, _ := view.Balance(addr); bal != 1 {
			t.Errorf("balance of %s is %d, want 1", addr.Short(), bal)
		}
	}
}

// --- Addresses and handlers ---

func TestDistinctAddresses(t *testing.T) {
	e := New(bridgeID, Config{})

	slot, _ := e.SlotAddress(ethKey)
	info, _ := e.RecordAddress(ethKey)

	if slot == info || slot == e.RootAddress() || info == e.RootAddress() {
		t.Error("custody, record and root addresses must differ")
	}

	other := ethKey
	other.OriginContract = "0xabd"
	if s2, _ := e.SlotAddress(other); s2 == slot {
		t.Error("different contracts must use different slots")
	}
}

func TestProgramHandlers(t *testing.T) {
	f := newFixture(t, Config{})
	p := NewProgram("bridge", f.escrow)

	if p.ID() != bridgeID || p.Name() != "bridge" {
		t.Errorf("identity: %s %s", p.ID(), p.Name())
	}

	handlers := p.Handlers()
	for _, fn := range []string{FnInitializeEscrowRoot, FnLock, FnUnlock, FnRecordAssetInfo} {
		if handlers[fn] == nil {
			t.Errorf("missing handler %s", fn)
		}
	}

	txn := f.l.Begin(bridgeID, admin)
	if err := handlers[FnLock](txn, []byte{1, 2}); !errs.Is(err, errs.KindMalformed) {
		t.Errorf("garbage args: got %v, want malformed", err)
	}

	args := borsh.Marshal(&RecordAssetInfoArgs{OriginChain: "ETH", OriginContract: "0xabc", AssetRef: receiver, AssetID: 1})
	if err := handlers[FnRecordAssetInfo](txn, args); err != nil {
		t.Fatalf("record_asset_info: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if c := f.custody(t); c.Record == nil || c.Record.AssetRef != receiver {
		t.Errorf("record: %+v", c.Record)
	}
}
