package client

import (
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"NftBridge/internal/api"
	"NftBridge/internal/bridge"
	"NftBridge/internal/collection"
	"NftBridge/internal/derive"
	"NftBridge/internal/ledger"
	"NftBridge/internal/runtime"
	"NftBridge/internal/storage"
	"NftBridge/internal/system"
)

// startNode runs an in-process node administered by admin.
func startNode(t *testing.T, admin *Wallet) string {
	t.Helper()

	db, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ex, err := runtime.NewExecutor(ledger.New(db))
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	escrow := bridge.New(derive.ProgramID("bridge"), bridge.Config{Admin: admin.Address()})
	ctrl := collection.New(derive.ProgramID("collection"), collection.Config{Admin: admin.Address()})

	for _, p := range []runtime.Program{
		system.NewProgram("system", system.Config{Admin: admin.Address()}),
		bridge.NewProgram("bridge", escrow),
		collection.NewProgram("collection", ctrl),
	} {
		if err := ex.Register(p); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	srv := httptest.NewServer(api.New(":0", api.Backend{Executor: ex, Escrow: escrow, Collection: ctrl}).Handler())
	t.Cleanup(srv.Close)

	return srv.URL
}

func TestNewClientResolvesPrograms(t *testing.T) {
	url := startNode(t, NewWallet())

	c, err := NewClient(url)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if c.BridgeID() != derive.ProgramID("bridge") || c.SystemID() != derive.ProgramID("system") {
		t.Error("program ids not resolved")
	}

	names := DefaultNames()
	names.Bridge = "missing"
	if _, err := NewClientWithNames(url, names); err == nil {
		t.Error("expected error for unregistered program")
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:8080":     "http://127.0.0.1:8080",
		"http://node:1/":     "http://node:1",
		"https://node.local": "https://node.local",
	}

	for in, want := range cases {
		if got := normalizeURL(in); got != want {
			t.Errorf("normalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadWallet(t *testing.T) {
	dir := t.TempDir()
	w := NewWallet()

	raw := filepath.Join(dir, "raw.key")
	if err := w.Save(raw); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadWallet(raw)
	if err != nil || loaded.Address() != w.Address() {
		t.Errorf("raw key: %v", err)
	}

	hexPath := filepath.Join(dir, "hex.key")
	os.WriteFile(hexPath, []byte(hex.EncodeToString(w.Key())+"\n"), 0600)

	loaded, err = LoadWallet(hexPath)
	if err != nil || loaded.Address() != w.Address() {
		t.Errorf("hex key: %v", err)
	}

	bad := filepath.Join(dir, "bad.key")
	os.WriteFile(bad, []byte("short"), 0600)

	if _, err := LoadWallet(bad); err == nil {
		t.Error("expected error for invalid key file")
	}
}

func TestMintAndQuery(t *testing.T) {
	admin := NewWallet()
	c, err := NewClient(startNode(t, admin))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	rv, err := admin.MintNative(c, admin.Address(), 100)
	if err != nil {
		t.Fatalf("MintNative: %v", err)
	}

	var hash [32]byte
	raw, _ := hex.DecodeString(rv.Hash)
	copy(hash[:], raw)

	stored, err := c.Receipt(hash)
	if err != nil || stored.Height != rv.Height {
		t.Errorf("Receipt: %+v %v", stored, err)
	}

	acc, err := c.Account(admin.Address())
	if err != nil || acc.Balance != 100 {
		t.Errorf("Account: %+v %v", acc, err)
	}

	_, err = c.Account(derive.ProgramID("nobody"))

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Kind != "NotFound" {
		t.Errorf("missing account: %v", err)
	}
}

func TestFailedRequestReturnsReceipt(t *testing.T) {
	admin := NewWallet()
	c, _ := NewClient(startNode(t, admin))

	outsider := NewWallet()

	rv, err := outsider.MintNative(c, outsider.Address(), 1)

	var reqErr *RequestError
	if !errors.As(err, &reqErr) || rv == nil || rv.Kind != "AuthorityError" {
		t.Errorf("got %+v %v, want authority failure receipt", rv, err)
	}
}

func TestLockThroughClient(t *testing.T) {
	admin := NewWallet()
	c, _ := NewClient(startNode(t, admin))

	if _, err := admin.InitializeEscrowRoot(c); err != nil {
		t.Fatalf("InitializeEscrowRoot: %v", err)
	}

	owner := NewWallet()

	asset, err := owner.CreateNFT(c, "art-1")
	if err != nil {
		t.Fatalf("CreateNFT: %v", err)
	}

	_, err = owner.Lock(c, bridge.LockArgs{
		OriginChain:    "ETH",
		OriginContract: "0xabc",
		AssetID:        1,
		SourceHolding:  ledger.AssociatedHolding(owner.Address(), asset),
	})
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	cv, err := c.Custody("ETH", "0xabc", 1)
	if err != nil || cv.State != "locked" || cv.AssetRef != asset.String() {
		t.Errorf("Custody: %+v %v", cv, err)
	}

	_, err = admin.Unlock(c, bridge.UnlockArgs{
		OriginChain:    "ETH",
		OriginContract: "0xabc",
		AssetID:        1,
		BridgeTxID:     "0xfeed",
		Receiver:       owner.Address(),
	})
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	acc, err := c.Account(ledger.AssociatedHolding(owner.Address(), asset))
	if err != nil || acc.Holding == nil || acc.Holding.Units != 1 {
		t.Errorf("owner holding: %+v %v", acc, err)
	}
}

func TestSnapshotDownload(t *testing.T) {
	admin := NewWallet()
	c, _ := NewClient(startNode(t, admin))

	admin.MintNative(c, admin.Address(), 5)

	data, checksum, err := c.Snapshot()
	if err != nil || len(data) == 0 || len(checksum) != 64 {
		t.Errorf("Snapshot: %d bytes, checksum %q, %v", len(data), checksum, err)
	}
}
