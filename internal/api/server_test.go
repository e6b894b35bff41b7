package api

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"NftBridge/internal/borsh"
	"NftBridge/internal/bridge"
	"NftBridge/internal/collection"
	"NftBridge/internal/derive"
	"NftBridge/internal/ledger"
	"NftBridge/internal/runtime"
	"NftBridge/internal/snapshot"
	"NftBridge/internal/storage"
	"NftBridge/internal/system"
)

type testNode struct {
	srv    *httptest.Server
	ex     *runtime.Executor
	sys    *system.Program
	escrow *bridge.Escrow
	coll   *collection.Controller
	admin  ed25519.PrivateKey
	nonce  uint64
}

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv
}

func addrOf(key ed25519.PrivateKey) derive.Address {
	var a derive.Address
	copy(a[:], key.Public().(ed25519.PublicKey))
	return a
}

func newTestNode(t *testing.T) *testNode {
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

	n := &testNode{ex: ex, admin: newKey(t)}
	admin := addrOf(n.admin)

	n.sys = system.NewProgram("system", system.Config{Admin: admin})
	n.escrow = bridge.New(derive.ProgramID("bridge"), bridge.Config{Admin: admin})
	n.coll = collection.New(derive.ProgramID("collection"), collection.Config{Admin: admin})

	for _, p := range []runtime.Program{
		n.sys,
		bridge.NewProgram("bridge", n.escrow),
		collection.NewProgram("collection", n.coll),
	} {
		if err := ex.Register(p); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	server := New(":0", Backend{Executor: ex, Escrow: n.escrow, Collection: n.coll})
	n.srv = httptest.NewServer(server.Handler())
	t.Cleanup(n.srv.Close)

	return n
}

// build signs a request with a fresh nonce.
func (n *testNode) build(program derive.Address, fn string, args borsh.Marshaler, sender ed25519.PrivateKey, cosigners ...ed25519.PrivateKey) []byte {
	n.nonce++

	var raw []byte
	if args != nil {
		raw = borsh.Marshal(args)
	}

	data, _ := runtime.BuildRequest(program, fn, raw, n.nonce, sender, cosigners...)
	return data
}

// submit posts data and decodes the response body into out.
func (n *testNode) submit(t *testing.T, data []byte, out any) int {
	t.Helper()

	resp, err := http.Post(n.srv.URL+"/tx", "application/octet-stream", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST /tx: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}

	return resp.StatusCode
}

// mustSucceed submits data and fails the test unless the request succeeded.
func (n *testNode) mustSucceed(t *testing.T, data []byte) ReceiptView {
	t.Helper()

	var rv ReceiptView
	if code := n.submit(t, data, &rv); code != http.StatusOK || !rv.Success {
		t.Fatalf("request failed: status %d receipt %+v", code, rv)
	}
	return rv
}

func (n *testNode) get(t *testing.T, path string, out any) int {
	t.Helper()

	resp, err := http.Get(n.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}

	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	n := newTestNode(t)

	resp, err := http.Get(n.srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	if resp.Header.Get(requestIDHeader) == "" {
		t.Error("expected a request id header")
	}
}

func TestRequestIDEchoed(t *testing.T) {
	n := newTestNode(t)

	req, _ := http.NewRequest("GET", n.srv.URL+"/health", nil)
	req.Header.Set(requestIDHeader, "trace-1")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get(requestIDHeader); got != "trace-1" {
		t.Errorf("request id %q, want trace-1", got)
	}
}

func TestSubmitAndReceipt(t *testing.T) {
	n := newTestNode(t)
	admin := addrOf(n.admin)

	data := n.build(n.sys.ID(), system.FnMintNative, &system.NativeArgs{To: admin, Amount: 500}, n.admin)
	rv := n.mustSucceed(t, data)

	if rv.Height != 1 || rv.Function != system.FnMintNative || rv.Sender != admin.String() {
		t.Errorf("receipt: %+v", rv)
	}

	var stored ReceiptView
	if code := n.get(t, "/tx/"+rv.Hash, &stored); code != http.StatusOK || stored.Hash != rv.Hash {
		t.Errorf("GET receipt: %d %+v", code, stored)
	}

	var errBody map[string]string
	if code := n.submit(t, data, &errBody); code != http.StatusConflict || errBody["kind"] != "InvariantViolation" {
		t.Errorf("duplicate: %d %v", code, errBody)
	}

	var acc AccountView
	if code := n.get(t, "/accounts/"+admin.String(), &acc); code != http.StatusOK || acc.Balance != 500 || acc.Kind != "system" {
		t.Errorf("account: %d %+v", code, acc)
	}
}

func TestSubmitFailureReceipt(t *testing.T) {
	n := newTestNode(t)
	outsider := newKey(t)

	data := n.build(n.sys.ID(), system.FnMintNative, &system.NativeArgs{To: addrOf(outsider), Amount: 1}, outsider)

	var rv ReceiptView
	if code := n.submit(t, data, &rv); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}

	if rv.Success || rv.Kind != "AuthorityError" || rv.Error == "" {
		t.Errorf("receipt: %+v", rv)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	n := newTestNode(t)

	if code := n.submit(t, []byte("garbage envelope"), nil); code != http.StatusBadRequest {
		t.Errorf("garbage: status %d, want 400", code)
	}

	if code := n.submit(t, nil, nil); code != http.StatusBadRequest {
		t.Errorf("empty: status %d, want 400", code)
	}
}

func TestQueryErrors(t *testing.T) {
	n := newTestNode(t)

	cases := []struct {
		path string
		code int
	}{
		{"/tx/zz", http.StatusBadRequest},
		{"/tx/" + hex.EncodeToString(make([]byte, 32)), http.StatusNotFound},
		{"/accounts/abc", http.StatusBadRequest},
		{"/accounts/" + derive.ProgramID("nobody").String(), http.StatusNotFound},
		{"/bridge/custody?chain=ETH&contract=0xabc&id=x", http.StatusBadRequest},
		{"/bridge/custody?chain=&contract=0xabc&id=1", http.StatusBadRequest},
		{"/collection/mirror?chain=ETH", http.StatusBadRequest},
		{"/collection/item?chain=ETH&contract=0xabc&id=1", http.StatusNotFound},
	}

	for _, tc := range cases {
		if code := n.get(t, tc.path, nil); code != tc.code {
			t.Errorf("%s: status %d, want %d", tc.path, code, tc.code)
		}
	}
}

func TestCustodyAfterLock(t *testing.T) {
	n := newTestNode(t)
	owner := newKey(t)

	n.mustSucceed(t, n.build(n.escrow.Program(), bridge.FnInitializeEscrowRoot, nil, n.admin))
	n.mustSucceed(t, n.build(n.sys.ID(), system.FnCreateAsset, &system.CreateAssetArgs{Seed: "nft", MaxSupply: 1}, owner))

	asset, _ := system.AssetAddress(n.sys.ID(), addrOf(owner), "nft")
	n.mustSucceed(t, n.build(n.sys.ID(), system.FnMintTo, &system.MintToArgs{Asset: asset, Owner: addrOf(owner), Units: 1}, owner))

	lock := &bridge.LockArgs{
		OriginChain:    "ETH",
		OriginContract: "0xabc",
		AssetID:        7,
		SourceHolding:  ledger.AssociatedHolding(addrOf(owner), asset),
	}
	n.mustSucceed(t, n.build(n.escrow.Program(), bridge.FnLock, lock, owner))

	var cv CustodyView
	if code := n.get(t, "/bridge/custody?chain=ETH&contract=0xabc&id=7", &cv); code != http.StatusOK {
		t.Fatalf("custody status %d", code)
	}

	if cv.State != "locked" || cv.Units != 1 || cv.AssetRef != asset.String() {
		t.Errorf("custody: %+v", cv)
	}

	var acc AccountView
	n.get(t, "/accounts/"+cv.Slot, &acc)
	if acc.Holding == nil || acc.Holding.Owner != n.escrow.RootAddress().String() {
		t.Errorf("slot account: %+v", acc)
	}
}

func TestMirrorQuery(t *testing.T) {
	n := newTestNode(t)

	args := &collection.CollectionArgs{URI: "https://x/c.json", Name: "Mirror", Symbol: "MIR", OriginChain: "ETH", OriginContract: "0xabc"}
	n.mustSucceed(t, n.build(n.coll.Program(), collection.FnRecordCollectionOrigin,
		&collection.OriginArgs{OriginChain: "ETH", OriginContract: "0xabc"}, n.admin))
	n.mustSucceed(t, n.build(n.coll.Program(), collection.FnCreateMirrorCollection, args, n.admin))

	var mv MirrorView
	if code := n.get(t, "/collection/mirror?chain=ETH&contract=0xabc", &mv); code != http.StatusOK {
		t.Fatalf("mirror status %d", code)
	}

	if !mv.Recorded || mv.Supply != 1 || !mv.HasMetadata || !mv.HasEdition || !mv.CreatorSigned {
		t.Errorf("mirror: %+v", mv)
	}
}

func TestStatusAndSnapshot(t *testing.T) {
	n := newTestNode(t)

	n.mustSucceed(t, n.build(n.sys.ID(), system.FnMintNative, &system.NativeArgs{To: addrOf(n.admin), Amount: 9}, n.admin))

	var status struct {
		Height   uint64        `json:"height"`
		Programs []programView `json:"programs"`
	}
	if code := n.get(t, "/status", &status); code != http.StatusOK || status.Height != 1 || len(status.Programs) != 3 {
		t.Errorf("status: %d %+v", code, status)
	}

	resp, err := http.Get(n.srv.URL + "/snapshot")
	if err != nil {
		t.Fatalf("GET /snapshot: %v", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)

	info, err := snapshot.Inspect(data)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}

	if got := resp.Header.Get(checksumHeader); got != fmt.Sprintf("%x", info.Checksum) {
		t.Errorf("checksum header %q", got)
	}

	if info.Accounts != 1 {
		t.Errorf("snapshot accounts %d, want 1", info.Accounts)
	}
}

func TestStatusFor(t *testing.T) {
	if statusFor(ledger.ErrUnauthorized) != http.StatusForbidden {
		t.Error("authority errors map to 403")
	}
	if statusFor(fmt.Errorf("io")) != http.StatusInternalServerError {
		t.Error("unknown errors map to 500")
	}
}
