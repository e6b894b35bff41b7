package runtime

import (
	"crypto/ed25519"
	"testing"

	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
	"NftBridge/internal/ledger"
	"NftBridge/internal/storage"
)

// toyProgram credits the sender and can fail or panic on demand.
type toyProgram struct{}

var toyID = derive.ProgramID("toy")

func (toyProgram) ID() derive.Address { return toyID }
func (toyProgram) Name() string       { return "toy" }

func (toyProgram) Handlers() map[string]Handler {
	return map[string]Handler{
		"credit": func(txn *ledger.Txn, args []byte) error {
			txn.Logf("crediting %s", txn.Sender().Short())
			return txn.Credit(txn.Sender(), 10)
		},
		"credit_then_fail": func(txn *ledger.Txn, args []byte) error {
			if err := txn.Credit(txn.Sender(), 10); err != nil {
				return err
			}
			return errs.Invariant("refused after write")
		},
		"boom": func(txn *ledger.Txn, args []byte) error {
			panic("boom")
		},
		"cosigned": func(txn *ledger.Txn, args []byte) error {
			if len(txn.Signers()) != 2 {
				return errs.Authority("want two signers, got %d", len(txn.Signers()))
			}
			return txn.Credit(txn.Signers()[1], 1)
		},
	}
}

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv
}

func addrOf(priv ed25519.PrivateKey) derive.Address {
	var a derive.Address
	copy(a[:], priv.Public().(ed25519.PublicKey))
	return a
}

func newExecutor(t *testing.T) *Executor {
	t.Helper()

	db, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ex, err := NewExecutor(ledger.New(db))
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	if err := ex.Register(toyProgram{}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	return ex
}

func balance(t *testing.T, ex *Executor, addr derive.Address) uint64 {
	t.Helper()

	b, err := ex.Ledger().View().Balance(addr)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	return b
}

func TestBuildParseRoundTrip(t *testing.T) {
	sender := newKey(t)
	cosigner := newKey(t)

	data, hash := BuildRequest(toyID, "credit", []byte{1, 2, 3}, 42, sender, cosigner)

	req, err := ParseRequest(data)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}

	if req.Hash != hash || req.Sender != addrOf(sender) || req.Program != toyID ||
		req.Function != "credit" || req.Nonce != 42 || string(req.Args) != "\x01\x02\x03" {
		t.Errorf("unexpected request: %+v", req)
	}

	if len(req.Cosigners) != 1 || req.Cosigners[0] != addrOf(cosigner) {
		t.Errorf("cosigners: %v", req.Cosigners)
	}
}

func TestParseRejectsTampering(t *testing.T) {
	data, _ := BuildRequest(toyID, "credit", []byte("args"), 1, newKey(t))

	// flip the last byte of the args payload
	tampered := append([]byte(nil), data...)
	idx := -1
	for i := len(tampered) - 4; i >= 0; i-- {
		if string(tampered[i:i+4]) == "args" {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.Fatal("args not found in envelope")
	}
	tampered[idx] ^= 0xFF

	if _, err := ParseRequest(tampered); !errs.Is(err, errs.KindMalformed) {
		t.Errorf("tampered args: got %v, want malformed", err)
	}

	if _, err := ParseRequest([]byte{1, 2, 3}); !errs.Is(err, errs.KindMalformed) {
		t.Errorf("short input: got %v", err)
	}

	if _, err := ParseRequest(make([]byte, 64)); !errs.Is(err, errs.KindMalformed) {
		t.Errorf("garbage input: got %v", err)
	}
}

func TestParseRejectsDuplicateSigner(t *testing.T) {
	key := newKey(t)
	data, _ := BuildRequest(toyID, "credit", nil, 1, key, key)

	if _, err := ParseRequest(data); !errs.Is(err, errs.KindMalformed) {
		t.Errorf("got %v, want malformed", err)
	}
}

func TestExecuteCommitsWithReceipt(t *testing.T) {
	ex := newExecutor(t)
	key := newKey(t)

	data, hash := BuildRequest(toyID, "credit", nil, 1, key)

	rcpt, err := ex.Execute(data)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !rcpt.Success || rcpt.Height != 1 || len(rcpt.Logs) != 1 {
		t.Errorf("receipt: %+v", rcpt)
	}

	if got := balance(t, ex, addrOf(key)); got != 10 {
		t.Errorf("balance %d, want 10", got)
	}

	stored, err := ex.Receipt(hash)
	if err != nil || !stored.Success || stored.Logs[0] != rcpt.Logs[0] {
		t.Errorf("stored receipt: %+v %v", stored, err)
	}

	if _, err := ex.Execute(data); !errs.Is(err, errs.KindInvariant) {
		t.Errorf("duplicate: got %v, want invariant", err)
	}

	if got := balance(t, ex, addrOf(key)); got != 10 {
		t.Errorf("duplicate changed balance to %d", got)
	}
}

// TestExecuteFailureDiscardsWrites verifies a failed request keeps only its receipt.
func TestExecuteFailureDiscardsWrites(t *testing.T) {
	ex := newExecutor(t)
	key := newKey(t)

	data, hash := BuildRequest(toyID, "credit_then_fail", nil, 1, key)

	rcpt, err := ex.Execute(data)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if rcpt.Success || rcpt.Kind != "InvariantViolation" {
		t.Errorf("receipt: %+v", rcpt)
	}

	if got := balance(t, ex, addrOf(key)); got != 0 {
		t.Errorf("failed request left balance %d", got)
	}

	if _, err := ex.Receipt(hash); err != nil {
		t.Errorf("failure receipt missing: %v", err)
	}

	if ex.Height() != 1 {
		t.Errorf("height %d, want 1", ex.Height())
	}
}

func TestExecutePanicRecovered(t *testing.T) {
	ex := newExecutor(t)
	data, _ := BuildRequest(toyID, "boom", nil, 1, newKey(t))

	rcpt, err := ex.Execute(data)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if rcpt.Success || rcpt.Kind != "Unknown" {
		t.Errorf("receipt: %+v", rcpt)
	}
}

func TestExecuteUnknownTargets(t *testing.T) {
	ex := newExecutor(t)

	data, _ := BuildRequest(toyID, "missing", nil, 1, newKey(t))
	rcpt, err := ex.Execute(data)
	if err != nil || rcpt.Kind != "NotFound" {
		t.Errorf("unknown function: %+v %v", rcpt, err)
	}

	data, _ = BuildRequest(derive.ProgramID("nope"), "credit", nil, 1, newKey(t))
	rcpt, err = ex.Execute(data)
	if err != nil || rcpt.Kind != "NotFound" {
		t.Errorf("unknown program: %+v %v", rcpt, err)
	}
}

func TestExecuteCosigners(t *testing.T) {
	ex := newExecutor(t)
	sender, cosigner := newKey(t), newKey(t)

	data, _ := BuildRequest(toyID, "cosigned", nil, 1, sender, cosigner)

	rcpt, err := ex.Execute(data)
	if err != nil || !rcpt.Success {
		t.Fatalf("Execute: %+v %v", rcpt, err)
	}

	if got := balance(t, ex, addrOf(cosigner)); got != 1 {
		t.Errorf("cosigner balance %d, want 1", got)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	ex := newExecutor(t)

	if err := ex.Register(toyProgram{}); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	progs := ex.Programs()
	if len(progs) != 1 || progs[0].Name != "toy" || len(progs[0].Functions) != 4 {
		t.Errorf("programs: %+v", progs)
	}
}

func TestHeightSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	db, err := storage.New(dir)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}

	ex, _ := NewExecutor(ledger.New(db))
	ex.Register(toyProgram{})

	data, _ := BuildRequest(toyID, "credit", nil, 1, newKey(t))
	if _, err := ex.Execute(data); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	db.Close()

	db, err = storage.New(dir)
	if err != nil {
		t.Fatalf("reopen storage: %v", err)
	}
	defer db.Close()

	ex, err = NewExecutor(ledger.New(db))
	if err != nil || ex.Height() != 1 {
		t.Errorf("height after restart: %d %v", ex.Height(), err)
	}
}
