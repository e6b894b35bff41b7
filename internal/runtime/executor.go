// Package runtime executes signed requests against the ledger.
//
// Requests are serialized by one mutex. Each runs in its own ledger
// transaction; on success its writes and its receipt land in one batch, on
// failure only the failure receipt is stored.
package runtime

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"NftBridge/internal/borsh"
	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
	"NftBridge/internal/ledger"
	"NftBridge/internal/logger"
)

// Handler executes one program function inside a request transaction.
type Handler func(txn *ledger.Txn, args []byte) error

// Program is a set of handlers registered under one identity.
type Program interface {
	ID() derive.Address
	Name() string
	Handlers() map[string]Handler
}

var (
	ErrDuplicate       = errs.Invariant("request already executed")
	ErrUnknownProgram  = errs.NotFound("unknown program")
	ErrUnknownFunction = errs.NotFound("unknown function")
	ErrReceiptNotFound = errs.NotFound("receipt not found")
)

// ProgramInfo describes a registered program.
type ProgramInfo struct {
	ID        derive.Address
	Name      string
	Functions []string
}

type registered struct {
	name     string
	handlers map[string]Handler
}

// Executor runs requests one at a time.
type Executor struct {
	mu       sync.Mutex
	ledger   *ledger.Ledger
	programs map[derive.Address]*registered
	height   uint64
}

// NewExecutor creates an executor over l, resuming at the stored height.
func NewExecutor(l *ledger.Ledger) (*Executor, error) {
	height, err := loadHeight(l.Storage())
	if err != nil {
		return nil, err
	}

	return &Executor{
		ledger:   l,
		programs: make(map[derive.Address]*registered),
		height:   height,
	}, nil
}

// Ledger returns the ledger the executor writes to.
func (e *Executor) Ledger() *ledger.Ledger {
	return e.ledger
}

// Register adds a program. Identities and names must be unique.
func (e *Executor) Register(p Program) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.programs[p.ID()]; ok {
		return fmt.Errorf("program %s already registered", p.Name())
	}

	for _, r := range e.programs {
		if r.name == p.Name() {
			return fmt.Errorf("program name %q already registered", p.Name())
		}
	}

	e.programs[p.ID()] = &registered{name: p.Name(), handlers: p.Handlers()}

	logger.Debug("program registered", "name", p.Name(), "id", p.ID().Short(), "functions", len(p.Handlers()))

	return nil
}

// Programs lists the registered programs sorted by name.
func (e *Executor) Programs() []ProgramInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]ProgramInfo, 0, len(e.programs))
	for id, r := range e.programs {
		info := ProgramInfo{ID: id, Name: r.name}
		for fn := range r.handlers {
			info.Functions = append(info.Functions, fn)
		}
		sort.Strings(info.Functions)
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

// Height returns the number of executed requests.
func (e *Executor) Height() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.height
}

// Execute verifies and runs a serialized request.
// The returned error covers requests that were never executed: malformed
// envelopes, duplicates and storage failures. A request that ran and failed
// returns a receipt with Success false.
func (e *Executor) Execute(data []byte) (*Receipt, error) {
	req, err := ParseRequest(data)
	if err != nil {
		return nil, err
	}

	return e.ExecuteRequest(req)
}

// ExecuteRequest runs an already verified request.
func (e *Executor) ExecuteRequest(req *Request) (*Receipt, error) {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	exists, err := e.ledger.Storage().Has(receiptKey(req.Hash))
	if err != nil {
		return nil, fmt.Errorf("check duplicate:\n%w", err)
	}

	if exists {
		return nil, fmt.Errorf("request %x:\n%w", req.Hash[:8], ErrDuplicate)
	}

	rcpt := &Receipt{
		Hash:     req.Hash,
		Height:   e.height + 1,
		Program:  req.Program,
		Function: req.Function,
		Sender:   req.Sender,
	}

	txn := e.ledger.Begin(req.Program, req.Signers()...)

	runErr := e.run(txn, req)
	rcpt.Logs = txn.Logs()

	for _, line := range rcpt.Logs {
		logger.Debug("program log", "request", fmt.Sprintf("%x", req.Hash[:8]), "line", line)
	}

	if runErr == nil {
		rcpt.Success = true

		if err := txn.Commit(receiptWrites(rcpt)...); err != nil {
			return nil, err
		}
	} else {
		txn.Discard()

		rcpt.Kind = errs.KindOf(runErr).String()
		rcpt.Error = runErr.Error()

		if err := e.ledger.Storage().Apply(receiptWrites(rcpt)); err != nil {
			return nil, fmt.Errorf("store failure receipt:\n%w", err)
		}
	}

	e.height = rcpt.Height

	logger.Info("request executed",
		"request", fmt.Sprintf("%x", req.Hash[:8]),
		"call", req.String(),
		"success", rcpt.Success,
		"kind", rcpt.Kind,
		logger.Timed(start),
	)

	return rcpt, nil
}

// run dispatches req to its handler and converts a panic into an error.
func (e *Executor) run(txn *ledger.Txn, req *Request) (err error) {
	prog, ok := e.programs[req.Program]
	if !ok {
		return fmt.Errorf("program %s:\n%w", req.Program.Short(), ErrUnknownProgram)
	}

	handler, ok := prog.handlers[req.Function]
	if !ok {
		return fmt.Errorf("%s.%s:\n%w", prog.name, req.Function, ErrUnknownFunction)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("handler panicked", "program", prog.name, "function", req.Function, "panic", r)
			err = fmt.Errorf("%s.%s panicked: %v", prog.name, req.Function, r)
		}
	}()

	return handler(txn, req.Args)
}

// Receipt returns the receipt of an executed request.
func (e *Executor) Receipt(hash [32]byte) (*Receipt, error) {
	data, err := e.ledger.Storage().Get(receiptKey(hash))
	if err != nil {
		return nil, fmt.Errorf("read receipt:\n%w", err)
	}

	if data == nil {
		return nil, fmt.Errorf("%x:\n%w", hash[:8], ErrReceiptNotFound)
	}

	var r Receipt
	if err := borsh.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode receipt:\n%w", err)
	}

	return &r, nil
}

// Reload re-reads the stored height, after the store was replaced by a snapshot import.
func (e *Executor) Reload() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	height, err := loadHeight(e.ledger.Storage())
	if err != nil {
		return err
	}

	e.height = height

	return nil
}
