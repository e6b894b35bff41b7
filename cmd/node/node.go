package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"NftBridge/internal/api"
	"NftBridge/internal/bridge"
	"NftBridge/internal/collection"
	"NftBridge/internal/derive"
	"NftBridge/internal/genesis"
	"NftBridge/internal/ledger"
	"NftBridge/internal/logger"
	"NftBridge/internal/runtime"
	"NftBridge/internal/snapshot"
	"NftBridge/internal/storage"
	"NftBridge/internal/system"
)

// Node represents a running bridge node.
type Node struct {
	cfg      *Config
	storage  *storage.Storage
	executor *runtime.Executor
	system   *system.Program
	escrow   *bridge.Escrow
	ctrl     *collection.Controller
	api      *api.Server
}

// NewNode creates and initializes a new node.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{cfg: cfg}

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	if err := n.restoreSnapshot(); err != nil {
		n.Close()
		return nil, err
	}

	if err := n.initPrograms(); err != nil {
		n.Close()
		return nil, err
	}

	if err := n.applyGenesis(); err != nil {
		n.Close()
		return nil, err
	}

	n.api = api.New(cfg.HTTPAddress, api.Backend{
		Executor:   n.executor,
		Escrow:     n.escrow,
		Collection: n.ctrl,
	})

	return n, nil
}

// initStorage initializes the Pebble storage.
func (n *Node) initStorage() error {
	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.New(filepath.Join(n.cfg.DataPath, "db"))
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	n.storage = db

	return nil
}

// restoreSnapshot imports the configured snapshot into the empty store.
func (n *Node) restoreSnapshot() error {
	if n.cfg.RestorePath == "" {
		return nil
	}

	data, err := os.ReadFile(n.cfg.RestorePath)
	if err != nil {
		return fmt.Errorf("read snapshot:\n%w", err)
	}

	info, err := snapshot.Restore(n.storage, data)
	if err != nil {
		return fmt.Errorf("restore snapshot:\n%w", err)
	}

	logger.Info("snapshot restored",
		"path", n.cfg.RestorePath,
		"entries", info.Entries,
		"accounts", info.Accounts,
		"checksum", fmt.Sprintf("%x", info.Checksum[:8]),
	)

	return nil
}

// initPrograms creates the executor and registers the three programs.
func (n *Node) initPrograms() error {
	ex, err := runtime.NewExecutor(ledger.New(n.storage))
	if err != nil {
		return fmt.Errorf("init executor:\n%w", err)
	}

	admin := n.cfg.adminAddress()

	collector, err := n.cfg.feeCollector()
	if err != nil {
		return fmt.Errorf("fee collector:\n%w", err)
	}

	n.system = system.NewProgram(n.cfg.SystemName, system.Config{Admin: admin})
	n.escrow = bridge.New(derive.ProgramID(n.cfg.BridgeName), bridge.Config{Admin: admin, FeeCollector: collector})
	n.ctrl = collection.New(derive.ProgramID(n.cfg.CollectionName), collection.Config{Admin: admin})

	for _, p := range []runtime.Program{
		n.system,
		bridge.NewProgram(n.cfg.BridgeName, n.escrow),
		collection.NewProgram(n.cfg.CollectionName, n.ctrl),
	} {
		if err := ex.Register(p); err != nil {
			return fmt.Errorf("register %s:\n%w", p.Name(), err)
		}
	}

	n.executor = ex

	return nil
}

// applyGenesis runs the bootstrap requests; already applied ones are skipped.
func (n *Node) applyGenesis() error {
	if !n.cfg.Bootstrap {
		return nil
	}

	_, err := genesis.Apply(n.executor, genesis.Config{
		AdminKey:    n.cfg.AdminKey,
		InitialMint: n.cfg.InitialMint,
		SystemID:    n.system.ID(),
		BridgeID:    n.escrow.Program(),
	})

	return err
}

// Run starts the node and blocks until shutdown signal.
func (n *Node) Run() error {
	if err := n.api.Start(); err != nil {
		return fmt.Errorf("start api:\n%w", err)
	}

	logger.Info("node ready",
		"height", n.executor.Height(),
		"escrow_root", n.escrow.RootAddress().String(),
	)

	return n.waitForShutdown()
}

// waitForShutdown blocks until SIGINT or SIGTERM, then closes the node.
func (n *Node) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return n.Close()
}

// Close shuts down all node components gracefully.
func (n *Node) Close() error {
	if n.api != nil {
		n.api.Stop()
	}

	if n.storage != nil {
		n.storage.Close()
	}

	return nil
}
