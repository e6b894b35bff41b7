package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"os"

	"NftBridge/internal/derive"
)

// Config holds the node configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string

	// KeyPath is the path to the administrator's Ed25519 private key file.
	KeyPath string

	// AdminKey is the administrator's signing key, loaded from KeyPath.
	AdminKey ed25519.PrivateKey

	// FeeCollector is the hex address every lock fee must be paid to; empty accepts any payee.
	FeeCollector string

	// Bootstrap applies the genesis requests on start.
	Bootstrap bool

	// InitialMint is the native balance minted to the administrator at genesis.
	InitialMint uint64

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// RestorePath is an optional snapshot file imported into an empty store before start.
	RestorePath string

	// SystemName, BridgeName and CollectionName are the registered program names.
	SystemName     string
	BridgeName     string
	CollectionName string
}

// parseFlags parses command-line flags into Config.
func parseFlags(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("node", flag.ContinueOnError)
	fs.StringVar(&cfg.DataPath, "data", "./data", "Data directory path")
	fs.StringVar(&cfg.HTTPAddress, "http", ":8080", "HTTP API address")
	fs.StringVar(&cfg.KeyPath, "key", "", "Administrator Ed25519 private key path (generates new if missing)")
	fs.StringVar(&cfg.FeeCollector, "fee-collector", "", "Hex address that must receive lock fees")
	fs.BoolVar(&cfg.Bootstrap, "bootstrap", true, "Apply genesis requests on start")
	fs.Uint64Var(&cfg.InitialMint, "initial-mint", 1_000_000_000, "Native balance minted to the administrator at genesis")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.RestorePath, "restore", "", "Snapshot file to import into an empty store")
	fs.StringVar(&cfg.SystemName, "system-program", "system", "System program name")
	fs.StringVar(&cfg.BridgeName, "bridge-program", "bridge", "Bridge program name")
	fs.StringVar(&cfg.CollectionName, "collection-program", "collection", "Collection program name")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return cfg, nil
}

// feeCollector parses the configured fee collector; zero when unset.
func (c *Config) feeCollector() (derive.Address, error) {
	if c.FeeCollector == "" {
		return derive.Address{}, nil
	}
	return derive.ParseAddress(c.FeeCollector)
}

// adminAddress returns the administrator's ledger address.
func (c *Config) adminAddress() derive.Address {
	var a derive.Address
	copy(a[:], c.AdminKey.Public().(ed25519.PublicKey))
	return a
}

// loadOrGenerateKey loads the private key from file or generates a new one.
func loadOrGenerateKey(keyPath string) (ed25519.PrivateKey, error) {
	if keyPath == "" {
		return generateNewKey()
	}

	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return generateAndSaveKey(keyPath)
	}

	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

// generateNewKey creates a new Ed25519 private key.
func generateNewKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return priv, nil
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (ed25519.PrivateKey, error) {
	priv, err := generateNewKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	return priv, nil
}
