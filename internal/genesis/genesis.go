// Package genesis builds and applies the bootstrap requests of a fresh node.
package genesis

import (
	"crypto/ed25519"
	"fmt"

	"NftBridge/internal/borsh"
	"NftBridge/internal/bridge"
	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
	"NftBridge/internal/logger"
	"NftBridge/internal/runtime"
	"NftBridge/internal/system"
)

// Config holds the genesis configuration for bootstrapping a node.
type Config struct {
	// AdminKey is the administrator's Ed25519 private key. It signs every genesis request.
	AdminKey ed25519.PrivateKey

	// InitialMint is the native balance credited to the administrator. Zero skips the mint.
	InitialMint uint64

	// SystemID is the identity of the system program.
	SystemID derive.Address

	// BridgeID is the identity of the bridge program.
	BridgeID derive.Address
}

// BuildRequests creates the genesis requests: the administrator mint and the
// escrow root initialization. The nonce is fixed, so the hashes are the same
// for the same configuration.
func BuildRequests(cfg Config) ([][]byte, error) {
	if cfg.AdminKey == nil {
		return nil, fmt.Errorf("admin key is required")
	}

	if len(cfg.AdminKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid admin key size: %d", len(cfg.AdminKey))
	}

	admin := AdminAddress(cfg.AdminKey)

	var reqs [][]byte

	if cfg.InitialMint > 0 {
		args := borsh.Marshal(&system.NativeArgs{To: admin, Amount: cfg.InitialMint})
		mint, _ := runtime.BuildRequest(cfg.SystemID, system.FnMintNative, args, 0, cfg.AdminKey)
		reqs = append(reqs, mint)
	}

	root, _ := runtime.BuildRequest(cfg.BridgeID, bridge.FnInitializeEscrowRoot, nil, 0, cfg.AdminKey)
	reqs = append(reqs, root)

	return reqs, nil
}

// Apply executes the genesis requests. Requests already executed on this
// store are skipped; any request that runs and fails aborts the bootstrap.
func Apply(ex *runtime.Executor, cfg Config) (applied int, err error) {
	reqs, err := BuildRequests(cfg)
	if err != nil {
		return 0, err
	}

	for i, data := range reqs {
		rcpt, err := ex.Execute(data)
		if errs.Is(err, errs.KindInvariant) {
			logger.Debug("genesis request already applied", "index", i)
			continue
		}

		if err != nil {
			return applied, fmt.Errorf("genesis request %d:\n%w", i, err)
		}

		if !rcpt.Success {
			return applied, fmt.Errorf("genesis request %d failed: %s", i, rcpt.Error)
		}

		applied++
	}

	logger.Info("genesis applied", "requests", len(reqs), "new", applied)

	return applied, nil
}

// AdminAddress returns the account address of an Ed25519 key.
func AdminAddress(key ed25519.PrivateKey) derive.Address {
	var a derive.Address
	copy(a[:], key.Public().(ed25519.PublicKey))
	return a
}
