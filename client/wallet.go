package client

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"NftBridge/internal/derive"
)

// Wallet holds an Ed25519 keypair and a nonce counter.
type Wallet struct {
	privKey ed25519.PrivateKey // privKey is the Ed25519 private key
	nonce   atomic.Uint64      // nonce makes repeated identical calls distinct
}

// NewWallet creates a new wallet with a random Ed25519 keypair.
func NewWallet() *Wallet {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	return WalletFromKey(priv)
}

// WalletFromKey wraps an existing private key.
func WalletFromKey(priv ed25519.PrivateKey) *Wallet {
	w := &Wallet{privKey: priv}
	w.nonce.Store(uint64(time.Now().UnixNano()))
	return w
}

// LoadWallet reads a key file holding either the raw 64-byte private key or
// its hex encoding.
func LoadWallet(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		decoded, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil || len(decoded) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("invalid key file %s: want %d raw or hex bytes", path, ed25519.PrivateKeySize)
		}
		data = decoded
	}

	return WalletFromKey(ed25519.PrivateKey(data)), nil
}

// Save writes the raw private key to path.
func (w *Wallet) Save(path string) error {
	if err := os.WriteFile(path, w.privKey, 0600); err != nil {
		return fmt.Errorf("save key to %s:\n%w", path, err)
	}
	return nil
}

// Address returns the wallet's ledger address.
func (w *Wallet) Address() derive.Address {
	var a derive.Address
	copy(a[:], w.privKey.Public().(ed25519.PublicKey))
	return a
}

// Key returns the private key.
func (w *Wallet) Key() ed25519.PrivateKey {
	return w.privKey
}

func (w *Wallet) nextNonce() uint64 {
	return w.nonce.Add(1)
}
