// Package wallet multiplexes login signing over swappable wallet backends.
//
// A Wallet holds at most one active Provider. Providers are built by a
// Factory from a Config whose Type selects the backend: the browser-extension
// wallet (MetaMask) or the hosted-custody wallet (UniPass).
package wallet

import (
	"context"
	"time"

	"github.com/0xdeschool/deschool-lens/internal/identity"
)

// Type identifies a wallet backend. Values are persisted, so they must not change.
type Type string

const (
	None     Type = "_"
	MetaMask Type = "MetaMask"
	UniPass  Type = "UniPass"
)

// StorageKey is the durable-storage entry recording the active wallet type.
const StorageKey = "activeWalletType"

// Valid reports whether t names a concrete backend.
func (t Type) Valid() bool {
	return t == MetaMask || t == UniPass
}

func (t Type) String() string {
	return string(t)
}

// TransactionMessage describes a transaction to submit through a backend.
// Value is a decimal or 0x-hex wei amount, Data is 0x-hex calldata.
type TransactionMessage struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value,omitempty"`
	Data  string `json:"data,omitempty"`
}

// Config carries everything a backend constructor may need. Fields a backend
// does not use are ignored.
type Config struct {
	Type Type

	// ChainID is the expected chain, decimal or 0x-hex. Empty skips the check.
	ChainID string
	// RPCURL is the JSON-RPC endpoint: the extension bridge for MetaMask,
	// the chain node for UniPass transactions.
	RPCURL string

	// Extension is a pre-attached injected object. When nil the MetaMask
	// backend dials RPCURL on mount.
	Extension Injected
	// PollInterval drives the MetaMask account/chain watcher. Zero disables it.
	PollInterval time.Duration

	// KeystoreDir holds the UniPass custody key.
	KeystoreDir string
	// Password unlocks the custody key. Defaults to identity.ResolvePassword(PasswordFile).
	Password     identity.PasswordSource
	PasswordFile string

	Extra map[string]string

	AccountChanged func(ctx context.Context, account string) error
	Disconnected   func(ctx context.Context) error
	ChainChanged   func(ctx context.Context, chain string) error
}
