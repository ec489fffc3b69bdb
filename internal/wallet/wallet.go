package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/0xdeschool/deschool-lens/internal/logging"
	"github.com/0xdeschool/deschool-lens/internal/storage"
)

// Wallet is the backend-agnostic session façade. It owns the active
// provider reference; everything else reaches the backend through it.
type Wallet struct {
	store storage.Store

	// swapMu serializes SetProvider/Disconnect/Restore, which await the
	// backend while the provider reference is being replaced.
	swapMu sync.Mutex

	mu       sync.RWMutex
	provider Provider
	typ      Type
}

// New creates a wallet with no active provider.
func New(store storage.Store) *Wallet {
	return &Wallet{store: store, typ: None}
}

// Type returns the active wallet type, or None.
func (w *Wallet) Type() Type {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.typ
}

// Connected reports whether a provider is active.
func (w *Wallet) Connected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.provider != nil
}

func (w *Wallet) current() Provider {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.provider
}

func (w *Wallet) assign(t Type, p Provider) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.provider = p
	w.typ = t
}

// SetProvider makes p the active provider. Passing the provider that is
// already active is a no-op. Otherwise the current provider is unmounted
// first; once Unmount has run the old provider is dropped, so if it fails the
// wallet is left with no provider and p is not mounted. If p fails to mount
// it is unmounted again and the wallet is left with no provider.
func (w *Wallet) SetProvider(ctx context.Context, t Type, p Provider) error {
	if p == nil {
		return fmt.Errorf("nil provider for wallet type %s", t)
	}
	if !t.Valid() {
		return &UnknownWalletTypeError{Type: t}
	}

	w.swapMu.Lock()
	defer w.swapMu.Unlock()

	cur := w.current()
	if cur == p {
		return nil
	}

	if cur != nil {
		old := w.Type()
		err := cur.Unmount(ctx)
		w.assign(None, nil)
		if err != nil {
			w.clearRecord()
			return fmt.Errorf("failed to unmount %s wallet: %w", old, err)
		}
	}

	if err := p.Mount(ctx); err != nil {
		if uerr := p.Unmount(ctx); uerr != nil {
			logging.Warn("unmount after failed mount",
				logging.WalletType(string(t)),
				logging.Err(uerr),
				logging.Component("wallet"))
		}
		w.clearRecord()
		return fmt.Errorf("failed to mount %s wallet: %w", t, err)
	}

	w.assign(t, p)

	if err := w.store.Set(StorageKey, string(t)); err != nil {
		return fmt.Errorf("failed to record active wallet type: %w", err)
	}

	logging.Debug("wallet provider mounted",
		logging.WalletType(string(t)),
		logging.Component("wallet"))
	return nil
}

func (w *Wallet) clearRecord() {
	if err := w.store.Remove(StorageKey); err != nil {
		logging.Warn("failed to clear active wallet type",
			logging.Err(err),
			logging.Component("wallet"))
	}
}

// Disconnect unmounts the active provider, if any, and forgets it. The
// storage record is removed even when there was no provider.
func (w *Wallet) Disconnect(ctx context.Context) error {
	w.swapMu.Lock()
	defer w.swapMu.Unlock()

	var errs []error

	if cur := w.current(); cur != nil {
		if err := cur.Unmount(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to unmount %s wallet: %w", w.Type(), err))
		}
	}
	w.assign(None, nil)

	if err := w.store.Remove(StorageKey); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear active wallet type: %w", err))
	}

	return errors.Join(errs...)
}

// Release unmounts the active provider but keeps the storage record, so a
// later Restore brings the same backend back.
func (w *Wallet) Release(ctx context.Context) error {
	w.swapMu.Lock()
	defer w.swapMu.Unlock()

	cur := w.current()
	if cur == nil {
		return nil
	}
	t := w.Type()
	w.assign(None, nil)
	if err := cur.Unmount(ctx); err != nil {
		return fmt.Errorf("failed to unmount %s wallet: %w", t, err)
	}
	return nil
}

// Restore re-creates and mounts the provider recorded by a previous
// session. It does nothing when no known type is recorded.
func (w *Wallet) Restore(ctx context.Context, f *Factory, cfg Config) error {
	raw, ok, err := w.store.Get(StorageKey)
	if err != nil {
		return fmt.Errorf("failed to read active wallet type: %w", err)
	}
	if !ok || Type(raw) == None {
		return nil
	}

	cfg.Type = Type(raw)
	p, err := f.Create(cfg)
	if err != nil {
		if rerr := w.store.Remove(StorageKey); rerr != nil {
			logging.Warn("failed to clear unknown wallet type", logging.Err(rerr), logging.Component("wallet"))
		}
		return err
	}
	return w.SetProvider(ctx, cfg.Type, p)
}

func (w *Wallet) requireProvider() (Provider, error) {
	p := w.current()
	if p == nil {
		return nil, ErrNoProvider
	}
	return p, nil
}

// SignMessage signs msg with the active provider.
func (w *Wallet) SignMessage(ctx context.Context, msg string) (string, error) {
	p, err := w.requireProvider()
	if err != nil {
		return "", err
	}
	return p.SignMessage(ctx, msg)
}

// GetAddress asks the active provider for an account, which may prompt the user.
func (w *Wallet) GetAddress(ctx context.Context) (string, error) {
	p, err := w.requireProvider()
	if err != nil {
		return "", err
	}
	return p.RequestAccount(ctx)
}

// GetConnectedAddress returns the already-authorized address, or "" when
// there is no provider or the backend cannot tell. It never fails.
func (w *Wallet) GetConnectedAddress(ctx context.Context) string {
	p := w.current()
	if p == nil {
		return ""
	}
	addr, err := p.GetConnectAccount(ctx)
	if err != nil {
		logging.Debug("connected account query failed",
			logging.WalletType(string(w.Type())),
			logging.Err(err),
			logging.Component("wallet"))
		return ""
	}
	return addr
}

// SendTransaction submits tx through the active provider.
func (w *Wallet) SendTransaction(ctx context.Context, tx TransactionMessage) (string, error) {
	p, err := w.requireProvider()
	if err != nil {
		return "", err
	}
	return p.SendTransaction(ctx, tx)
}
