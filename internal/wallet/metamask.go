package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/0xdeschool/deschool-lens/internal/logging"
	"github.com/0xdeschool/deschool-lens/internal/util"
)

// Injected is the extension object a browser wallet exposes to the page:
// EIP-1193 style requests plus connection and chain state.
type Injected interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	IsConnected() bool
	ChainID() string
	Close()
}

// dialInjected connects to an extension endpoint given by URL.
var dialInjected = func(ctx context.Context, url string) (Injected, error) {
	return DialRPCInjected(ctx, url)
}

// ExtensionProvider drives a browser-extension wallet such as MetaMask.
type ExtensionProvider struct {
	cfg Config

	mu       sync.Mutex
	injected Injected
	owned    bool // injected was dialed by Mount and must be closed by Unmount
	stop     context.CancelFunc
	done     chan struct{}
}

// NewExtensionProvider returns an unmounted extension provider. No I/O happens
// until Mount.
func NewExtensionProvider(cfg Config) *ExtensionProvider {
	return &ExtensionProvider{cfg: cfg}
}

// Mount attaches to the extension, checks the chain and starts the watcher.
func (p *ExtensionProvider) Mount(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.injected != nil {
		return nil
	}

	inj := p.cfg.Extension
	owned := false
	if inj == nil {
		if p.cfg.RPCURL == "" {
			return ErrExtensionNotFound
		}
		dialed, err := dialInjected(ctx, p.cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExtensionNotFound, err)
		}
		inj = dialed
		owned = true
	}

	if !inj.IsConnected() {
		if owned {
			inj.Close()
		}
		return ErrExtensionNotFound
	}

	if p.cfg.ChainID != "" && !sameChain(inj.ChainID(), p.cfg.ChainID) {
		if owned {
			inj.Close()
		}
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedChain, inj.ChainID(), p.cfg.ChainID)
	}

	p.injected = inj
	p.owned = owned

	if p.cfg.PollInterval > 0 {
		account := connectedAccount(ctx, inj)
		watchCtx, cancel := context.WithCancel(context.Background())
		p.stop = cancel
		p.done = make(chan struct{})
		done := p.done
		util.Go("metamask-watcher", func() { p.watch(watchCtx, done, inj, account) })
	}
	return nil
}

// Unmount stops the watcher and releases the extension handle. The handle
// is released even when ctx ends before the watcher has exited; the watcher
// then finishes on its own and the error only reports that it was not awaited.
func (p *ExtensionProvider) Unmount(ctx context.Context) error {
	p.mu.Lock()
	stop, done := p.stop, p.done
	inj, owned := p.injected, p.owned
	p.stop, p.done, p.injected, p.owned = nil, nil, nil, false
	p.mu.Unlock()

	if stop != nil {
		stop()
	}
	if inj != nil && owned {
		inj.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("wallet watcher still running: %w", ctx.Err())
		}
	}
	return nil
}

func (p *ExtensionProvider) attached() (Injected, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.injected == nil {
		return nil, ErrExtensionNotFound
	}
	return p.injected, nil
}

func (p *ExtensionProvider) request(ctx context.Context, out any, method string, params ...any) error {
	inj, err := p.attached()
	if err != nil {
		return err
	}
	raw, err := inj.Request(ctx, method, params...)
	if err != nil {
		return classifyBackendError(err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unexpected %s result: %w", method, err)
	}
	return nil
}

// connectedAccount reads eth_accounts straight from inj, treating any failure
// as no account.
func connectedAccount(ctx context.Context, inj Injected) string {
	raw, err := inj.Request(ctx, "eth_accounts")
	if err != nil {
		return ""
	}
	var accounts []string
	if json.Unmarshal(raw, &accounts) != nil {
		return ""
	}
	return firstAccount(accounts)
}

func firstAccount(accounts []string) string {
	if len(accounts) == 0 {
		return ""
	}
	return accounts[0]
}

// GetConnectAccount queries eth_accounts, which never prompts.
func (p *ExtensionProvider) GetConnectAccount(ctx context.Context) (string, error) {
	var accounts []string
	if err := p.request(ctx, &accounts, "eth_accounts"); err != nil {
		return "", err
	}
	return firstAccount(accounts), nil
}

// RequestAccount queries eth_requestAccounts, which opens the connect prompt.
// A declined prompt yields "" and no error.
func (p *ExtensionProvider) RequestAccount(ctx context.Context) (string, error) {
	var accounts []string
	err := p.request(ctx, &accounts, "eth_requestAccounts")
	if err != nil {
		if isUserRejected(err) {
			return "", nil
		}
		return "", err
	}
	return firstAccount(accounts), nil
}

// SignMessage requests personal_sign from the connected account.
func (p *ExtensionProvider) SignMessage(ctx context.Context, msg string) (string, error) {
	account, err := p.GetConnectAccount(ctx)
	if err != nil {
		return "", err
	}
	if account == "" {
		return "", ErrNoAccount
	}

	var sig string
	if err := p.request(ctx, &sig, "personal_sign", hexutil.Encode([]byte(msg)), account); err != nil {
		return "", err
	}
	return sig, nil
}

// SendTransaction submits tx via eth_sendTransaction.
func (p *ExtensionProvider) SendTransaction(ctx context.Context, tx TransactionMessage) (string, error) {
	params := map[string]string{"from": tx.From, "to": tx.To}
	if tx.Value != "" {
		v, err := parseQuantity(tx.Value)
		if err != nil {
			return "", fmt.Errorf("invalid value %q: %w", tx.Value, err)
		}
		params["value"] = hexutil.EncodeBig(v)
	}
	if tx.Data != "" {
		params["data"] = tx.Data
	}

	var hash string
	if err := p.request(ctx, &hash, "eth_sendTransaction", params); err != nil {
		return "", err
	}
	return hash, nil
}

// watch polls the extension and reports account and chain changes through
// the config callbacks until ctx is cancelled.
func (p *ExtensionProvider) watch(ctx context.Context, done chan struct{}, inj Injected, lastAccount string) {
	defer close(done)

	lastChain := inj.ChainID()
	connected := true

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !inj.IsConnected() {
			if connected {
				connected = false
				p.notify(ctx, "disconnected", func() error { return callDisconnected(ctx, p.cfg) })
			}
			continue
		}
		connected = true

		account, err := p.GetConnectAccount(ctx)
		if err == nil && account != lastAccount {
			lastAccount = account
			if account == "" {
				p.notify(ctx, "disconnected", func() error { return callDisconnected(ctx, p.cfg) })
			} else if p.cfg.AccountChanged != nil {
				p.notify(ctx, "accountChanged", func() error { return p.cfg.AccountChanged(ctx, account) })
			}
		}

		var chain string
		if err := p.request(ctx, &chain, "eth_chainId"); err == nil && chain != "" && !sameChain(chain, lastChain) {
			lastChain = chain
			if p.cfg.ChainChanged != nil {
				p.notify(ctx, "chainChanged", func() error { return p.cfg.ChainChanged(ctx, chain) })
			}
		}
	}
}

func callDisconnected(ctx context.Context, cfg Config) error {
	if cfg.Disconnected == nil {
		return nil
	}
	return cfg.Disconnected(ctx)
}

func (p *ExtensionProvider) notify(ctx context.Context, event string, fn func() error) {
	if ctx.Err() != nil {
		return
	}
	if err := fn(); err != nil {
		logging.Warn("wallet event handler failed",
			"event", event,
			logging.Err(err),
			logging.Component("wallet"))
	}
}

func isUserRejected(err error) bool {
	return errors.Is(err, ErrUserRejected)
}

// parseQuantity accepts a decimal or 0x-hex integer.
func parseQuantity(s string) (*big.Int, error) {
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("not a number")
	}
	return v, nil
}

// sameChain compares chain ids written in decimal or hex.
func sameChain(a, b string) bool {
	x, errA := parseQuantity(a)
	y, errB := parseQuantity(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	return x.Cmp(y) == 0
}
