package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/0xdeschool/deschool-lens/internal/identity"
)

// dialChain connects to the chain RPC used for transaction submission.
var dialChain = ethclient.DialContext

// CustodyProvider signs with a key held in an encrypted keystore on behalf
// of the user, the way a hosted-custody wallet such as UniPass does.
type CustodyProvider struct {
	cfg      Config
	password identity.PasswordSource

	mu     sync.Mutex
	ks     *identity.Keystore
	client *ethclient.Client
}

// NewCustodyProvider returns an unmounted custody provider. No I/O happens
// until Mount.
func NewCustodyProvider(cfg Config) *CustodyProvider {
	pw := cfg.Password
	if pw == nil {
		pw = identity.ResolvePassword(cfg.PasswordFile)
	}
	return &CustodyProvider{cfg: cfg, password: pw}
}

// Mount loads the keystore and, when an RPC URL is configured, dials the chain.
func (p *CustodyProvider) Mount(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ks != nil {
		return nil
	}
	if p.cfg.KeystoreDir == "" {
		return fmt.Errorf("%w: keystore directory not configured", ErrNoCustodyWallet)
	}

	ks, err := identity.LoadKeystore(p.cfg.KeystoreDir)
	if err != nil {
		return fmt.Errorf("failed to load custody keystore: %w", err)
	}
	if ks == nil {
		return fmt.Errorf("%w in %s", ErrNoCustodyWallet, p.cfg.KeystoreDir)
	}

	if p.cfg.RPCURL != "" {
		client, err := dialChain(ctx, p.cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("failed to dial chain RPC: %w", err)
		}
		p.client = client
	}

	p.ks = ks
	return nil
}

// Unmount wipes the cached key and closes the chain client.
func (p *CustodyProvider) Unmount(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ks != nil {
		p.ks.ClearCachedKey()
		p.ks = nil
	}
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
	return nil
}

func (p *CustodyProvider) keystore() (*identity.Keystore, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ks == nil {
		return nil, ErrNoCustodyWallet
	}
	return p.ks, nil
}

// GetConnectAccount returns the custody address once the key is unlocked.
func (p *CustodyProvider) GetConnectAccount(ctx context.Context) (string, error) {
	ks, err := p.keystore()
	if err != nil {
		return "", nil
	}
	if !ks.Unlocked() {
		return "", nil
	}
	return ks.Address().Hex(), nil
}

// RequestAccount unlocks the custody key. With no password available the
// request counts as declined and yields "".
func (p *CustodyProvider) RequestAccount(ctx context.Context) (string, error) {
	ks, err := p.keystore()
	if err != nil {
		return "", err
	}
	if ks.Unlocked() {
		return ks.Address().Hex(), nil
	}

	pw := p.password()
	if pw == "" {
		return "", nil
	}
	if err := ks.Unlock(pw); err != nil {
		return "", fmt.Errorf("failed to unlock custody wallet: %w", err)
	}
	return ks.Address().Hex(), nil
}

// SignMessage signs msg with EIP-191 personal_sign.
func (p *CustodyProvider) SignMessage(ctx context.Context, msg string) (string, error) {
	ks, err := p.keystore()
	if err != nil {
		return "", err
	}
	if !ks.Unlocked() {
		return "", ErrNoAccount
	}
	return ks.SignText(msg)
}

// SendTransaction builds, signs and submits a transaction: dynamic-fee when
// the latest block carries a base fee, legacy otherwise.
func (p *CustodyProvider) SendTransaction(ctx context.Context, msg TransactionMessage) (string, error) {
	ks, err := p.keystore()
	if err != nil {
		return "", err
	}
	if !ks.Unlocked() {
		return "", ErrNoAccount
	}

	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil {
		return "", errors.New("custody wallet has no chain RPC configured")
	}

	from := ks.Address()
	if msg.From != "" && !strings.EqualFold(msg.From, from.Hex()) {
		return "", fmt.Errorf("from %s does not match custody account %s", msg.From, from.Hex())
	}
	if !common.IsHexAddress(msg.To) {
		return "", fmt.Errorf("invalid to address %q", msg.To)
	}
	to := common.HexToAddress(msg.To)

	value := new(big.Int)
	if msg.Value != "" {
		if value, err = parseQuantity(msg.Value); err != nil {
			return "", fmt.Errorf("invalid value %q: %w", msg.Value, err)
		}
	}
	var data []byte
	if msg.Data != "" {
		if data, err = hexutil.Decode(msg.Data); err != nil {
			return "", fmt.Errorf("invalid data: %w", err)
		}
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get chain ID: %w", err)
	}
	if p.cfg.ChainID != "" && !sameChain(chainID.String(), p.cfg.ChainID) {
		return "", fmt.Errorf("%w: got %s, want %s", ErrUnexpectedChain, chainID, p.cfg.ChainID)
	}

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return "", fmt.Errorf("failed to estimate gas: %w", err)
	}

	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get latest header: %w", err)
	}

	var tx *types.Transaction
	if head.BaseFee == nil {
		// Chain without a base fee: legacy gas price.
		price, err := client.SuggestGasPrice(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to suggest gas price: %w", err)
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &to,
			Value:    value,
			Data:     data,
		})
	} else {
		tip, err := client.SuggestGasTipCap(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to suggest gas tip: %w", err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      data,
		})
	}
	signed, err := ks.SignTx(tx, chainID)
	if err != nil {
		return "", err
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	return signed.Hash().Hex(), nil
}
