package identity

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Keystore holds the custodial signing key in an encrypted geth V3 keystore.
// The decrypted key is cached after the first unlock until ClearCachedKey.
type Keystore struct {
	keystore   *keystore.KeyStore
	keyPath    string
	address    common.Address
	mu         sync.Mutex
	privateKey *ecdsa.PrivateKey
}

func openKeyStore(keystoreDir string) (*keystore.KeyStore, error) {
	if err := os.MkdirAll(keystoreDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}
	return keystore.NewKeyStore(keystoreDir, keystore.StandardScryptN, keystore.StandardScryptP), nil
}

// LoadKeystore loads an existing custody key from keystoreDir.
// Returns (nil, nil) if no key file is found.
func LoadKeystore(keystoreDir string) (*Keystore, error) {
	ks, err := openKeyStore(keystoreDir)
	if err != nil {
		return nil, err
	}
	accts := ks.Accounts()
	if len(accts) == 0 {
		return nil, nil
	}

	return &Keystore{
		keystore: ks,
		keyPath:  keystoreDir,
		address:  accts[0].Address,
	}, nil
}

// CreateKeystore generates a new custody key in keystoreDir.
// Returns an error if a key already exists (use LoadKeystore to load it).
func CreateKeystore(keystoreDir string, password string) (*Keystore, error) {
	ks, err := openKeyStore(keystoreDir)
	if err != nil {
		return nil, err
	}
	if len(ks.Accounts()) > 0 {
		return nil, fmt.Errorf("wallet already exists in %s (use LoadKeystore to load it)", keystoreDir)
	}

	account, err := ks.NewAccount(password)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	return &Keystore{
		keystore: ks,
		keyPath:  keystoreDir,
		address:  account.Address,
	}, nil
}

// ImportKeystore imports a hex private key into a new keystore in keystoreDir.
// Returns an error if a key already exists.
func ImportKeystore(keystoreDir string, privKeyHex string, password string) (*Keystore, error) {
	ks, err := openKeyStore(keystoreDir)
	if err != nil {
		return nil, err
	}
	if len(ks.Accounts()) > 0 {
		return nil, fmt.Errorf("wallet already exists in %s (use LoadKeystore to load it)", keystoreDir)
	}

	privateKey, err := crypto.HexToECDSA(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}

	account, err := ks.ImportECDSA(privateKey, password)
	if err != nil {
		return nil, fmt.Errorf("failed to import key: %w", err)
	}

	return &Keystore{
		keystore: ks,
		keyPath:  keystoreDir,
		address:  account.Address,
	}, nil
}

// Address returns the custody address
func (k *Keystore) Address() common.Address {
	return k.address
}

// KeystoreDir returns the path to the keystore directory
func (k *Keystore) KeystoreDir() string {
	return k.keyPath
}

// Unlock decrypts and caches the private key.
func (k *Keystore) Unlock(password string) error {
	_, err := k.PrivateKey(password)
	return err
}

// Unlocked reports whether a decrypted key is cached.
func (k *Keystore) Unlocked() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.privateKey != nil
}

// PrivateKey returns the decrypted key, decrypting it on first use.
func (k *Keystore) PrivateKey(password string) (*ecdsa.PrivateKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.privateKey != nil {
		return k.privateKey, nil
	}

	account, err := k.keystore.Find(accounts.Account{Address: k.address})
	if err != nil {
		return nil, fmt.Errorf("no key for %s: %w", k.address.Hex(), err)
	}

	keyJSON, err := os.ReadFile(account.URL.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key: %w", err)
	}

	k.privateKey = key.PrivateKey
	return key.PrivateKey, nil
}

// ClearCachedKey zeros and removes the cached private key from memory.
// The key will be re-derived from the keystore on next use.
func (k *Keystore) ClearCachedKey() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.privateKey != nil {
		k.privateKey.D.SetUint64(0)
		k.privateKey = nil
	}
}

func (k *Keystore) cachedKey() (*ecdsa.PrivateKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.privateKey == nil {
		return nil, fmt.Errorf("keystore for %s is locked", k.address.Hex())
	}
	return k.privateKey, nil
}

// SignText produces an EIP-191 personal_sign signature over msg, hex encoded
// with the V value in the 27/28 convention wallets return.
func (k *Keystore) SignText(msg string) (string, error) {
	key, err := k.cachedKey()
	if err != nil {
		return "", err
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return hexutil.Encode(sig), nil
}

// SignTx signs tx for chainID with the cached key.
func (k *Keystore) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	key, err := k.cachedKey()
	if err != nil {
		return nil, err
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// ExportKey exports the private key
func (k *Keystore) ExportKey(password string) (*ecdsa.PrivateKey, error) {
	return k.PrivateKey(password)
}
