package wallet

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProvider is returned when a wallet operation needs an active provider.
	ErrNoProvider = errors.New("wallet not connected")
	// ErrUnknownWalletType matches every *UnknownWalletTypeError.
	ErrUnknownWalletType = errors.New("wallet type is not found")
	// ErrUserRejected is returned when the user declines a connect or sign prompt.
	ErrUserRejected = errors.New("user rejected the request")
	// ErrNoAccount is returned when signing is attempted before an account is authorized.
	ErrNoAccount = errors.New("no account connected")
	// ErrExtensionNotFound is returned when no browser-extension wallet is reachable.
	ErrExtensionNotFound = errors.New("wallet extension not found")
	// ErrUnexpectedChain is returned when the backend is on another chain than configured.
	ErrUnexpectedChain = errors.New("wallet is connected to an unexpected chain")
	// ErrNoCustodyWallet is returned when the custody keystore has no key.
	ErrNoCustodyWallet = errors.New("no custody wallet found")
)

// UnknownWalletTypeError reports a factory request for an unregistered type.
type UnknownWalletTypeError struct {
	Type Type
}

func (e *UnknownWalletTypeError) Error() string {
	return fmt.Sprintf("wallet type %q is not found", string(e.Type))
}

func (e *UnknownWalletTypeError) Is(target error) bool {
	return target == ErrUnknownWalletType
}

// userRejectedCode is the EIP-1193 error code for a declined prompt.
const userRejectedCode = 4001

// rpcCoder is implemented by JSON-RPC errors carrying a numeric code.
type rpcCoder interface {
	ErrorCode() int
}

// classifyBackendError maps backend error codes onto the package sentinels.
func classifyBackendError(err error) error {
	if err == nil {
		return nil
	}
	var coded rpcCoder
	if errors.As(err, &coded) && coded.ErrorCode() == userRejectedCode {
		return fmt.Errorf("%w: %v", ErrUserRejected, err)
	}
	return err
}
