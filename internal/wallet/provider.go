package wallet

import "context"

// Provider is the capability set every wallet backend implements.
type Provider interface {
	// Mount acquires backend resources (injected handle, watchers, keys).
	Mount(ctx context.Context) error
	// Unmount releases them. It is safe to call without a prior successful Mount.
	Unmount(ctx context.Context) error

	// GetConnectAccount returns the already-authorized address without
	// prompting, or "" when there is none.
	GetConnectAccount(ctx context.Context) (string, error)
	// RequestAccount may prompt for authorization. It returns "" when the
	// user declines.
	RequestAccount(ctx context.Context) (string, error)

	// SignMessage signs an opaque UTF-8 message with the active account.
	SignMessage(ctx context.Context, msg string) (string, error)
	// SendTransaction submits tx and returns its transaction hash.
	SendTransaction(ctx context.Context, tx TransactionMessage) (string, error)
}
