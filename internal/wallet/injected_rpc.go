package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rpc"
)

// RPCInjected exposes a JSON-RPC wallet endpoint (an extension bridge or a
// local signer such as Frame) as an Injected object.
type RPCInjected struct {
	client *rpc.Client

	mu      sync.RWMutex
	chainID string
	closed  bool
}

// DialRPCInjected connects to url and reads the current chain id.
func DialRPCInjected(ctx context.Context, url string) (*RPCInjected, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet endpoint: %w", err)
	}
	inj, err := NewRPCInjected(ctx, client)
	if err != nil {
		client.Close()
		return nil, err
	}
	return inj, nil
}

// NewRPCInjected wraps an existing client and reads the current chain id.
func NewRPCInjected(ctx context.Context, client *rpc.Client) (*RPCInjected, error) {
	inj := &RPCInjected{client: client}
	var chain string
	if err := client.CallContext(ctx, &chain, "eth_chainId"); err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	inj.chainID = chain
	return inj, nil
}

// Request performs one JSON-RPC call and returns the raw result.
func (r *RPCInjected) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if !r.IsConnected() {
		return nil, ErrExtensionNotFound
	}

	var raw json.RawMessage
	if err := r.client.CallContext(ctx, &raw, method, params...); err != nil {
		return nil, err
	}

	if method == "eth_chainId" {
		var chain string
		if json.Unmarshal(raw, &chain) == nil {
			r.mu.Lock()
			r.chainID = chain
			r.mu.Unlock()
		}
	}
	return raw, nil
}

func (r *RPCInjected) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.closed
}

// ChainID returns the last chain id reported by the endpoint.
func (r *RPCInjected) ChainID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chainID
}

func (r *RPCInjected) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.client.Close()
}
