package wallet

import "sort"

// Creator builds an unmounted provider from cfg.
type Creator func(cfg Config) Provider

// Factory maps wallet types to provider constructors.
type Factory struct {
	creators map[Type]Creator
}

// NewFactory returns a factory with every supported backend registered.
func NewFactory() *Factory {
	return &Factory{
		creators: map[Type]Creator{
			MetaMask: func(c Config) Provider { return NewExtensionProvider(c) },
			UniPass:  func(c Config) Provider { return NewCustodyProvider(c) },
		},
	}
}

// Register replaces the constructor for t. Only types a Wallet can activate
// are accepted.
func (f *Factory) Register(t Type, create Creator) error {
	if !t.Valid() || create == nil {
		return &UnknownWalletTypeError{Type: t}
	}
	f.creators[t] = create
	return nil
}

// Create builds a new, unmounted provider for cfg.Type.
func (f *Factory) Create(cfg Config) (Provider, error) {
	create, ok := f.creators[cfg.Type]
	if !ok {
		return nil, &UnknownWalletTypeError{Type: cfg.Type}
	}
	return create(cfg), nil
}

// Types lists the registered wallet types.
func (f *Factory) Types() []Type {
	types := make([]Type, 0, len(f.creators))
	for t := range f.creators {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
