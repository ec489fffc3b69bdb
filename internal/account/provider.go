package account

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/0xdeschool/deschool-lens/internal/logging"
	"github.com/0xdeschool/deschool-lens/internal/storage"
)

// Provider owns the credential slots. Every change is written to the store
// and published as a new State.
type Provider struct {
	store storage.Store

	mu      sync.Mutex
	slots   Slots
	current *State

	subMu  sync.Mutex
	subs   map[uint64]func(*State)
	nextID uint64
}

// NewProvider loads the slots from store and publishes the initial State.
// Entries that cannot be decoded are removed and treated as empty.
func NewProvider(store storage.Store) (*Provider, error) {
	p := &Provider{
		store: store,
		subs:  make(map[uint64]func(*State)),
	}

	var slots Slots
	var err error
	if slots.Profile, err = loadSlot[Profile](store, ProfileKey); err != nil {
		return nil, err
	}
	if slots.DeschoolProfile, err = loadSlot[DeschoolProfile](store, DeschoolProfileKey); err != nil {
		return nil, err
	}
	if slots.Token, err = loadSlot[TokenInfo](store, TokenKey); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.slots = slots
	st := p.publishLocked()
	p.mu.Unlock()

	logging.Debug("account state loaded",
		"roles", st.LoginRoles().String(),
		logging.Component("account"))
	return p, nil
}

func loadSlot[T any](store storage.Store, key string) (*T, error) {
	raw, ok, err := store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}

	v := new(T)
	err = json.Unmarshal([]byte(raw), v)
	if err == nil && strings.TrimSpace(raw) != "null" {
		return v, nil
	}
	if err == nil {
		err = errors.New("stored value is null")
	}

	logging.Warn("discarding undecodable account slot",
		logging.StorageKey(key),
		logging.Err(err),
		logging.Component("account"))
	if rerr := store.Remove(key); rerr != nil {
		return nil, fmt.Errorf("failed to remove corrupt %s: %w", key, rerr)
	}
	return nil, nil
}

// State returns the Provider's current snapshot.
func (p *Provider) State() *State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// SetProfile sets or, with nil, clears the CyberConnect profile.
func (p *Provider) SetProfile(v *Profile) error {
	return p.Update(func(s *Slots) { s.Profile = v })
}

// SetDeschoolProfile sets or, with nil, clears the Deschool profile.
func (p *Provider) SetDeschoolProfile(v *DeschoolProfile) error {
	return p.Update(func(s *Slots) { s.DeschoolProfile = v })
}

// SetToken sets or, with nil, clears the session token.
func (p *Provider) SetToken(v *TokenInfo) error {
	return p.Update(func(s *Slots) { s.Token = v })
}

// Update applies fn to a copy of the slots and commits the result as one
// change: every modified slot is persisted, then a single State is
// published. If a storage write fails, entries already written are restored
// and the slots keep their previous values.
func (p *Provider) Update(fn func(*Slots)) error {
	p.mu.Lock()

	next := p.slots.clone()
	fn(&next)
	next = next.clone()

	writes := p.changedSlots(next)
	if len(writes) == 0 {
		p.mu.Unlock()
		return nil
	}

	for i, w := range writes {
		if err := storage.SetJSON(p.store, w.key, w.next); err != nil {
			p.rollback(writes[:i])
			p.mu.Unlock()
			return fmt.Errorf("failed to persist %s: %w", w.key, err)
		}
	}

	p.slots = next
	st := p.publishLocked()
	p.mu.Unlock()

	p.notify(st)
	return nil
}

type slotWrite struct {
	key        string
	prev, next any
}

func (p *Provider) changedSlots(next Slots) []slotWrite {
	var writes []slotWrite
	if !equalJSON(p.slots.Profile, next.Profile) {
		writes = append(writes, slotWrite{ProfileKey, p.slots.Profile, next.Profile})
	}
	if !equalJSON(p.slots.DeschoolProfile, next.DeschoolProfile) {
		writes = append(writes, slotWrite{DeschoolProfileKey, p.slots.DeschoolProfile, next.DeschoolProfile})
	}
	if !equalJSON(p.slots.Token, next.Token) {
		writes = append(writes, slotWrite{TokenKey, p.slots.Token, next.Token})
	}
	return writes
}

func (p *Provider) rollback(done []slotWrite) {
	var errs []error
	for _, w := range done {
		if err := storage.SetJSON(p.store, w.key, w.prev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.key, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		logging.Error("failed to restore account slots after write error",
			logging.Err(err),
			logging.Component("account"))
	}
}

func (p *Provider) publishLocked() *State {
	var version uint64
	if p.current != nil {
		version = p.current.version + 1
	}
	st := &State{slots: p.slots.clone(), version: version, owner: p}
	p.current = st
	latest.Store(st)
	return st
}

// Subscribe registers fn to receive every State published after this call.
// The returned function unregisters it.
func (p *Provider) Subscribe(fn func(*State)) (cancel func()) {
	p.subMu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.subMu.Lock()
			delete(p.subs, id)
			p.subMu.Unlock()
		})
	}
}

func (p *Provider) notify(st *State) {
	p.subMu.Lock()
	fns := make([]func(*State), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.subMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func equalJSON(a, b any) bool {
	x, errA := json.Marshal(a)
	y, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(x, y)
}
