package account

import (
	"errors"
	"sync/atomic"
)

// ErrDetached is returned by mutators on a State with no owning Provider.
var ErrDetached = errors.New("account state is not attached to a provider")

// Slots holds the three credential slots. Each may be nil independently.
type Slots struct {
	Profile         *Profile
	DeschoolProfile *DeschoolProfile
	Token           *TokenInfo
}

func (s Slots) clone() Slots {
	return Slots{
		Profile:         s.Profile.clone(),
		DeschoolProfile: s.DeschoolProfile.clone(),
		Token:           s.Token.clone(),
	}
}

// State is an immutable snapshot of the account slots. Accessors return
// copies; mutations go through the owning Provider and yield a new State.
type State struct {
	slots   Slots
	version uint64
	owner   *Provider
}

// Profile returns a copy of the CyberConnect profile, or nil.
func (s *State) Profile() *Profile { return s.slots.Profile.clone() }

// DeschoolProfile returns a copy of the Deschool profile, or nil.
func (s *State) DeschoolProfile() *DeschoolProfile { return s.slots.DeschoolProfile.clone() }

// Token returns a copy of the session token, or nil.
func (s *State) Token() *TokenInfo { return s.slots.Token.clone() }

// Version increases by one with every publication from the same Provider.
func (s *State) Version() uint64 { return s.version }

// LoginRoles derives the roles for this snapshot.
func (s *State) LoginRoles() Roles {
	return LoginRoles(s.slots.Profile, s.slots.DeschoolProfile, s.slots.Token)
}

// ChangeUserProfile replaces the CyberConnect profile.
func (s *State) ChangeUserProfile(p *Profile) error {
	if s.owner == nil {
		return ErrDetached
	}
	return s.owner.SetProfile(p)
}

// DisconnectFromCyber clears the CyberConnect profile and the session token.
func (s *State) DisconnectFromCyber() error {
	if s.owner == nil {
		return ErrDetached
	}
	return s.owner.Update(func(sl *Slots) {
		sl.Profile = nil
		sl.Token = nil
	})
}

// DisconnectFromDeschool clears the Deschool profile.
func (s *State) DisconnectFromDeschool() error {
	if s.owner == nil {
		return ErrDetached
	}
	return s.owner.SetDeschoolProfile(nil)
}

var (
	emptyState = &State{}
	latest     atomic.Pointer[State]
)

// Snapshot returns the most recently published State in this process. Before
// any Provider exists it returns an empty, detached State.
func Snapshot() *State {
	if s := latest.Load(); s != nil {
		return s
	}
	return emptyState
}
