// Package login orchestrates the CyberConnect wallet-signature login and
// turns its failures into user-facing messages.
package login

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/0xdeschool/deschool-lens/internal/account"
	"github.com/0xdeschool/deschool-lens/internal/booth"
	"github.com/0xdeschool/deschool-lens/internal/cyberconnect"
	"github.com/0xdeschool/deschool-lens/internal/logging"
	"github.com/0xdeschool/deschool-lens/internal/metrics"
	"github.com/0xdeschool/deschool-lens/internal/wallet"
)

// handleSuffix is appended by CyberConnect to every handle.
const handleSuffix = ".cc"

var (
	// ErrNoAddress is returned when the wallet yields no address to log in with.
	ErrNoAddress = errors.New("can't get address info, please connect a wallet first")
	// ErrMissingHandle describes OutcomeMissingHandle for callers that want an error.
	ErrMissingHandle = errors.New("address has no CyberConnect profile")
	// ErrEmptySignature is returned when the wallet signs with an empty result.
	ErrEmptySignature = errors.New("wallet returned an empty signature")
	// ErrNotLoggedIn is returned by operations that need a CyberConnect session.
	ErrNotLoggedIn = errors.New("not logged in to CyberConnect")
)

// Outcome is how a login attempt that did not fail ended.
type Outcome int

const (
	OutcomeLoggedIn Outcome = iota
	OutcomeAlreadyLoggedIn
	OutcomeMissingHandle
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoggedIn:
		return "logged_in"
	case OutcomeAlreadyLoggedIn:
		return "already_logged_in"
	case OutcomeMissingHandle:
		return "missing_handle"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result reports a completed login attempt.
type Result struct {
	Outcome Outcome
	Address string
	Profile *account.Profile
	// LinkErr is set when the login succeeded but linking the handle to
	// the Deschool account failed.
	LinkErr error
}

// AuthService is the CyberConnect login and profile API.
type AuthService interface {
	LoginGetMessage(ctx context.Context, address, domain string) (string, error)
	LoginVerify(ctx context.Context, address, domain, signature string) (string, error)
	PrimaryProfile(ctx context.Context, address string) (*account.Profile, error)
}

// Linker links a social-graph handle to the Deschool account.
type Linker interface {
	LinkPlatform(ctx context.Context, handle string, platform booth.PlatformType) (*booth.LinkResult, error)
}

var (
	_ AuthService = (*cyberconnect.Client)(nil)
	_ Linker      = (*booth.Client)(nil)
)

// Options tunes a Flow. Zero values select the defaults.
type Options struct {
	// Domain is the login challenge domain.
	Domain  string
	Metrics *metrics.Recorder
}

// Flow runs login attempts against one wallet and account provider.
type Flow struct {
	wallet   *wallet.Wallet
	factory  *wallet.Factory
	auth     AuthService
	linker   Linker
	accounts *account.Provider
	domain   string
	metrics  *metrics.Recorder
}

// NewFlow wires a login flow. linker may be nil to skip platform linking.
func NewFlow(w *wallet.Wallet, f *wallet.Factory, auth AuthService, linker Linker, accounts *account.Provider, opts Options) *Flow {
	domain := opts.Domain
	if domain == "" {
		domain = cyberconnect.DefaultDomain
	}
	return &Flow{
		wallet:   w,
		factory:  f,
		auth:     auth,
		linker:   linker,
		accounts: accounts,
		domain:   domain,
		metrics:  opts.Metrics,
	}
}

// ConnectCyber connects the wallet backend named by cfg.Type (MetaMask when
// empty), asks it for an address and logs that address in.
func (f *Flow) ConnectCyber(ctx context.Context, cfg wallet.Config) (*Result, error) {
	if cfg.Type == "" {
		cfg.Type = wallet.MetaMask
	}

	p, err := f.factory.Create(cfg)
	if err != nil {
		return nil, f.fail(err)
	}
	if err := f.wallet.SetProvider(ctx, cfg.Type, p); err != nil {
		f.metrics.RecordWalletOp("connect", resultLabel(err))
		return nil, f.fail(err)
	}
	f.metrics.RecordWalletOp("connect", metrics.ResultOK)

	address, err := f.wallet.GetAddress(ctx)
	f.metrics.RecordWalletOp("request_account", resultLabel(err))
	if err != nil {
		return nil, f.fail(err)
	}
	if address == "" {
		return nil, f.fail(ErrNoAddress)
	}
	return f.LoginByAddress(ctx, address)
}

// LoginByAddress logs address in to CyberConnect with a wallet signature.
// Steps run in order and a failing step stops the flow before any slot
// changes; the slots are updated once, after verification succeeds.
func (f *Flow) LoginByAddress(ctx context.Context, address string) (*Result, error) {
	log := logging.With(logging.Address(address), logging.Component("login"))

	if f.accounts.State().LoginRoles().Has(account.UserOfCyber) {
		f.metrics.RecordLogin(OutcomeAlreadyLoggedIn.String())
		return &Result{Outcome: OutcomeAlreadyLoggedIn, Address: address, Profile: f.accounts.State().Profile()}, nil
	}

	profile, err := f.auth.PrimaryProfile(ctx, address)
	if err != nil {
		return nil, f.fail(fmt.Errorf("failed to fetch primary profile: %w", err))
	}
	if profile == nil || profile.Handle == "" {
		log.Info("address has no primary profile")
		if err := f.accounts.Update(func(s *account.Slots) {
			s.Profile = nil
			s.Token = nil
		}); err != nil {
			return nil, f.fail(err)
		}
		f.metrics.RecordLogin(OutcomeMissingHandle.String())
		return &Result{Outcome: OutcomeMissingHandle, Address: address}, nil
	}

	challenge, err := f.auth.LoginGetMessage(ctx, address, f.domain)
	if err != nil {
		return nil, f.fail(fmt.Errorf("failed to get login message: %w", err))
	}

	signature, err := f.wallet.SignMessage(ctx, challenge)
	f.metrics.RecordWalletOp("sign", resultLabel(err))
	if err != nil {
		return nil, f.fail(err)
	}
	if signature == "" {
		return nil, f.fail(ErrEmptySignature)
	}

	accessToken, err := f.auth.LoginVerify(ctx, address, f.domain, signature)
	if err != nil {
		return nil, f.fail(fmt.Errorf("failed to verify login: %w", err))
	}

	profile = withStrippedHandle(profile)
	if err := f.accounts.Update(func(s *account.Slots) {
		s.Token = &account.TokenInfo{Address: address, AccessToken: accessToken}
		s.Profile = profile
	}); err != nil {
		return nil, f.fail(err)
	}
	log.Info("logged in to cyberconnect", "handle", profile.Handle)
	logging.Audit(logging.AuditEvent{
		Operation: "login_cyber",
		Actor:     address,
		Target:    account.TokenKey,
		Result:    "success",
	})

	res := &Result{Outcome: OutcomeLoggedIn, Address: address, Profile: profile}
	if f.linker != nil {
		if _, err := f.linker.LinkPlatform(ctx, profile.Handle, booth.PlatformCyberConnect); err != nil {
			log.Warn("failed to link cyberconnect handle", logging.Err(err))
			res.LinkErr = err
		}
	}

	f.metrics.RecordLogin(OutcomeLoggedIn.String())
	return res, nil
}

// LookupProfile returns the primary profile of any address with the handle
// in display form, or nil when the address has none. Nothing is stored.
func (f *Flow) LookupProfile(ctx context.Context, address string) (*account.Profile, error) {
	profile, err := f.auth.PrimaryProfile(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch primary profile: %w", err)
	}
	if profile == nil || profile.Handle == "" {
		return nil, nil
	}
	return withStrippedHandle(profile), nil
}

// RefreshProfile re-reads the primary profile of the logged-in address and
// replaces the stored one. When the address no longer has a profile the
// stored one is kept and ErrMissingHandle is returned.
func (f *Flow) RefreshProfile(ctx context.Context) (*account.Profile, error) {
	st := f.accounts.State()
	token := st.Token()
	if !st.LoginRoles().Has(account.UserOfCyber) || token == nil {
		return nil, ErrNotLoggedIn
	}

	profile, err := f.LookupProfile(ctx, token.Address)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrMissingHandle
	}
	if err := st.ChangeUserProfile(profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// DisconnectCyber clears the CyberConnect profile and session token.
func (f *Flow) DisconnectCyber() error {
	err := f.accounts.State().DisconnectFromCyber()
	if err == nil {
		logging.Audit(logging.AuditEvent{Operation: "disconnect_cyber", Target: account.ProfileKey, Result: "success"})
	}
	return err
}

// DisconnectDeschool clears the Deschool profile.
func (f *Flow) DisconnectDeschool() error {
	err := f.accounts.State().DisconnectFromDeschool()
	if err == nil {
		logging.Audit(logging.AuditEvent{Operation: "disconnect_deschool", Target: account.DeschoolProfileKey, Result: "success"})
	}
	return err
}

func (f *Flow) fail(err error) error {
	f.metrics.RecordLogin("failed_" + resultLabel(err))
	return err
}

// TrackRoles keeps the role gauge of rec in step with accounts: it records
// the current roles and every later publication until cancel is called.
func TrackRoles(accounts *account.Provider, rec *metrics.Recorder) (cancel func()) {
	set := func(st *account.State) {
		roles := st.LoginRoles()
		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = string(r)
		}
		rec.SetRoles(names)
	}
	cancel = accounts.Subscribe(set)
	set(accounts.State())
	return cancel
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, wallet.ErrUserRejected):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}

// withStrippedHandle returns a copy of p whose Handle has the CyberConnect
// suffix removed and whose HandleStr keeps the original.
func withStrippedHandle(p *account.Profile) *account.Profile {
	c := *p
	c.HandleStr = p.Handle
	c.Handle, _, _ = strings.Cut(p.Handle, handleSuffix)
	return &c
}
