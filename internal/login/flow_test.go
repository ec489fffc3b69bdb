package login

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xdeschool/deschool-lens/internal/account"
	"github.com/0xdeschool/deschool-lens/internal/booth"
	"github.com/0xdeschool/deschool-lens/internal/metrics"
	"github.com/0xdeschool/deschool-lens/internal/remote"
	"github.com/0xdeschool/deschool-lens/internal/storage"
	"github.com/0xdeschool/deschool-lens/internal/wallet"
)

const testAddress = "0xAA00000000000000000000000000000000000001"

// steps records the order in which collaborators were called.
type steps struct {
	mu  sync.Mutex
	log []string
}

func (s *steps) add(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, step)
}

func (s *steps) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

// countingStore counts writes so tests can assert none happened.
type countingStore struct {
	*storage.MemoryStore
	mu     sync.Mutex
	writes int
}

func (c *countingStore) Set(key, value string) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.MemoryStore.Set(key, value)
}

func (c *countingStore) Remove(key string) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.MemoryStore.Remove(key)
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

type fakeAuth struct {
	steps      *steps
	profile    *account.Profile
	profileErr error
	messageErr error
	verifyErr  error
	token      string
	signature  string
}

func (f *fakeAuth) PrimaryProfile(ctx context.Context, address string) (*account.Profile, error) {
	f.steps.add("profile")
	return f.profile, f.profileErr
}

func (f *fakeAuth) LoginGetMessage(ctx context.Context, address, domain string) (string, error) {
	f.steps.add("challenge")
	if f.messageErr != nil {
		return "", f.messageErr
	}
	return "sign this for " + domain, nil
}

func (f *fakeAuth) LoginVerify(ctx context.Context, address, domain, signature string) (string, error) {
	f.steps.add("verify")
	f.signature = signature
	if f.verifyErr != nil {
		return "", f.verifyErr
	}
	return f.token, nil
}

type fakeWallet struct {
	steps   *steps
	account string
	signErr error
	sig     string
}

func (f *fakeWallet) Mount(ctx context.Context) error   { f.steps.add("mount"); return nil }
func (f *fakeWallet) Unmount(ctx context.Context) error { return nil }

func (f *fakeWallet) GetConnectAccount(ctx context.Context) (string, error) { return f.account, nil }

func (f *fakeWallet) RequestAccount(ctx context.Context) (string, error) {
	f.steps.add("request_account")
	return f.account, nil
}

func (f *fakeWallet) SignMessage(ctx context.Context, msg string) (string, error) {
	f.steps.add("sign")
	if f.signErr != nil {
		return "", f.signErr
	}
	return f.sig, nil
}

func (f *fakeWallet) SendTransaction(ctx context.Context, tx wallet.TransactionMessage) (string, error) {
	return "", errors.New("not supported")
}

type fakeLinker struct {
	steps    *steps
	err      error
	handle   string
	platform booth.PlatformType
}

func (f *fakeLinker) LinkPlatform(ctx context.Context, handle string, platform booth.PlatformType) (*booth.LinkResult, error) {
	f.steps.add("link")
	f.handle, f.platform = handle, platform
	if f.err != nil {
		return nil, f.err
	}
	return &booth.LinkResult{Handle: handle, Platform: platform, Linked: true}, nil
}

type harness struct {
	steps    *steps
	auth     *fakeAuth
	wallet   *fakeWallet
	linker   *fakeLinker
	store    *countingStore
	accounts *account.Provider
	w        *wallet.Wallet
	flow     *Flow
	rec      *metrics.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := &steps{}
	h := &harness{
		steps: st,
		auth: &fakeAuth{
			steps:   st,
			profile: &account.Profile{ID: "7", Handle: "alice.cc", DisplayName: "Alice"},
			token:   "access-token",
		},
		wallet: &fakeWallet{steps: st, account: testAddress, sig: "0xsignature"},
		linker: &fakeLinker{steps: st},
		store:  &countingStore{MemoryStore: storage.NewMemoryStore()},
		rec:    metrics.NewRecorder(),
	}

	accounts, err := account.NewProvider(h.store)
	require.NoError(t, err)
	h.accounts = accounts

	f := wallet.NewFactory()
	require.NoError(t, f.Register(wallet.MetaMask, func(wallet.Config) wallet.Provider { return h.wallet }))
	h.w = wallet.New(storage.NewMemoryStore())
	h.flow = NewFlow(h.w, f, h.auth, h.linker, accounts, Options{Metrics: h.rec})
	return h
}

func (h *harness) connectWallet(t *testing.T) {
	t.Helper()
	require.NoError(t, h.w.SetProvider(context.Background(), wallet.MetaMask, h.wallet))
}

func TestConnectCyber_FullLogin(t *testing.T) {
	h := newHarness(t)

	res, err := h.flow.ConnectCyber(context.Background(), wallet.Config{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeLoggedIn, res.Outcome)
	assert.Equal(t, testAddress, res.Address)
	assert.NoError(t, res.LinkErr)
	assert.Equal(t,
		[]string{"mount", "request_account", "profile", "challenge", "sign", "verify", "link"},
		h.steps.list())
	assert.Equal(t, "0xsignature", h.auth.signature)

	st := h.accounts.State()
	assert.Equal(t, &account.TokenInfo{Address: testAddress, AccessToken: "access-token"}, st.Token())
	assert.Equal(t, "alice", st.Profile().Handle)
	assert.Equal(t, "alice.cc", st.Profile().HandleStr)
	assert.Equal(t, account.Roles{account.UserOfCyber}, st.LoginRoles())
	assert.Same(t, st, account.Snapshot())

	assert.Equal(t, "alice", h.linker.handle)
	assert.Equal(t, booth.PlatformCyberConnect, h.linker.platform)
	assert.Equal(t, wallet.MetaMask, h.w.Type())
}

func TestConnectCyber_NoAddress(t *testing.T) {
	h := newHarness(t)
	h.wallet.account = ""

	_, err := h.flow.ConnectCyber(context.Background(), wallet.Config{})
	require.ErrorIs(t, err, ErrNoAddress)
	assert.Equal(t, []string{"mount", "request_account"}, h.steps.list())
	assert.Zero(t, h.store.count())
}

func TestConnectCyber_UnknownWalletType(t *testing.T) {
	h := newHarness(t)
	_, err := h.flow.ConnectCyber(context.Background(), wallet.Config{Type: "Ledger"})
	assert.ErrorIs(t, err, wallet.ErrUnknownWalletType)
	assert.Empty(t, h.steps.list())
}

func TestLoginByAddress_AlreadyLoggedInSkipsIO(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.accounts.Update(func(s *account.Slots) {
		s.Token = &account.TokenInfo{Address: testAddress, AccessToken: "old"}
		s.Profile = &account.Profile{Handle: "alice"}
	}))
	writes := h.store.count()

	res, err := h.flow.LoginByAddress(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyLoggedIn, res.Outcome)
	assert.Empty(t, h.steps.list(), "no network call before the role check")
	assert.Equal(t, writes, h.store.count())
}

func TestLoginByAddress_MissingHandleClearsStaleSlots(t *testing.T) {
	h := newHarness(t)
	h.connectWallet(t)
	h.auth.profile = nil
	require.NoError(t, h.accounts.Update(func(s *account.Slots) {
		s.Token = &account.TokenInfo{Address: testAddress, AccessToken: "stale"}
		s.Profile = &account.Profile{DisplayName: "no handle"}
	}))

	res, err := h.flow.LoginByAddress(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMissingHandle, res.Outcome)
	assert.Equal(t, []string{"mount", "profile"}, h.steps.list())
	assert.Nil(t, h.accounts.State().Token())
	assert.Nil(t, h.accounts.State().Profile())
	assert.Zero(t, h.store.Len())
}

func TestLoginByAddress_SignRejectedMutatesNothing(t *testing.T) {
	h := newHarness(t)
	h.connectWallet(t)
	h.wallet.signErr = fmt.Errorf("%w: user denied message signature", wallet.ErrUserRejected)
	before := h.accounts.State()

	_, err := h.flow.LoginByAddress(context.Background(), testAddress)
	require.ErrorIs(t, err, wallet.ErrUserRejected)

	assert.Equal(t, []string{"mount", "profile", "challenge", "sign"}, h.steps.list())
	assert.Same(t, before, h.accounts.State())
	assert.Zero(t, h.store.count(), "no storage write")
	assert.Equal(t, KindInfo, Classify(err).Kind)
}

func isNetworkError(err error) bool {
	var e *remote.NetworkError
	return errors.As(err, &e)
}

func isServiceError(err error) bool {
	var e *remote.ServiceError
	return errors.As(err, &e)
}

func TestLoginByAddress_FailingStepStopsFlow(t *testing.T) {
	netErr := &remote.NetworkError{Method: "POST", URL: "http://cc", Err: errors.New("connection refused")}
	svcErr := &remote.ServiceError{StatusCode: 200, Message: "invalid signature"}

	tests := []struct {
		name      string
		setup     func(h *harness)
		wantSteps []string
		wantErr   func(error) bool
	}{
		{
			name:      "profile lookup",
			setup:     func(h *harness) { h.auth.profileErr = netErr },
			wantSteps: []string{"mount", "profile"},
			wantErr:   isNetworkError,
		},
		{
			name:      "challenge",
			setup:     func(h *harness) { h.auth.messageErr = svcErr },
			wantSteps: []string{"mount", "profile", "challenge"},
			wantErr:   isServiceError,
		},
		{
			name:      "verify",
			setup:     func(h *harness) { h.auth.verifyErr = svcErr },
			wantSteps: []string{"mount", "profile", "challenge", "sign", "verify"},
			wantErr:   isServiceError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.connectWallet(t)
			tt.setup(h)

			_, err := h.flow.LoginByAddress(context.Background(), testAddress)
			require.Error(t, err)
			assert.True(t, tt.wantErr(err), "unexpected error type: %v", err)
			assert.Equal(t, tt.wantSteps, h.steps.list())
			assert.Zero(t, h.store.count())
			assert.Equal(t, account.Roles{account.Visitor}, h.accounts.State().LoginRoles())
		})
	}
}

func TestLoginByAddress_EmptySignature(t *testing.T) {
	h := newHarness(t)
	h.connectWallet(t)
	h.wallet.sig = ""

	_, err := h.flow.LoginByAddress(context.Background(), testAddress)
	require.ErrorIs(t, err, ErrEmptySignature)
	assert.NotContains(t, h.steps.list(), "verify")
}

func TestLoginByAddress_NoWallet(t *testing.T) {
	h := newHarness(t)

	_, err := h.flow.LoginByAddress(context.Background(), testAddress)
	require.ErrorIs(t, err, wallet.ErrNoProvider)
	assert.Equal(t, []string{"profile", "challenge"}, h.steps.list())
}

func TestLoginByAddress_LinkFailureKeepsLogin(t *testing.T) {
	h := newHarness(t)
	h.connectWallet(t)
	h.linker.err = booth.ErrNoDeschoolToken

	res, err := h.flow.LoginByAddress(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLoggedIn, res.Outcome)
	assert.ErrorIs(t, res.LinkErr, booth.ErrNoDeschoolToken)
	assert.True(t, h.accounts.State().LoginRoles().Has(account.UserOfCyber))
}

func TestLoginByAddress_WithoutLinker(t *testing.T) {
	h := newHarness(t)
	h.connectWallet(t)
	h.flow.linker = nil

	res, err := h.flow.LoginByAddress(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLoggedIn, res.Outcome)
	assert.NotContains(t, h.steps.list(), "link")
}

func TestDisconnect(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.accounts.Update(func(s *account.Slots) {
		s.Token = &account.TokenInfo{Address: testAddress, AccessToken: "tok"}
		s.Profile = &account.Profile{Handle: "alice"}
		s.DeschoolProfile = &account.DeschoolProfile{Address: testAddress}
	}))

	require.NoError(t, h.flow.DisconnectCyber())
	assert.Equal(t, account.Roles{account.UserOfDeschool}, h.accounts.State().LoginRoles())

	require.NoError(t, h.flow.DisconnectDeschool())
	assert.Equal(t, account.Roles{account.Visitor}, h.accounts.State().LoginRoles())
	assert.Zero(t, h.store.Len())
}

func TestWithStrippedHandle(t *testing.T) {
	tests := map[string]string{
		"alice.cc":   "alice",
		"alice":      "alice",
		"a.ccb.cc":   "a",
		"":           "",
		"bob.cc.old": "bob",
	}
	for in, want := range tests {
		p := &account.Profile{Handle: in}
		got := withStrippedHandle(p)
		assert.Equal(t, want, got.Handle, in)
		assert.Equal(t, in, got.HandleStr, in)
		assert.Equal(t, in, p.Handle, "input must not change")
	}
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "logged_in", OutcomeLoggedIn.String())
	assert.Equal(t, "already_logged_in", OutcomeAlreadyLoggedIn.String())
	assert.Equal(t, "missing_handle", OutcomeMissingHandle.String())
	assert.Equal(t, "Outcome(9)", Outcome(9).String())
}

func TestRefreshProfile(t *testing.T) {
	h := newHarness(t)

	_, err := h.flow.RefreshProfile(context.Background())
	require.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Empty(t, h.steps.list())

	require.NoError(t, h.accounts.Update(func(s *account.Slots) {
		s.Token = &account.TokenInfo{Address: testAddress, AccessToken: "tok"}
		s.Profile = &account.Profile{Handle: "alice", DisplayName: "Old"}
	}))
	h.auth.profile = &account.Profile{ID: "7", Handle: "alice.cc", DisplayName: "Alice Renamed"}

	got, err := h.flow.RefreshProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Handle)
	assert.Equal(t, "Alice Renamed", h.accounts.State().Profile().DisplayName)
	assert.Equal(t, "tok", h.accounts.State().Token().AccessToken)

	h.auth.profile = nil
	_, err = h.flow.RefreshProfile(context.Background())
	require.ErrorIs(t, err, ErrMissingHandle)
	assert.Equal(t, "Alice Renamed", h.accounts.State().Profile().DisplayName, "stored profile kept")
}

func heldRoles(t *testing.T, rec *metrics.Recorder) map[string]bool {
	t.Helper()
	families, err := rec.Registry().Gather()
	require.NoError(t, err)
	held := map[string]bool{}
	for _, f := range families {
		if f.GetName() != "deschool_account_role" {
			continue
		}
		for _, m := range f.GetMetric() {
			if m.GetGauge().GetValue() == 1 {
				held[m.GetLabel()[0].GetValue()] = true
			}
		}
	}
	return held
}

func TestTrackRoles(t *testing.T) {
	h := newHarness(t)
	rec := metrics.NewRecorder()

	cancel := TrackRoles(h.accounts, rec)
	assert.Equal(t, map[string]bool{"Visitor": true}, heldRoles(t, rec))

	_, err := h.flow.ConnectCyber(context.Background(), wallet.Config{})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"UserOfCyber": true}, heldRoles(t, rec))

	require.NoError(t, h.accounts.SetDeschoolProfile(&account.DeschoolProfile{Address: testAddress}))
	assert.Equal(t, map[string]bool{"UserOfCyber": true, "UserOfDeschool": true}, heldRoles(t, rec))

	cancel()
	require.NoError(t, h.flow.DisconnectCyber())
	assert.True(t, heldRoles(t, rec)["UserOfCyber"], "gauge frozen after cancel")
}

func TestLookupProfile(t *testing.T) {
	h := newHarness(t)

	p, err := h.flow.LookupProfile(context.Background(), "0xBB00000000000000000000000000000000000002")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Handle)
	assert.Equal(t, "alice.cc", p.HandleStr)
	assert.Zero(t, h.store.count(), "lookups store nothing")

	h.auth.profile = nil
	p, err = h.flow.LookupProfile(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Nil(t, p)

	h.auth.profileErr = errors.New("boom")
	_, err = h.flow.LookupProfile(context.Background(), testAddress)
	assert.Error(t, err)
}
