package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/term"

	"github.com/0xdeschool/deschool-lens/internal/account"
	"github.com/0xdeschool/deschool-lens/internal/booth"
	"github.com/0xdeschool/deschool-lens/internal/config"
	"github.com/0xdeschool/deschool-lens/internal/cyberconnect"
	"github.com/0xdeschool/deschool-lens/internal/identity"
	"github.com/0xdeschool/deschool-lens/internal/logging"
	"github.com/0xdeschool/deschool-lens/internal/login"
	"github.com/0xdeschool/deschool-lens/internal/metrics"
	"github.com/0xdeschool/deschool-lens/internal/remote"
	"github.com/0xdeschool/deschool-lens/internal/storage"
	"github.com/0xdeschool/deschool-lens/internal/util"
	"github.com/0xdeschool/deschool-lens/internal/wallet"
)

// KeyringPasswordEnv unlocks the encrypted-file keyring backend.
const KeyringPasswordEnv = "DESCHOOL_KEYRING_PASSWORD"

// session is the core wired up for one command invocation.
type session struct {
	cfg      *config.Config
	store    storage.Store
	accounts *account.Provider
	wallet   *wallet.Wallet
	factory  *wallet.Factory
	metrics  *metrics.Recorder
	flow     *login.Flow
	stderr   io.Writer

	untrackRoles func()
}

// loadConfig loads the config named by --config and installs the logger.
func loadConfig(stderr io.Writer) (*config.Config, error) {
	path := ConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if LogLevel != "" {
		cfg.Log.Level = LogLevel
	}
	if Ephemeral {
		cfg.Storage.Backend = "memory"
	}
	logging.Configure(stderr, cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

// openStore opens the storage backend selected in cfg.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "keyring":
		return storage.OpenKeyringStore(storage.KeyringOptions{
			ServiceName:  cfg.Storage.KeyringService,
			FileDir:      cfg.Storage.KeyringFileDir,
			FilePassword: os.Getenv(KeyringPasswordEnv),
		})
	default:
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		return storage.OpenFileStore(cfg.DataDir)
	}
}

// openSession builds the account provider, wallet and login flow. The
// wallet recorded by a previous command is not restored here; commands
// that sign call restoreWallet.
func openSession(stderr io.Writer) (*session, error) {
	cfg, err := loadConfig(stderr)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	accounts, err := account.NewProvider(store)
	if err != nil {
		return nil, err
	}

	rec := metrics.NewRecorder()
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	ccOpts := []remote.Option{
		remote.WithHTTPClient(httpClient),
		remote.WithObserver(rec.ObserveRemote),
		remote.WithRetry(util.DefaultBackoff()),
	}
	if cfg.CyberConnect.APIKey != "" {
		ccOpts = append(ccOpts, remote.WithAPIKey(cfg.CyberConnect.APIKey))
	}
	cc := cyberconnect.New(remote.New(cfg.CyberConnect.Endpoint, ccOpts...))
	linker := booth.New(remote.New(cfg.Booth.Endpoint,
		remote.WithHTTPClient(httpClient),
		remote.WithObserver(rec.ObserveRemote),
		remote.WithRetry(util.DefaultBackoff())), booth.AccountToken)

	w := wallet.New(store)
	factory := wallet.NewFactory()

	s := &session{
		cfg:      cfg,
		store:    store,
		accounts: accounts,
		wallet:   w,
		factory:  factory,
		metrics:  rec,
		stderr:   stderr,
		flow: login.NewFlow(w, factory, cc, linker, accounts, login.Options{
			Domain:  cfg.CyberConnect.Domain,
			Metrics: rec,
		}),
	}
	s.untrackRoles = login.TrackRoles(accounts, rec)
	return s, nil
}

// walletConfig builds the backend config for t from the loaded config.
func (s *session) walletConfig(t wallet.Type) wallet.Config {
	wc := wallet.Config{
		Type:        t,
		ChainID:     s.cfg.Wallet.ChainID,
		KeystoreDir: s.cfg.Wallet.KeystoreDir,
		Password:    promptingPassword(identity.ResolvePassword(s.cfg.Wallet.PasswordFile), s.stderr),
		AccountChanged: func(ctx context.Context, acct string) error {
			logging.Info("wallet account changed", logging.Address(acct), logging.Component("cli"))
			return nil
		},
		ChainChanged: func(ctx context.Context, chain string) error {
			logging.Warn("wallet chain changed", "chain", chain, logging.Component("cli"))
			return nil
		},
	}
	switch t {
	case wallet.UniPass:
		if urls := s.cfg.Wallet.ResolvedChainRPCURLs(); len(urls) > 0 {
			wc.RPCURL = urls[0]
		}
	default:
		wc.RPCURL = s.cfg.Wallet.ExtensionRPC
		// The watcher only matters for the lifetime of one command.
		wc.PollInterval = s.cfg.Wallet.PollInterval
	}
	return wc
}

// defaultWalletType returns flagValue, or the configured default when empty.
func (s *session) defaultWalletType(flagValue string) wallet.Type {
	if flagValue != "" {
		return wallet.Type(flagValue)
	}
	return wallet.Type(s.cfg.Wallet.DefaultType)
}

// restoreWallet mounts the wallet recorded by a previous command. It
// reports whether a provider is active afterwards.
func (s *session) restoreWallet(ctx context.Context) (bool, error) {
	raw, _, err := s.store.Get(wallet.StorageKey)
	if err != nil {
		return false, err
	}
	if err := s.wallet.Restore(ctx, s.factory, s.walletConfig(wallet.Type(raw))); err != nil {
		return false, err
	}
	return s.wallet.Connected(), nil
}

// ensureWallet restores the recorded wallet, connecting one of type t when
// none is recorded.
func (s *session) ensureWallet(ctx context.Context, t wallet.Type) error {
	ok, err := s.restoreWallet(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	p, err := s.factory.Create(s.walletConfig(t))
	if err != nil {
		return err
	}
	err = s.wallet.SetProvider(ctx, t, p)
	s.metrics.RecordWalletOp("connect", resultLabel(err))
	return err
}

// Close releases the wallet backend and writes the metrics textfile.
func (s *session) Close() error {
	s.untrackRoles()

	var errs []error
	if err := s.wallet.Release(context.Background()); err != nil {
		errs = append(errs, err)
	}
	if s.cfg.Metrics.Textfile != "" {
		if err := s.metrics.WriteTextfile(s.cfg.Metrics.Textfile); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

// withSession runs fn against a fresh session and closes it afterwards.
func withSession(stderr io.Writer, fn func(s *session) error) error {
	s, err := openSession(stderr)
	if err != nil {
		return err
	}
	runErr := fn(s)
	if err := s.Close(); err != nil {
		logging.Warn("session cleanup failed", logging.Err(err), logging.Component("cli"))
	}
	return runErr
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

// promptingPassword falls back to an interactive prompt when src has no
// password. The answer is asked for at most once.
func promptingPassword(src identity.PasswordSource, stderr io.Writer) identity.PasswordSource {
	var (
		once sync.Once
		pw   string
	)
	return func() string {
		once.Do(func() {
			if pw = src(); pw != "" || !isInteractive() {
				return
			}
			fmt.Fprint(stderr, "Enter wallet password: ")
			read, err := readPasswordNoEcho()
			fmt.Fprintln(stderr)
			if err != nil {
				logging.Warn("failed to read password", logging.Err(err), logging.Component("cli"))
				return
			}
			pw = read
		})
		return pw
	}
}

// readPasswordNoEcho reads a line from stdin with echo disabled.
func readPasswordNoEcho() (string, error) {
	password, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(password), "\r\n"), nil
}

// report turns a core error into CLI output. Informational outcomes such
// as a rejected prompt are printed and swallowed.
func report(w io.Writer, err error) error {
	if err == nil {
		return nil
	}
	msg := login.Classify(err)
	if msg.Kind == login.KindInfo {
		Info(w, msg.Text)
		return nil
	}
	logging.Debug("command failed", logging.Err(err), logging.Component("cli"))
	return errors.New(msg.Text)
}
