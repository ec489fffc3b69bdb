package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0xdeschool/deschool-lens/internal/identity"
	"github.com/0xdeschool/deschool-lens/internal/logging"
	"github.com/0xdeschool/deschool-lens/internal/wallet"
)

// NewWalletCmd creates the wallet command group
func NewWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the login wallet",
		Long: `Connect, use and manage the wallet that signs login challenges.

Two backends are supported:
  MetaMask  the browser-extension wallet, reached over its JSON-RPC bridge
  UniPass   a custody wallet kept in an encrypted keystore on this machine

The connected backend is remembered between commands.

The custody wallet password is looked up in DESCHOOL_WALLET_PASSWORD, the
configured password file, the platform keyring and the kernel keyring.`,
	}

	cmd.AddCommand(newWalletConnectCmd())
	cmd.AddCommand(newWalletDisconnectCmd())
	cmd.AddCommand(newWalletAddressCmd())
	cmd.AddCommand(newWalletSignCmd())
	cmd.AddCommand(newWalletSendCmd())
	cmd.AddCommand(newWalletTypesCmd())
	cmd.AddCommand(newWalletCreateCmd())
	cmd.AddCommand(newWalletImportCmd())
	cmd.AddCommand(newWalletForgetPasswordCmd())

	return cmd
}

func newWalletConnectCmd() *cobra.Command {
	var walletType string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect a wallet backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withSession(cmd.ErrOrStderr(), func(s *session) error {
				ctx := cmd.Context()
				t := s.defaultWalletType(walletType)

				p, err := s.factory.Create(s.walletConfig(t))
				if err != nil {
					return report(out, err)
				}
				err = s.wallet.SetProvider(ctx, t, p)
				s.metrics.RecordWalletOp("connect", resultLabel(err))
				if err != nil {
					return report(out, err)
				}

				addr, err := s.wallet.GetAddress(ctx)
				s.metrics.RecordWalletOp("request_account", resultLabel(err))
				if err != nil {
					return report(out, err)
				}
				if addr == "" {
					Info(out, fmt.Sprintf("%s connected, no account authorized", t))
					return nil
				}
				logging.Audit(logging.AuditEvent{
					Operation: "wallet_connected",
					Actor:     addr,
					Target:    string(t),
					Result:    "success",
				})
				Success(out, fmt.Sprintf("%s connected", t))
				fmt.Fprintln(out, StatusBox("Wallet", [][2]string{
					{"Type", string(t)},
					{"Address", addr},
				}))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&walletType, "type", "", "Wallet backend: MetaMask or UniPass (default from config)")

	return cmd
}

func newWalletDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect and forget the wallet backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withSession(cmd.ErrOrStderr(), func(s *session) error {
				ctx := cmd.Context()
				if _, err := s.restoreWallet(ctx); err != nil {
					logging.Warn("recorded wallet could not be mounted", logging.Err(err), logging.Component("cli"))
				}
				t := s.wallet.Type()
				if err := s.wallet.Disconnect(ctx); err != nil {
					return err
				}
				logging.Audit(logging.AuditEvent{Operation: "wallet_disconnected", Target: string(t), Result: "success"})
				Success(out, "Wallet disconnected")
				return nil
			})
		},
	}
}

// withWallet restores the recorded wallet and runs fn against it.
func withWallet(cmd *cobra.Command, fn func(ctx context.Context, s *session, out io.Writer) error) error {
	out := cmd.OutOrStdout()
	return withSession(cmd.ErrOrStderr(), func(s *session) error {
		ctx := cmd.Context()
		ok, err := s.restoreWallet(ctx)
		if err != nil {
			return report(out, err)
		}
		if !ok {
			return report(out, wallet.ErrNoProvider)
		}
		return fn(ctx, s, out)
	})
}

func newWalletAddressCmd() *cobra.Command {
	var request bool

	cmd := &cobra.Command{
		Use:   "address",
		Short: "Show the connected wallet address",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWallet(cmd, func(ctx context.Context, s *session, out io.Writer) error {
				var addr string
				if request {
					var err error
					addr, err = s.wallet.GetAddress(ctx)
					s.metrics.RecordWalletOp("request_account", resultLabel(err))
					if err != nil {
						return report(out, err)
					}
				} else {
					addr = s.wallet.GetConnectedAddress(ctx)
				}
				if addr == "" {
					Info(out, "No account authorized")
					fmt.Fprintln(out, Hint("Authorize one with: deschool wallet address --request"))
					return nil
				}
				fmt.Fprintln(out, addr)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&request, "request", false, "Ask the wallet to authorize an account")

	return cmd
}

func newWalletSignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign <message>",
		Short: "Sign a message with the connected wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWallet(cmd, func(ctx context.Context, s *session, out io.Writer) error {
				if _, err := s.wallet.GetAddress(ctx); err != nil {
					return report(out, err)
				}
				sig, err := s.wallet.SignMessage(ctx, args[0])
				s.metrics.RecordWalletOp("sign", resultLabel(err))
				if err != nil {
					return report(out, err)
				}
				fmt.Fprintln(out, sig)
				return nil
			})
		},
	}
}

func newWalletSendCmd() *cobra.Command {
	var tx wallet.TransactionMessage
	var yes bool

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Submit a transaction through the connected wallet",
		Long: `Submit a transaction through the connected wallet and print its hash.
--value is in wei, decimal or 0x-hex. --data is 0x-hex calldata.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWallet(cmd, func(ctx context.Context, s *session, out io.Writer) error {
				from, err := s.wallet.GetAddress(ctx)
				if err != nil {
					return report(out, err)
				}
				if from == "" {
					return report(out, wallet.ErrNoAccount)
				}
				tx.From = from

				if !yes {
					fmt.Fprintln(out, StatusBox("Transaction", [][2]string{
						{"From", tx.From},
						{"To", tx.To},
						{"Value (wei)", tx.Value},
						{"Data", tx.Data},
					}))
					ok, err := Confirm("Send this transaction?", false)
					if err != nil {
						return err
					}
					if !ok {
						Info(out, "Cancelled")
						return nil
					}
				}

				hash, err := s.wallet.SendTransaction(ctx, tx)
				s.metrics.RecordWalletOp("send", resultLabel(err))
				if err != nil {
					return report(out, err)
				}
				Success(out, "Transaction submitted")
				fmt.Fprintln(out, hash)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&tx.To, "to", "", "Recipient address (required)")
	cmd.Flags().StringVar(&tx.Value, "value", "", "Amount in wei")
	cmd.Flags().StringVar(&tx.Data, "data", "", "Calldata as 0x-hex")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func newWalletTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the supported wallet backends",
		Run: func(cmd *cobra.Command, args []string) {
			rows := [][]string{}
			for _, t := range wallet.NewFactory().Types() {
				rows = append(rows, []string{string(t), walletDescriptions[t]})
			}
			fmt.Fprintln(cmd.OutOrStdout(), RenderTable([]string{"Type", "Backend"}, rows))
		},
	}
}

var walletDescriptions = map[wallet.Type]string{
	wallet.MetaMask: "browser-extension wallet over JSON-RPC",
	wallet.UniPass:  "custody keystore on this machine",
}

// keystoreDir resolves the custody keystore from --keystore or the config.
func keystoreDir(flagValue string, stderr io.Writer) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	cfg, err := loadConfig(stderr)
	if err != nil {
		return "", err
	}
	return cfg.Wallet.KeystoreDir, nil
}

// readNewPassword prompts for a password twice, up to three times.
func readNewPassword(out io.Writer) (string, error) {
	if pw := os.Getenv(identity.PasswordEnv); pw != "" {
		return pw, nil
	}
	if !isInteractive() {
		return "", fmt.Errorf("no terminal to read a password, set %s", identity.PasswordEnv)
	}

	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Fprint(os.Stderr, "Enter wallet password: ")
		password, err := readPasswordNoEcho()
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		if len(password) < 8 {
			Warning(out, "Password must be at least 8 characters. Try again.")
			continue
		}

		fmt.Fprint(os.Stderr, "Confirm wallet password: ")
		confirm, err := readPasswordNoEcho()
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read confirmation: %w", err)
		}
		if password != confirm {
			Warning(out, "Passwords do not match. Try again.")
			continue
		}
		return password, nil
	}
	return "", fmt.Errorf("too many failed attempts")
}

// storePassword saves the custody password in the best available keyring.
func storePassword(out io.Writer, password string) {
	if backend, err := identity.StoreWalletPassword(password); err == nil {
		fmt.Fprintf(out, "  Password saved to %s\n", backend)
		return
	}
	if err := identity.StoreKernelKeyring(password); err == nil {
		fmt.Fprintln(out, "  Password saved to kernel keyring (in-memory, lost on reboot)")
		return
	}
	fmt.Fprintln(out, "  Could not store password in a system keyring.")
	fmt.Fprintf(out, "  Set %s or wallet.password_file for automatic unlock.\n", identity.PasswordEnv)
}

func newWalletCreateCmd() *cobra.Command {
	var dir string
	var savePassword bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a custody wallet",
		Long:  "Create a new key in a password-encrypted keystore for the UniPass backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ksDir, err := keystoreDir(dir, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if existing, err := identity.LoadKeystore(ksDir); err != nil {
				return fmt.Errorf("failed to check keystore: %w", err)
			} else if existing != nil {
				return fmt.Errorf("wallet already exists at %s (address: %s)", ksDir, existing.Address().Hex())
			}

			password, err := readNewPassword(out)
			if err != nil {
				return err
			}
			ks, err := identity.CreateKeystore(ksDir, password)
			if err != nil {
				return fmt.Errorf("failed to create wallet: %w", err)
			}

			Success(out, "Wallet created")
			fmt.Fprintln(out, StatusBox("Wallet", [][2]string{
				{"Address", ks.Address().Hex()},
				{"Keystore", ksDir},
			}))
			if savePassword {
				storePassword(out, password)
			}
			Warning(out, "Back up your keystore directory and remember your password.")
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "keystore", "", "Keystore directory (default from config)")
	cmd.Flags().BoolVar(&savePassword, "save-password", true, "Store the password in the system keyring")

	return cmd
}

func newWalletImportCmd() *cobra.Command {
	var dir string
	var savePassword bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a custody wallet from a private key",
		Long: `Import an existing private key into the custody keystore.
The key is read from DESCHOOL_IMPORT_KEY or prompted for without echo.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ksDir, err := keystoreDir(dir, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if existing, err := identity.LoadKeystore(ksDir); err != nil {
				return fmt.Errorf("failed to check keystore: %w", err)
			} else if existing != nil {
				return fmt.Errorf("wallet already exists at %s (address: %s)", ksDir, existing.Address().Hex())
			}

			keyHex := os.Getenv("DESCHOOL_IMPORT_KEY")
			if keyHex == "" {
				if !isInteractive() {
					return fmt.Errorf("no terminal to read the key, set DESCHOOL_IMPORT_KEY")
				}
				fmt.Fprint(os.Stderr, "Enter private key (hex, with or without 0x prefix): ")
				keyHex, err = readPasswordNoEcho()
				fmt.Fprintln(os.Stderr)
				if err != nil {
					return fmt.Errorf("failed to read private key: %w", err)
				}
			}
			keyHex = strings.TrimPrefix(strings.TrimSpace(keyHex), "0x")
			if len(keyHex) != 64 {
				return fmt.Errorf("private key must be 64 hex characters, got %d", len(keyHex))
			}

			password, err := readNewPassword(out)
			if err != nil {
				return err
			}
			ks, err := identity.ImportKeystore(ksDir, keyHex, password)
			if err != nil {
				return fmt.Errorf("failed to import wallet: %w", err)
			}

			Success(out, "Wallet imported")
			fmt.Fprintln(out, StatusBox("Wallet", [][2]string{
				{"Address", ks.Address().Hex()},
				{"Keystore", ksDir},
			}))
			if savePassword {
				storePassword(out, password)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "keystore", "", "Keystore directory (default from config)")
	cmd.Flags().BoolVar(&savePassword, "save-password", true, "Store the password in the system keyring")

	return cmd
}

func newWalletForgetPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget-password",
		Short: "Remove the custody wallet password from the system keyrings",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			removed := false
			if err := identity.DeleteWalletPassword(); err == nil {
				fmt.Fprintln(out, "Removed password from platform keyring")
				removed = true
			}
			if err := identity.DeleteKernelKeyring(); err == nil {
				fmt.Fprintln(out, "Removed password from kernel keyring")
				removed = true
			}
			if !removed {
				fmt.Fprintln(out, "No stored password found in any keyring.")
			}
			return nil
		},
	}
}
