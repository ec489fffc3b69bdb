package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/0xdeschool/deschool-lens/internal/account"
	"github.com/0xdeschool/deschool-lens/internal/login"
	"github.com/0xdeschool/deschool-lens/internal/wallet"
)

// NewLoginCmd creates the login command group
func NewLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to a social graph",
	}
	cmd.AddCommand(newLoginCyberCmd())
	return cmd
}

func newLoginCyberCmd() *cobra.Command {
	var (
		address    string
		walletType string
	)

	cmd := &cobra.Command{
		Use:   "cyber",
		Short: "Log in to CyberConnect with a wallet signature",
		Long: `Log in to CyberConnect. The wallet is asked for an address (or
--address is used), the primary profile is looked up, and the login
challenge is signed with the wallet. On success the handle is linked to
the Deschool account when one is logged in.

Examples:
  deschool login cyber
  deschool login cyber --wallet UniPass
  deschool login cyber --address 0xabc...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withSession(cmd.ErrOrStderr(), func(s *session) error {
				ctx := cmd.Context()
				t := s.defaultWalletType(walletType)

				var run func() (*login.Result, error)
				if s.accounts.State().LoginRoles().Has(account.UserOfCyber) {
					// The flow reports the existing login without touching the wallet.
					run = func() (*login.Result, error) {
						return s.flow.LoginByAddress(ctx, s.accounts.State().Token().Address)
					}
				} else if address != "" {
					if err := s.ensureWallet(ctx, t); err != nil {
						return report(out, err)
					}
					// Signing needs an authorized account, whatever address is logged in.
					if _, err := s.wallet.GetAddress(ctx); err != nil {
						return report(out, err)
					}
					run = func() (*login.Result, error) { return s.flow.LoginByAddress(ctx, address) }
				} else {
					cfg := s.walletConfig(t)
					if t == wallet.UniPass {
						// Ask for the custody password before the spinner owns the terminal.
						cfg.Password()
					}
					run = func() (*login.Result, error) { return s.flow.ConnectCyber(ctx, cfg) }
				}

				var res *login.Result
				err := WithSpinner("Logging in to CyberConnect", func() error {
					var err error
					res, err = run()
					return err
				})
				if err != nil {
					return report(out, err)
				}
				printLoginResult(out, res, s.cfg.CyberConnect.ClaimSite)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Log in this address instead of asking the wallet")
	cmd.Flags().StringVar(&walletType, "wallet", "", "Wallet backend: MetaMask or UniPass (default from config)")

	return cmd
}

func printLoginResult(w io.Writer, res *login.Result, claimSite string) {
	switch res.Outcome {
	case login.OutcomeLoggedIn:
		Success(w, fmt.Sprintf("Logged in as %s", res.Profile.Handle))
		fmt.Fprintln(w, StatusBox("CyberConnect", [][2]string{
			{"Address", res.Address},
			{"Handle", res.Profile.Handle},
			{"Display name", res.Profile.DisplayName},
		}))
		if res.LinkErr != nil {
			Warning(w, "Handle not linked to Deschool: "+login.Classify(res.LinkErr).Text)
		}
	case login.OutcomeAlreadyLoggedIn:
		handle := ""
		if res.Profile != nil {
			handle = res.Profile.Handle
		}
		Info(w, fmt.Sprintf("Already logged in as %s", handle))
	case login.OutcomeMissingHandle:
		Info(w, login.MissingHandleMessage(claimSite).Text)
	}
}

// NewLogoutCmd creates the logout command group
func NewLogoutCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Clear stored credentials",
	}

	cyber := &cobra.Command{
		Use:   "cyber",
		Short: "Clear the CyberConnect profile and session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd, yes, "Log out of CyberConnect?", (*login.Flow).DisconnectCyber)
		},
	}
	deschool := &cobra.Command{
		Use:   "deschool",
		Short: "Clear the Deschool profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd, yes, "Log out of Deschool?", (*login.Flow).DisconnectDeschool)
		},
	}

	cmd.PersistentFlags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.AddCommand(cyber, deschool)
	return cmd
}

func runLogout(cmd *cobra.Command, yes bool, question string, disconnect func(*login.Flow) error) error {
	out := cmd.OutOrStdout()
	if !yes {
		ok, err := Confirm(question, true)
		if err != nil {
			return err
		}
		if !ok {
			Info(out, "Cancelled")
			return nil
		}
	}
	return withSession(cmd.ErrOrStderr(), func(s *session) error {
		if err := disconnect(s.flow); err != nil {
			return err
		}
		Success(out, "Logged out, roles: "+s.accounts.State().LoginRoles().String())
		return nil
	})
}
