package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/0xdeschool/deschool-lens/internal/account"
	"github.com/0xdeschool/deschool-lens/internal/logging"
	"github.com/0xdeschool/deschool-lens/internal/login"
)

// NewProfileCmd creates the profile command group
func NewProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage stored profiles",
	}
	cmd.AddCommand(newProfileShowCmd(), newProfileRefreshCmd(), newProfileSetDeschoolCmd())
	return cmd
}

func newProfileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <address>",
		Short: "Show the CyberConnect profile of any address",
		Long: `Look up the primary CyberConnect profile of an address. Nothing is
stored and no login is needed.

Example:
  deschool profile show 0xabc...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := args[0]
			if !common.IsHexAddress(address) {
				return fmt.Errorf("invalid address %q", address)
			}
			out := cmd.OutOrStdout()
			return withSession(cmd.ErrOrStderr(), func(s *session) error {
				var p *account.Profile
				err := WithSpinner("Looking up profile", func() error {
					var err error
					p, err = s.flow.LookupProfile(cmd.Context(), address)
					return err
				})
				if err != nil {
					return report(out, err)
				}
				if p == nil {
					Info(out, fmt.Sprintf("%s has no handle", address))
					return nil
				}
				fields := append(cyberProfileFields(p), [2]string{"Address", address})
				fmt.Fprintln(out, StatusBox("CyberConnect", fields))
				return nil
			})
		},
	}
}

func newProfileRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-read the logged-in CyberConnect profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withSession(cmd.ErrOrStderr(), func(s *session) error {
				var p *account.Profile
				err := WithSpinner("Refreshing profile", func() error {
					var err error
					p, err = s.flow.RefreshProfile(cmd.Context())
					return err
				})
				switch {
				case errors.Is(err, login.ErrNotLoggedIn):
					Info(out, "Not logged in to CyberConnect")
					fmt.Fprintln(out, Hint("Log in with: deschool login cyber"))
					return nil
				case errors.Is(err, login.ErrMissingHandle):
					Warning(out, "The logged-in address no longer has a handle; stored profile kept")
					return nil
				case err != nil:
					return report(out, err)
				}
				Success(out, "Profile refreshed")
				fmt.Fprintln(out, StatusBox("CyberConnect", cyberProfileFields(p)))
				return nil
			})
		},
	}
}

func newProfileSetDeschoolCmd() *cobra.Command {
	var (
		address string
		fields  []string
	)

	cmd := &cobra.Command{
		Use:   "set-deschool",
		Short: "Store the Deschool profile",
		Long: `Store the Deschool profile returned by the Deschool sign-in.
Extra fields are given as key=value; values that parse as JSON are kept
as JSON, anything else is stored as a string. A "token" field is used as
the Deschool API token when linking handles.

Example:
  deschool profile set-deschool --address 0xabc... --field token=ey... --field role=1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(address) {
				return fmt.Errorf("invalid address %q", address)
			}
			parsed, err := parseFields(fields)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return withSession(cmd.ErrOrStderr(), func(s *session) error {
				profile := &account.DeschoolProfile{Address: address, Fields: parsed}
				if err := s.accounts.SetDeschoolProfile(profile); err != nil {
					return err
				}
				logging.Audit(logging.AuditEvent{
					Operation: "login_deschool",
					Actor:     address,
					Target:    account.DeschoolProfileKey,
					Result:    "success",
				})
				Success(out, "Deschool profile stored, roles: "+s.accounts.State().LoginRoles().String())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Deschool account address (required)")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "Extra profile field as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

// parseFields turns key=value pairs into raw JSON profile fields.
func parseFields(pairs []string) (map[string]json.RawMessage, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	fields := make(map[string]json.RawMessage, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, expected key=value", pair)
		}
		if key == "address" {
			return nil, fmt.Errorf("field %q is set with --address", key)
		}
		if json.Valid([]byte(value)) {
			fields[key] = json.RawMessage(value)
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		fields[key] = raw
	}
	return fields, nil
}
