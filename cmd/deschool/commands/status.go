package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0xdeschool/deschool-lens/internal/account"
	"github.com/0xdeschool/deschool-lens/internal/wallet"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show login roles and stored profiles",
		Long: `Show the current account snapshot: login roles, the CyberConnect
profile, the Deschool profile and the active wallet.

With --probe the recorded wallet is mounted to report its connected
address, which may contact the wallet extension or keystore.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withSession(cmd.ErrOrStderr(), func(s *session) error {
				st := s.accounts.State()

				roles := st.LoginRoles()
				badges := make([]string, len(roles))
				for i, r := range roles {
					badges[i] = RoleBadge(r)
				}
				fmt.Fprintln(out, StatusBox("Account", [][2]string{
					{"Roles", strings.Join(badges, " ")},
				}))

				if p := st.Profile(); p != nil {
					fields := cyberProfileFields(p)
					if tok := st.Token(); tok != nil {
						fields = append(fields, [2]string{"Session", tok.Address})
					}
					fmt.Fprintln(out, StatusBox("CyberConnect", fields))
				}

				if d := st.DeschoolProfile(); d != nil {
					fmt.Fprintln(out, StatusBox("Deschool", [][2]string{{"Address", d.Address}}))
					if rows := deschoolFieldRows(d); len(rows) > 0 {
						fmt.Fprintln(out, RenderTable([]string{"Field", "Value"}, rows))
					}
				}

				walletType, _, err := s.store.Get(wallet.StorageKey)
				if err != nil {
					return err
				}
				if walletType == "" {
					walletType = string(wallet.None)
				}
				fields := [][2]string{{"Type", walletType}}
				if probe && walletType != string(wallet.None) {
					addr := "unavailable"
					if ok, err := s.restoreWallet(cmd.Context()); err == nil && ok {
						if a := s.wallet.GetConnectedAddress(cmd.Context()); a != "" {
							addr = a
						}
					}
					fields = append(fields, [2]string{"Address", addr})
				}
				fmt.Fprintln(out, StatusBox("Wallet", fields))

				if roles.Has(account.Visitor) {
					fmt.Fprintln(out, Hint("Log in with: deschool login cyber"))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "Mount the recorded wallet to show its address")

	return cmd
}

func cyberProfileFields(p *account.Profile) [][2]string {
	return [][2]string{
		{"Handle", p.Handle},
		{"Profile ID", p.ID},
		{"Display name", p.DisplayName},
		{"Avatar", p.AvatarOrDefault()},
	}
}

func deschoolFieldRows(d *account.DeschoolProfile) [][]string {
	names := make([]string, 0, len(d.Fields))
	for name := range d.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		var s string
		if err := json.Unmarshal(d.Fields[name], &s); err != nil {
			s = string(d.Fields[name])
		}
		rows = append(rows, []string{name, s})
	}
	return rows
}
