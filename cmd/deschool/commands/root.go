package commands

import "github.com/spf13/cobra"

// NewRootCmd assembles the deschool command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "deschool",
		Short:         "Deschool account and wallet login",
		Long:          "Log in to CyberConnect and Deschool with a browser-extension or custody wallet.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&ConfigPath, "config", "", "Config file (default ~/.deschool/config.yaml)")
	root.PersistentFlags().StringVar(&LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	root.PersistentFlags().BoolVar(&Ephemeral, "ephemeral", false, "Keep credentials in memory for this run only")

	root.AddCommand(NewStatusCmd())
	root.AddCommand(NewLoginCmd())
	root.AddCommand(NewLogoutCmd())
	root.AddCommand(NewProfileCmd())
	root.AddCommand(NewWalletCmd())
	root.AddCommand(NewConfigCmd())
	root.AddCommand(NewVersionCmd())

	return root
}
