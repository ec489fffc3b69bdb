package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, StatusBox("deschool", [][2]string{
				{"Version", GetVersion()},
				{"Commit", GetCommit()},
				{"Build Date", BuildDate},
				{"Go Version", GetGoVersion()},
				{"OS/Arch", runtime.GOOS + "/" + runtime.GOARCH},
			}))
		},
	}
}
