package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.olrik.dev/wprsctl/internal/core"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show wprsctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wprsctl %s\n", core.FormatVersion(core.Version))
		},
	}
}
