package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/wprsctl/internal/session"
)

func NewDetachCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "detach <destination>",
		Short: "Detach from a remote session",
		Long: `Detach from a remote session.

Stops the companion process, shuts down the transport and removes the
session socket files. Detaching an already-detached session is a
no-op.`,
		Aliases:           []string{"d"},
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: sshHostCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			destination := args[0]

			cfg, err := loadConfig(cmd)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}

			orch, err := session.New(cfg, destination)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			defer orch.Close()

			if err := orch.Detach(); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}

			fmt.Printf("Detached from %s\n", destination)
		},
	}
}
