package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/wprsctl/internal/session"
)

func NewAttachCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <destination>",
		Short: "Attach to a remote session",
		Long: `Attach to a remote session.

Starts the transport if needed, forwards the session sockets, ensures
the companion process runs with the desired invocation, and reports
the session's capabilities. Attaching to an unchanged session is a
no-op.`,
		Aliases:           []string{"a"},
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

			caps, err := orch.Attach()
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}

			fmt.Printf("Attached to %s (session %s)\n", destination, shortIdentity(orch.Identity()))
			if caps == nil {
				fmt.Println("Capabilities: none reported")
			} else {
				fmt.Printf("Capabilities: xwayland=%v\n", caps.Xwayland)
			}
		},
	}
}

func shortIdentity(id session.Identity) string {
	s := id.String()
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
